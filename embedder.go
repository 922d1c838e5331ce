package ledgermind

import (
	"context"
	"errors"
)

// ErrNoEmbedder is returned by the default embedder installed when New is
// called without WithEmbedder. Mirrors the teacher's NoopProvider
// (internal/service/embedding/embedding.go): callers without a configured
// embedding model still get a working engine, just with vector search
// disabled — search_decisions falls back to keyword ranking alone.
var ErrNoEmbedder = errors.New("ledgermind: no embedder configured")

// noopEmbedder is the default Embedder installed when WithEmbedder is not
// supplied. It declines every embed request rather than returning zero
// vectors, so callers can't mistake a disabled embedder for a genuinely
// similar-to-everything decision.
type noopEmbedder struct {
	dims int
}

func (n noopEmbedder) Dimensions() int { return n.dims }

func (n noopEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrNoEmbedder
}
