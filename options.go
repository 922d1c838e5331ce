package ledgermind

import (
	"log/slog"

	"github.com/ashita-ai/ledgermind/internal/decay"
	"github.com/ashita-ai/ledgermind/internal/memory"
)

// Option configures an Engine. Mirrors the teacher's functional-options
// shape (options.go in ashita-ai-akashi): each With* sets one field on an
// unexported resolvedOptions, applied in New before any subsystem opens.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after defaults are applied.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger           *slog.Logger
	version          string
	trustBoundary    TrustBoundary
	embedder         Embedder
	auditBackend     memory.AuditBackend
	arbiter          Arbiter
	titleSimilarity  func(a, b string) float64
	decayParams      *decay.Params
	reflectionParams *ReflectionParams
	telemetry        *bool
}

// WithLogger sets the structured logger used throughout the engine.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in startup logs and
// telemetry resource attributes.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithTrustBoundary overrides the LEDGERMIND_TRUST_BOUNDARY environment
// default (§3 Trust Boundary).
func WithTrustBoundary(t TrustBoundary) Option {
	return func(o *resolvedOptions) { o.trustBoundary = t }
}

// WithEmbedder supplies the embedding provider the vector index uses for
// record_decision, supersede_decision, and search_decisions (§4.5). Without
// one, the engine falls back to a no-op embedder that declines every embed
// request, leaving search to keyword ranking alone — the same degraded
// posture the teacher takes when no embedding API key is configured.
func WithEmbedder(e Embedder) Option {
	return func(o *resolvedOptions) { o.embedder = e }
}

// WithAuditBackend replaces the git-backed audit log (C2) with a caller's
// own implementation, e.g. for tests that don't want a real git binary.
func WithAuditBackend(a memory.AuditBackend) Option {
	return func(o *resolvedOptions) { o.auditBackend = a }
}

// WithArbiter sets the tie-breaking function record_decision falls back to
// when similarity thresholds can't auto-resolve a conflict (§4.9).
func WithArbiter(a Arbiter) Option {
	return func(o *resolvedOptions) { o.arbiter = a }
}

// WithTitleSimilarity overrides the title-similarity function used during
// conflict detection. Defaults to nil (title similarity contributes 0 to
// the resolution score) if never set.
func WithTitleSimilarity(fn func(a, b string) float64) Option {
	return func(o *resolvedOptions) { o.titleSimilarity = fn }
}

// WithDecayParams overrides the confidence-decay thresholds loaded from
// config (§4.11).
func WithDecayParams(p DecayParams) Option {
	return func(o *resolvedOptions) { o.decayParams = &p }
}

// WithReflectionParams overrides the reflection thresholds loaded from
// config (§4.12).
func WithReflectionParams(p ReflectionParams) Option {
	return func(o *resolvedOptions) { o.reflectionParams = &p }
}

// WithTelemetry overrides the LEDGERMIND_TELEMETRY_ENABLED environment
// default.
func WithTelemetry(enabled bool) Option {
	return func(o *resolvedOptions) { o.telemetry = &enabled }
}
