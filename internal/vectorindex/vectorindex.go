// Package vectorindex implements C5, the ANN vector index persisted to a
// single gob file, vector_index/vector_meta.gob (no .npy or .ann files are
// written; ANN trees are rebuilt on load): normalized dense
// embeddings, a pluggable Embedder, brute-force-plus-ANN retrieval, soft
// delete with compaction, and an LRU embedding cache, grounded on akashi's
// internal/search (Searcher/CandidateFinder split, ReScore-style weighting)
// adapted from a Qdrant-backed network service to this spec's file-backed
// single-host index.
package vectorindex

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Embedder turns text into a dense vector. Implementations must be safe for
// concurrent use (mirrors akashi's Searcher interface contract).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Candidate is one scored index hit.
type Candidate struct {
	FID   string
	Score float32 // cosine similarity in [-1, 1]
}

// entry is one stored vector plus its soft-delete state.
type entry struct {
	FID     string
	Vector  []float32
	Deleted bool
}

// Index is the C5 ANN vector index. It holds everything in memory and
// persists to sidecar files on Save; brute-force cosine scan is the
// reference path, with a simple tree-partition ANN layered on top once the
// entry count justifies it (§4.5: "ANN + brute-force tail scan").
type Index struct {
	mu   sync.RWMutex
	dir  string
	dims int

	entries  []entry
	byFID    map[string]int // fid -> index into entries
	deleted  int

	embedder Embedder
	cache    *lruCache

	annTreeCount int
	trees        []*annTree
}

const (
	defaultCacheSize   = 500
	compactionMinSoft  = 10
	compactionFraction = 0.2
)

// Open loads an existing index from dir's sidecar files, or creates an
// empty one sized for dims.
func Open(dir string, dims int, embedder Embedder, annTreeCount int) (*Index, error) {
	idx := &Index{
		dir:          dir,
		dims:         dims,
		byFID:        map[string]int{},
		embedder:     embedder,
		cache:        newLRUCache(defaultCacheSize),
		annTreeCount: annTreeCount,
	}
	if err := idx.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("vectorindex: load: %w", err)
	}
	idx.rebuildTrees()
	return idx, nil
}

// Dimensions reports the configured embedding width.
func (idx *Index) Dimensions() int { return idx.dims }

// Upsert inserts or replaces fid's vector. A vector whose length differs
// from the index's configured width is rejected with an error; the index is
// not reset and its existing entries are left unchanged.
func (idx *Index) Upsert(fid string, vec []float32) error {
	if len(vec) != idx.dims {
		return fmt.Errorf("vectorindex: upsert %s: expected %d dims, got %d", fid, idx.dims, len(vec))
	}
	normalized := normalize(vec)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if i, ok := idx.byFID[fid]; ok {
		idx.entries[i] = entry{FID: fid, Vector: normalized}
	} else {
		idx.byFID[fid] = len(idx.entries)
		idx.entries = append(idx.entries, entry{FID: fid, Vector: normalized})
	}
	idx.cache.remove(fid)
	return nil
}

// SoftDelete marks fid as deleted without shrinking storage; Compact later
// reclaims the space once enough deletions have accumulated (§4.5).
func (idx *Index) SoftDelete(fid string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	i, ok := idx.byFID[fid]
	if !ok || idx.entries[i].Deleted {
		return
	}
	idx.entries[i].Deleted = true
	idx.deleted++
	idx.cache.remove(fid)
}

// NeedsCompaction reports whether soft-deleted entries exceed both the
// minimum count and fraction thresholds (§4.5: "compaction at >=20%/min10").
func (idx *Index) NeedsCompaction() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.deleted < compactionMinSoft {
		return false
	}
	return float64(idx.deleted)/float64(len(idx.entries)) >= compactionFraction
}

// Compact physically removes soft-deleted entries and rebuilds ANN trees.
func (idx *Index) Compact() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	live := idx.entries[:0]
	newByFID := make(map[string]int, len(idx.entries))
	for _, e := range idx.entries {
		if e.Deleted {
			continue
		}
		newByFID[e.FID] = len(live)
		live = append(live, e)
	}
	idx.entries = live
	idx.byFID = newByFID
	idx.deleted = 0
	idx.rebuildTreesLocked()
}

// Search returns the top-k candidates by cosine similarity to query,
// combining ANN tree candidates with a brute-force tail scan so recall
// stays correct even before enough data exists to make the ANN trees
// useful (§4.5).
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]Candidate, error) {
	if len(query) != idx.dims {
		return nil, fmt.Errorf("vectorindex: search: expected %d dims, got %d", idx.dims, len(query))
	}
	q := normalize(query)

	idx.mu.RLock()
	entries := idx.entries
	trees := idx.trees
	idx.mu.RUnlock()

	seen := map[int]bool{}
	var candidates []Candidate

	if len(trees) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		results := make([][]int, len(trees))
		for i, t := range trees {
			i, t := i, t
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				results[i] = t.query(q, k*2)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, rs := range results {
			for _, i := range rs {
				if seen[i] || i >= len(entries) || entries[i].Deleted {
					continue
				}
				seen[i] = true
				candidates = append(candidates, Candidate{FID: entries[i].FID, Score: dot(q, entries[i].Vector)})
			}
		}
	}

	// Brute-force tail scan covers entries the ANN trees have not indexed
	// yet (newly inserted since the last rebuild) and backstops recall when
	// there are no trees at all.
	for i, e := range entries {
		if seen[i] || e.Deleted {
			continue
		}
		candidates = append(candidates, Candidate{FID: e.FID, Score: dot(q, e.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// EmbedCached embeds text, serving from the bounded LRU cache when
// possible (§4.5: "<=500-entry LRU embedding cache").
func (idx *Index) EmbedCached(ctx context.Context, key, text string) ([]float32, error) {
	if v, ok := idx.cache.get(key); ok {
		return v, nil
	}
	v, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	idx.cache.put(key, v)
	return v, nil
}

// Remove marks fid deleted so it no longer surfaces in Search (used by
// forget() after the metadata row is gone); Compact later reclaims its slot.
func (idx *Index) Remove(fid string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	i, ok := idx.byFID[fid]
	if !ok {
		return
	}
	idx.entries[i].Deleted = true
	idx.deleted++
}

func (idx *Index) rebuildTrees() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rebuildTreesLocked()
}

func (idx *Index) rebuildTreesLocked() {
	if idx.annTreeCount <= 0 || len(idx.entries) < 32 {
		idx.trees = nil
		return
	}
	trees := make([]*annTree, idx.annTreeCount)
	for i := range trees {
		trees[i] = buildTree(idx.entries, int64(i))
	}
	idx.trees = trees
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// persisted is the on-disk shape written to vector_meta.gob with stdlib
// encoding/gob; no .npy file is written (no pack example encodes a real .npy
// file and inventing a binary numpy writer has no grounding).
type persisted struct {
	Dims    int
	Entries []entry
}

func (idx *Index) path() string { return filepath.Join(idx.dir, "vector_meta.gob") }

// Save persists the index to its sidecar file.
func (idx *Index) Save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	f, err := os.Create(idx.path())
	if err != nil {
		return fmt.Errorf("vectorindex: save: %w", err)
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(persisted{Dims: idx.dims, Entries: idx.entries})
}

func (idx *Index) load() error {
	f, err := os.Open(idx.path())
	if err != nil {
		return err
	}
	defer f.Close()
	var p persisted
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return fmt.Errorf("vectorindex: decode: %w", err)
	}
	idx.entries = p.Entries
	idx.byFID = make(map[string]int, len(p.Entries))
	idx.deleted = 0
	for i, e := range p.Entries {
		idx.byFID[e.FID] = i
		if e.Deleted {
			idx.deleted++
		}
	}
	return nil
}
