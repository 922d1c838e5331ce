// Package integrity implements C7, the integrity checker that enforces
// I1-I5 over the semantic artifact store, with an incremental (path,
// mtime_ns) hash cache and a DFS cycle check, grounded on akashi's
// internal/integrity/integrity.go (ComputeContentHash, BuildMerkleRoot)
// adapted from per-decision content hashing to whole-repository scan
// caching.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/ashita-ai/ledgermind/internal/model"
)

// Violation names the offending fid and invariant (mirrors the root
// package's IntegrityViolation so this package stays free of a dependency
// on root, per the teacher's internal-package isolation style).
type Violation struct {
	Invariant string
	FID       string
	Detail    string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("integrity: %s violated at %q: %s", v.Invariant, v.FID, v.Detail)
}

// fileStamp is one entry of the incremental scan cache (§4.7: "cached
// (path, mtime_ns) hash per repository").
type fileStamp struct {
	Path    string
	MtimeNS int64
}

// Cache tracks per-file stamps plus the last computed state hash, so a scan
// with an unchanged stamp set and force=false is a no-op (§4.7).
type Cache struct {
	stamps    map[string]fileStamp
	stateHash string
}

// NewCache returns an empty scan cache.
func NewCache() *Cache {
	return &Cache{stamps: map[string]fileStamp{}}
}

// ComputeContentHash hashes an artifact's canonical identity-bearing
// fields, grounded directly on akashi's ComputeContentHash: a stable,
// order-independent digest over the fields that define the artifact's
// meaning rather than its storage representation.
func ComputeContentHash(a model.Artifact) string {
	h := sha256.New()
	fmt.Fprintf(h, "v1\x00%s\x00%s\x00%s\x00%s\x00%s\x00",
		a.FID, a.Kind, a.Title, a.Target, a.Rationale)

	keywords := append([]string(nil), a.Keywords...)
	sort.Strings(keywords)
	for _, k := range keywords {
		fmt.Fprintf(h, "%s\x00", k)
	}
	supersedes := append([]string(nil), a.Supersedes...)
	sort.Strings(supersedes)
	for _, s := range supersedes {
		fmt.Fprintf(h, "%s\x00", s)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hashPair combines two hex digests into one, the Merkle-tree building
// block (grounded on akashi's hashPair).
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot folds a sorted list of per-artifact content hashes into a
// single root hash representing the whole store's state, grounded on
// akashi's BuildMerkleRoot (used there per-decision-batch, here
// whole-repository).
func BuildMerkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		return hex.EncodeToString(sha256.New().Sum(nil))
	}
	level := append([]string(nil), hashes...)
	sort.Strings(level)
	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// CheckChanged reports whether the given stamps differ from the cache's
// last-seen set, and which fids are newly changed (§4.7: "incrementally
// parse only newly changed files").
func (c *Cache) CheckChanged(stamps map[string]fileStamp) (changed []string, unchanged bool) {
	if len(stamps) == len(c.stamps) {
		same := true
		for path, st := range stamps {
			if prev, ok := c.stamps[path]; !ok || prev != st {
				same = false
				break
			}
		}
		if same {
			return nil, true
		}
	}
	for path, st := range stamps {
		if prev, ok := c.stamps[path]; !ok || prev != st {
			changed = append(changed, path)
		}
	}
	return changed, false
}

// Commit records the new stamp set and state hash after a scan completes.
func (c *Cache) Commit(stamps map[string]fileStamp, stateHash string) {
	c.stamps = stamps
	c.stateHash = stateHash
}

// StateHash returns the cache's last committed state hash.
func (c *Cache) StateHash() string { return c.stateHash }

// Scanner enforces I1-I5 over a snapshot of artifacts and rows.
type Scanner struct{}

func NewScanner() *Scanner { return &Scanner{} }

// ScanInput is the data a scan needs: every artifact (for I1/I3/I5) plus
// the metadata index's view of active decisions per (target, namespace)
// (for I4).
type ScanInput struct {
	Artifacts []model.Artifact
}

// Scan enforces I1, I3, I4, I5 (I2 is enforced at the episodic store layer
// by refusing to physically prune linked rows; see internal/episodic) and
// returns the first violation encountered, or nil.
func (s *Scanner) Scan(in ScanInput) *Violation {
	byFID := make(map[string]model.Artifact, len(in.Artifacts))
	for _, a := range in.Artifacts {
		byFID[a.FID] = a
	}

	activeByTarget := map[string]string{} // "namespace\x00target" -> fid

	for _, a := range in.Artifacts {
		// I1 Schema: every artifact parses with a populated kind and
		// content (title/rationale stand in for "context" here, since this
		// module's artifact has no freeform context blob).
		if a.Kind == "" {
			return &Violation{Invariant: "I1", FID: a.FID, Detail: "missing kind"}
		}
		if a.Title == "" && a.Rationale == "" {
			return &Violation{Invariant: "I1", FID: a.FID, Detail: "missing title and rationale"}
		}

		// I3 Bidirectional supersede.
		if a.SupersededBy != nil && *a.SupersededBy != "" {
			successor, ok := byFID[*a.SupersededBy]
			if !ok {
				return &Violation{Invariant: "I3", FID: a.FID, Detail: fmt.Sprintf("superseded_by %q does not exist", *a.SupersededBy)}
			}
			if !containsStr(successor.Supersedes, a.FID) {
				return &Violation{Invariant: "I3", FID: a.FID, Detail: fmt.Sprintf("successor %q does not list %q in supersedes", *a.SupersededBy, a.FID)}
			}
		}
		for _, pred := range a.Supersedes {
			predArt, ok := byFID[pred]
			if !ok {
				return &Violation{Invariant: "I3", FID: a.FID, Detail: fmt.Sprintf("supersedes %q does not exist", pred)}
			}
			if predArt.SupersededBy == nil || *predArt.SupersededBy != a.FID {
				return &Violation{Invariant: "I3", FID: a.FID, Detail: fmt.Sprintf("predecessor %q does not point back via superseded_by", pred)}
			}
		}

		// I4 Single active per (target, namespace, kind=decision).
		if a.Status == model.StatusActive && a.Kind == model.ArtifactDecision {
			key := a.Namespace + "\x00" + a.Target
			if existing, ok := activeByTarget[key]; ok && existing != a.FID {
				return &Violation{Invariant: "I4", FID: a.FID,
					Detail: fmt.Sprintf("competes with active decision %q for target %q in namespace %q", existing, a.Target, a.Namespace)}
			}
			activeByTarget[key] = a.FID
		}
	}

	// I5 Acyclic evolution: DFS over superseded_by with a stack set.
	if fid := findCycle(byFID); fid != "" {
		return &Violation{Invariant: "I5", FID: fid, Detail: "supersede chain contains a cycle"}
	}

	return nil
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// findCycle returns the fid where a cycle was detected, or "" if the
// superseded_by relation is acyclic.
func findCycle(byFID map[string]model.Artifact) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byFID))

	var visit func(fid string) bool
	visit = func(fid string) bool {
		color[fid] = gray
		a, ok := byFID[fid]
		if ok && a.SupersededBy != nil && *a.SupersededBy != "" {
			next := *a.SupersededBy
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[fid] = black
		return false
	}

	for fid := range byFID {
		if color[fid] == white {
			if visit(fid) {
				return fid
			}
		}
	}
	return ""
}
