// targets.go implements the target registry referenced by record_decision
// (§4.9): exact match, then alias, then case-insensitive, registering novel
// targets as seen; plus fuzzy suggestions on conflict (SPEC_FULL.md
// supplemented feature C.2), grounded on stdlib string distance since no
// pack repo imports a fuzzy-matching library.
package memory

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
)

// TargetRegistry normalizes target names and tracks known aliases,
// persisted as targets.json (§6 Storage layout).
type TargetRegistry struct {
	mu      sync.RWMutex
	path    string
	known   map[string]string // lowercased -> canonical
	aliases map[string]string // alias (lowercased) -> canonical
}

type registrySnapshot struct {
	Known   map[string]string `json:"known"`
	Aliases map[string]string `json:"aliases"`
}

// NewTargetRegistry loads targets.json from path if present, or starts
// empty.
func NewTargetRegistry(path string) (*TargetRegistry, error) {
	r := &TargetRegistry{path: path, known: map[string]string{}, aliases: map[string]string{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	var snap registrySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Known != nil {
		r.known = snap.Known
	}
	if snap.Aliases != nil {
		r.aliases = snap.Aliases
	}
	return r, nil
}

// Save persists the registry to its backing file.
func (r *TargetRegistry) Save() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, err := json.MarshalIndent(registrySnapshot{Known: r.known, Aliases: r.aliases}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0o644)
}

// Normalize resolves raw to its canonical target name: exact match first,
// then alias, then case-insensitive match against a known target;
// otherwise registers raw itself as a new canonical target (§4.9: "target
// is normalized via a target registry (exact -> alias -> case-insensitive;
// registers novel targets)").
func (r *TargetRegistry) Normalize(raw string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if canonical, ok := r.known[raw]; ok {
		return canonical
	}
	if canonical, ok := r.aliases[raw]; ok {
		return canonical
	}
	lower := strings.ToLower(raw)
	if canonical, ok := r.known[lower]; ok {
		return canonical
	}
	if canonical, ok := r.aliases[lower]; ok {
		return canonical
	}

	r.known[raw] = raw
	r.known[lower] = raw
	return raw
}

// RegisterAlias records alias as pointing at canonical.
func (r *TargetRegistry) RegisterAlias(alias, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = canonical
	r.aliases[strings.ToLower(alias)] = canonical
}

// Suggest returns up to n known canonical targets within editDistance of
// target, closest first (supplemented feature: fuzzy target suggestions on
// ConflictError).
func (r *TargetRegistry) Suggest(target string, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	var candidates []suggestCandidate
	for _, canonical := range r.known {
		if seen[canonical] || canonical == target {
			continue
		}
		seen[canonical] = true
		d := levenshtein(strings.ToLower(target), strings.ToLower(canonical))
		if d <= maxSuggestDistance(target) {
			candidates = append(candidates, suggestCandidate{canonical, d})
		}
	}
	sortByDist(candidates)
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

func maxSuggestDistance(s string) int {
	if len(s) <= 4 {
		return 1
	}
	return 2
}

type suggestCandidate struct {
	name string
	dist int
}

func sortByDist(s []suggestCandidate) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].dist < s[j-1].dist; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// levenshtein computes the edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
