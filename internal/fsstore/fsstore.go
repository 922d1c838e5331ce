// Package fsstore persists semantic artifacts as YAML-front-matter
// Markdown files under <root>/semantic/ (§6 Storage layout), grounded on
// steveyegge-beads' gopkg.in/yaml.v3 usage for structured on-disk records.
package fsstore

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/ledgermind/internal/model"
)

const schemaVersion = 1

// frontMatter is the YAML document stored between `---` delimiters.
type frontMatter struct {
	Kind          model.ArtifactKind   `yaml:"kind"`
	Source        string               `yaml:"source,omitempty"`
	Timestamp     time.Time            `yaml:"timestamp"`
	SchemaVersion int                  `yaml:"schema_version"`
	Context       frontMatterContext   `yaml:"context"`
}

type frontMatterContext struct {
	Title         string           `yaml:"title"`
	Target        string           `yaml:"target"`
	Status        model.ArtifactStatus `yaml:"status"`
	Rationale     string           `yaml:"rationale"`
	Namespace     string           `yaml:"namespace"`
	Supersedes    []string         `yaml:"supersedes,omitempty"`
	SupersededBy  *string          `yaml:"superseded_by,omitempty"`
	Consequences  []string         `yaml:"consequences,omitempty"`
	Keywords      []string         `yaml:"keywords,omitempty"`
	EvidenceIDs   []int64          `yaml:"evidence_event_ids,omitempty"`
	Confidence    float64          `yaml:"confidence"`
	Phase         model.Phase      `yaml:"phase"`
	Vitality      model.Vitality   `yaml:"vitality"`
	ContentHash   string           `yaml:"content_hash,omitempty"`

	StabilityScore       float64 `yaml:"stability_score"`
	Frequency            int     `yaml:"frequency"`
	HitCount             int     `yaml:"hit_count"`
	Coverage             float64 `yaml:"coverage"`
	EstimatedRemovalCost float64 `yaml:"estimated_removal_cost"`
	EstimatedUtility     float64 `yaml:"estimated_utility"`
	ReinforcementDensity float64 `yaml:"reinforcement_density"`

	Strengths             []string          `yaml:"strengths,omitempty"`
	Objections            []string          `yaml:"objections,omitempty"`
	CounterPatterns       []string          `yaml:"counter_patterns,omitempty"`
	AlternativeIDs        []string          `yaml:"alternative_ids,omitempty"`
	CounterEvidenceIDs    []int64           `yaml:"counter_evidence_event_ids,omitempty"`
	SuggestedSupersedes   []string          `yaml:"suggested_supersedes,omitempty"`
	SuggestedConsequences []string          `yaml:"suggested_consequences,omitempty"`
	ReadyForReview        bool              `yaml:"ready_for_review,omitempty"`
	ProceduralSteps       []model.ProceduralStep `yaml:"procedural_steps,omitempty"`
	ConvertedTo           *string           `yaml:"converted_to,omitempty"`
	MissCount             int               `yaml:"miss_count,omitempty"`
}

// Store reads and writes artifact files under root/semantic.
type Store struct {
	root string
}

func New(root string) *Store { return &Store{root: root} }

// NewFID generates a new artifact identity path: a timestamp plus 8 random
// hex characters, namespaced per §3/§6.
func NewFID(kind model.ArtifactKind, namespace string, now time.Time) (string, error) {
	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("fsstore: generate suffix: %w", err)
	}
	ts := strings.ReplaceAll(now.UTC().Format("20060102_150405.000000"), ".", "_")
	name := fmt.Sprintf("%s_%s_%s.md", kind, ts, hex.EncodeToString(suffix[:]))
	if namespace == "" || namespace == model.DefaultNamespace {
		return name, nil
	}
	return filepath.Join(namespace, name), nil
}

// PathFor resolves fid to its absolute on-disk path, for callers (the
// transaction manager) that need to snapshot the file before mutating it.
func (s *Store) PathFor(fid string) (string, error) {
	return s.pathFor(fid)
}

// pathFor resolves fid to an absolute path, rejecting traversal outside
// root (§7: ValueError for "path-traversal").
func (s *Store) pathFor(fid string) (string, error) {
	clean := filepath.Clean(filepath.Join(s.root, "semantic", fid))
	base := filepath.Clean(filepath.Join(s.root, "semantic"))
	if clean != base && !strings.HasPrefix(clean, base+string(filepath.Separator)) {
		return "", fmt.Errorf("fsstore: fid %q escapes the semantic root", fid)
	}
	return clean, nil
}

// Write serializes a and writes it to its fid's path, creating parent
// namespace directories as needed.
func (s *Store) Write(a model.Artifact) (body string, err error) {
	path, err := s.pathFor(a.FID)
	if err != nil {
		return "", err
	}
	body = Render(a)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("fsstore: mkdir: %w", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("fsstore: write %s: %w", path, err)
	}
	return body, nil
}

// Read loads and parses the artifact at fid.
func (s *Store) Read(fid string) (model.Artifact, error) {
	path, err := s.pathFor(fid)
	if err != nil {
		return model.Artifact{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("fsstore: read %s: %w", path, err)
	}
	return Parse(fid, string(data))
}

// Purge removes the artifact file at fid.
func (s *Store) Purge(fid string) error {
	path, err := s.pathFor(fid)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsstore: purge %s: %w", path, err)
	}
	return nil
}

// Render serializes an Artifact to its on-disk YAML-front-matter + Markdown
// body representation (§6 Artifact format).
func Render(a model.Artifact) string {
	fm := frontMatter{
		Kind:          a.Kind,
		Timestamp:     a.Timestamp,
		SchemaVersion: schemaVersion,
		Context: frontMatterContext{
			Title:                 a.Title,
			Target:                a.Target,
			Status:                a.Status,
			Rationale:             a.Rationale,
			Namespace:             a.Namespace,
			Supersedes:            a.Supersedes,
			SupersededBy:          a.SupersededBy,
			Consequences:          a.Consequences,
			Keywords:              a.Keywords,
			EvidenceIDs:           a.EvidenceIDs,
			Confidence:            a.Confidence,
			Phase:                 a.Phase,
			Vitality:              a.Vitality,
			ContentHash:           a.ContentHash,
			StabilityScore:        a.StabilityScore,
			Frequency:             a.Frequency,
			HitCount:              a.HitCount,
			Coverage:              a.Coverage,
			EstimatedRemovalCost:  a.EstimatedRemovalCost,
			EstimatedUtility:      a.EstimatedUtility,
			ReinforcementDensity:  a.ReinforcementDensity,
			Strengths:             a.Strengths,
			Objections:            a.Objections,
			CounterPatterns:       a.CounterPatterns,
			AlternativeIDs:        a.AlternativeIDs,
			CounterEvidenceIDs:    a.CounterEvidenceIDs,
			SuggestedSupersedes:   a.SuggestedSupersedes,
			SuggestedConsequences: a.SuggestedConsequences,
			ReadyForReview:        a.ReadyForReview,
			ProceduralSteps:       a.ProceduralSteps,
			ConvertedTo:           a.ConvertedTo,
			MissCount:             a.MissCount,
		},
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	_ = enc.Encode(fm)
	_ = enc.Close()
	buf.WriteString("---\n\n")
	buf.WriteString("# ")
	buf.WriteString(a.Title)
	buf.WriteString("\n\n")
	buf.WriteString(a.Rationale)
	buf.WriteString("\n")
	return buf.String()
}

// Parse decodes an on-disk artifact body back into a model.Artifact. The
// parser tolerates pure-YAML legacy files with no Markdown body (§6:
// "tolerates pure-YAML legacy files").
func Parse(fid, data string) (model.Artifact, error) {
	var fm frontMatter
	body := data

	if strings.HasPrefix(strings.TrimLeft(data, "\n"), "---") {
		parts := strings.SplitN(data, "---\n", 3)
		if len(parts) == 3 {
			if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
				return model.Artifact{}, fmt.Errorf("fsstore: parse front-matter of %s: %w", fid, err)
			}
			body = strings.TrimLeft(parts[2], "\n")
		}
	} else {
		if err := yaml.Unmarshal([]byte(data), &fm); err != nil {
			return model.Artifact{}, fmt.Errorf("fsstore: parse legacy yaml %s: %w", fid, err)
		}
	}

	a := model.Artifact{
		FID:                   fid,
		Kind:                  fm.Kind,
		Title:                 fm.Context.Title,
		Target:                fm.Context.Target,
		Rationale:             fm.Context.Rationale,
		Namespace:             fm.Context.Namespace,
		Status:                fm.Context.Status,
		Supersedes:            fm.Context.Supersedes,
		SupersededBy:          fm.Context.SupersededBy,
		Consequences:          fm.Context.Consequences,
		Keywords:              fm.Context.Keywords,
		EvidenceIDs:           fm.Context.EvidenceIDs,
		Confidence:            fm.Context.Confidence,
		Timestamp:             fm.Timestamp,
		Phase:                 fm.Context.Phase,
		Vitality:              fm.Context.Vitality,
		ContentHash:           fm.Context.ContentHash,
		StabilityScore:        fm.Context.StabilityScore,
		Frequency:             fm.Context.Frequency,
		HitCount:              fm.Context.HitCount,
		Coverage:              fm.Context.Coverage,
		EstimatedRemovalCost:  fm.Context.EstimatedRemovalCost,
		EstimatedUtility:      fm.Context.EstimatedUtility,
		ReinforcementDensity:  fm.Context.ReinforcementDensity,
		Strengths:             fm.Context.Strengths,
		Objections:            fm.Context.Objections,
		CounterPatterns:       fm.Context.CounterPatterns,
		AlternativeIDs:        fm.Context.AlternativeIDs,
		CounterEvidenceIDs:    fm.Context.CounterEvidenceIDs,
		SuggestedSupersedes:   fm.Context.SuggestedSupersedes,
		SuggestedConsequences: fm.Context.SuggestedConsequences,
		ReadyForReview:        fm.Context.ReadyForReview,
		ProceduralSteps:       fm.Context.ProceduralSteps,
		ConvertedTo:           fm.Context.ConvertedTo,
		MissCount:             fm.Context.MissCount,
	}
	_ = body // body content duplicates Rationale today; reserved for future rich-body use
	return a, nil
}
