package fsstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ledgermind/internal/model"
)

func sampleArtifact(fid string) model.Artifact {
	return model.Artifact{
		FID:         fid,
		Kind:        model.ArtifactDecision,
		Title:       "Use sqlite for the episodic log",
		Target:      "db_conn",
		Rationale:   "sqlite keeps the engine single-binary and dependency-free for embedders.",
		Namespace:   "default",
		Status:      model.StatusActive,
		Supersedes:  []string{"decision_20240101_000000_000000_aaaaaaaa.md"},
		Consequences: []string{"migrations must stay backwards compatible"},
		Keywords:    []string{"storage", "sqlite"},
		EvidenceIDs: []int64{1, 2, 3},
		Confidence:  0.82,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Phase:       model.PhaseCanonical,
		Vitality:    model.VitalityActive,
		ContentHash: "deadbeef",
	}
}

// TestRenderParseRoundTrip verifies §6's parse∘stringify identity law: an
// artifact rendered to Markdown and parsed back yields an equal value.
func TestRenderParseRoundTrip(t *testing.T) {
	fid := "decisions/decision_20260301_120000_000000_aabbccdd.md"
	original := sampleArtifact(fid)

	body := Render(original)
	parsed, err := Parse(fid, body)
	require.NoError(t, err)

	assert.Equal(t, original, parsed)
}

func TestRenderParseRoundTrip_Proposal(t *testing.T) {
	fid := "proposal_20260301_120000_000000_eeff0011.md"
	original := model.Artifact{
		FID:             fid,
		Kind:            model.ArtifactProposal,
		Title:           "Structural flaw in db_conn",
		Target:          "db_conn",
		Rationale:       "errors clustered above threshold.",
		Namespace:       model.DefaultNamespace,
		Status:          model.StatusDraft,
		Confidence:      0.5,
		Timestamp:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Phase:           model.PhasePattern,
		Vitality:        model.VitalityActive,
		ProceduralSteps: []model.ProceduralStep{{Step: "open pooled connection", Rationale: "call"}},
		ReadyForReview:  true,
	}

	body := Render(original)
	parsed, err := Parse(fid, body)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParse_TolerantOfLegacyPureYAML(t *testing.T) {
	fid := "legacy.md"
	legacy := "kind: decision\nschema_version: 1\ntimestamp: 2026-01-01T00:00:00Z\ncontext:\n  title: Legacy\n  target: db_conn\n  status: active\n  rationale: old format\n  namespace: default\n  confidence: 0.7\n  phase: canonical\n  vitality: active\n"
	a, err := Parse(fid, legacy)
	require.NoError(t, err)
	assert.Equal(t, "Legacy", a.Title)
	assert.Equal(t, 0.7, a.Confidence)
}

func TestStore_WriteReadPurge(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	fid, err := NewFID(model.ArtifactDecision, model.DefaultNamespace, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	a := sampleArtifact(fid)
	_, err = s.Write(a)
	require.NoError(t, err)

	path, err := s.PathFor(fid)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "semantic", fid), path)

	got, err := s.Read(fid)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	require.NoError(t, s.Purge(fid))
	_, err = s.Read(fid)
	assert.Error(t, err)
}

func TestPathFor_RejectsTraversal(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.pathFor("../../etc/passwd")
	assert.Error(t, err)
}

func TestNewFID_NamespacesNonDefault(t *testing.T) {
	fid, err := NewFID(model.ArtifactDecision, "team-a", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, filepath.Dir(fid) == "team-a")
}
