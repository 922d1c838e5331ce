package reflection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ledgermind/internal/model"
)

func TestValidTarget(t *testing.T) {
	cases := []struct {
		target string
		valid  bool
	}{
		{"db_conn", true},
		{"general", false},
		{"general_development", false},
		{"general_task", false},
		{"unknown", false},
		{"none", false},
		{"null", false},
		{"ab", false}, // length < 3
		{"abc", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.valid, ValidTarget(c.target), "target=%q", c.target)
	}
}

func TestProposedHypothesisTitle(t *testing.T) {
	cases := []struct {
		kind  ProposedHypothesisKind
		want  string
	}{
		{HypothesisStructuralFlaw, "Structural flaw in db_conn"},
		{HypothesisEnvironmentalNoise, "Environmental noise in db_conn"},
		{HypothesisBestPractice, "Best Practice for db_conn"},
		{HypothesisEvolvingPattern, "Evolving Pattern in db_conn"},
	}
	for _, c := range cases {
		h := ProposedHypothesis{Kind: c.kind, Target: "db_conn"}
		assert.Equal(t, c.want, h.Title())
	}
}

func TestDistillationTitle(t *testing.T) {
	assert.Equal(t, "Procedural Optimization for db_conn", DistillationTitle("db_conn"))
}

// TestDistillWindow mirrors original_source's distill_trajectories: only
// task/call/decision/commit_change/prompt/result events become steps, and
// the result event's own id is always appended to the evidence list even
// when no step precedes it.
func TestDistillWindow(t *testing.T) {
	now := time.Now()
	window := []model.Event{
		{ID: 1, Kind: model.KindPrompt, Content: "investigate connection pool"},
		{ID: 2, Kind: model.KindContextSnapshot, Content: "irrelevant, not a step kind"},
		{ID: 3, Kind: model.KindCall, Content: "opened a pooled connection"},
	}
	result := model.Event{ID: 4, Kind: model.KindResult, Content: "success", Timestamp: now}

	d := DistillWindow(window, result, "db_conn")
	require.Len(t, d.Steps, 2)
	assert.Equal(t, "investigate connection pool", d.Steps[0].Step)
	assert.Equal(t, "opened a pooled connection", d.Steps[1].Step)
	assert.Equal(t, []int64{1, 3, 4}, d.EvidenceIDs)
	assert.Equal(t, "db_conn", d.Target)
}

func TestDistillWindow_NoMatchingKinds(t *testing.T) {
	result := model.Event{ID: 9, Kind: model.KindResult}
	d := DistillWindow(nil, result, "style")
	assert.Empty(t, d.Steps)
	assert.Equal(t, []int64{9}, d.EvidenceIDs)
}

// TestEvaluateHypothesis_Falsification reproduces §4.12 step 3's
// falsification condition: confidence <= 0.05 and successes > errors.
func TestEvaluateHypothesis_Falsification(t *testing.T) {
	c := Cluster{Errors: 0, Successes: 5, LastSeen: time.Now()}
	eval := EvaluateHypothesis(0, 0, c, 0, time.Now().Add(-time.Hour), EvaluationParams{})
	assert.True(t, eval.Falsified)
	assert.Equal(t, 0.0, eval.Confidence)
}

func TestEvaluateHypothesis_ReadyForReview(t *testing.T) {
	firstSeen := time.Now().Add(-48 * time.Hour)
	c := Cluster{Errors: 10, Successes: 0, LastSeen: time.Now()}
	p := EvaluationParams{ReadyThreshold: 0.5, ObservationWindowDays: 1, MinConfidence: 0.3}
	eval := EvaluateHypothesis(0, 0, c, 0, firstSeen, p)
	assert.True(t, eval.ReadyForReview)
	assert.False(t, eval.Falsified)
}

func TestEvaluateHypothesis_ZeroTotalIsNoOp(t *testing.T) {
	eval := EvaluateHypothesis(0, 0, Cluster{}, 0, time.Now(), EvaluationParams{})
	assert.Zero(t, eval.Confidence)
	assert.False(t, eval.Falsified)
	assert.False(t, eval.ReadyForReview)
}

func TestNewHypotheses(t *testing.T) {
	p := NewHypothesisParams{ErrorThreshold: 2, SuccessThreshold: 3}

	errCluster := Cluster{Target: "db_conn", Errors: 5}
	out := NewHypotheses(errCluster, p, false, false)
	require.Len(t, out, 2)
	assert.Equal(t, HypothesisStructuralFlaw, out[0].Kind)
	assert.Equal(t, HypothesisEnvironmentalNoise, out[1].Kind)

	// A strong existing proposal suppresses steps 4-6's competing pair.
	out = NewHypotheses(errCluster, p, true, false)
	assert.Empty(t, out)

	successCluster := Cluster{Target: "style", Successes: 4}
	out = NewHypotheses(successCluster, p, false, false)
	require.Len(t, out, 1)
	assert.Equal(t, HypothesisBestPractice, out[0].Kind)

	// An active decision already covering the target suppresses the
	// best-practice/evolving-pattern proposals.
	out = NewHypotheses(successCluster, p, false, true)
	assert.Empty(t, out)

	commitCluster := Cluster{Target: "ci", Commits: 3}
	out = NewHypotheses(commitCluster, p, false, false)
	require.Len(t, out, 1)
	assert.Equal(t, HypothesisEvolvingPattern, out[0].Kind)
}

func TestShouldAutoAccept(t *testing.T) {
	assert.True(t, ShouldAutoAccept(0.95, 0, 0.9))
	assert.False(t, ShouldAutoAccept(0.95, 1, 0.9))
	assert.False(t, ShouldAutoAccept(0.5, 0, 0.9))
}

func TestDecayDraft(t *testing.T) {
	newConf, reject := DecayDraft(0.35, 0.05, 0.3)
	assert.InDelta(t, 0.30, newConf, 1e-9)
	assert.False(t, reject)

	newConf, reject = DecayDraft(0.32, 0.05, 0.3)
	assert.InDelta(t, 0.27, newConf, 1e-9)
	assert.True(t, reject)

	// Never goes negative.
	newConf, reject = DecayDraft(0.01, 0.5, 0.3)
	assert.Zero(t, newConf)
	assert.True(t, reject)
}
