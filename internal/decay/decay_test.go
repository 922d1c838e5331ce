package decay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/ledgermind/internal/model"
)

func TestPlanEpisodic_ProtectedAndLinkedAreRetained(t *testing.T) {
	now := time.Now()
	linked := "artifacts/decisions/x.md"
	events := []model.Event{
		{ID: 1, Kind: model.KindDecision, Status: model.EventActive, Timestamp: now.Add(-60 * 24 * time.Hour)},
		{ID: 2, Kind: model.KindError, Status: model.EventActive, Timestamp: now.Add(-60 * 24 * time.Hour), LinkedID: &linked},
		{ID: 3, Kind: model.KindError, Status: model.EventActive, Timestamp: now.Add(-60 * 24 * time.Hour)},
	}
	plan := PlanEpisodic(events, 30, now)
	assert.Equal(t, 2, plan.RetainedCount)
	assert.Equal(t, []int64{3}, plan.ArchiveIDs)
	assert.Empty(t, plan.PruneIDs)
}

// TestPlanEpisodic_BackdateFourteenDays grounds scenario 6: a 14-day
// backdate against a 30-day TTL should neither archive nor prune.
func TestPlanEpisodic_BackdateFourteenDays(t *testing.T) {
	now := time.Now()
	events := []model.Event{
		{ID: 1, Kind: model.KindResult, Status: model.EventActive, Timestamp: now.Add(-14 * 24 * time.Hour)},
	}
	plan := PlanEpisodic(events, 30, now)
	assert.Equal(t, 1, plan.RetainedCount)
	assert.Empty(t, plan.ArchiveIDs)
	assert.Empty(t, plan.PruneIDs)
}

func TestPlanEpisodic_ArchivedPastTTLIsPruned(t *testing.T) {
	now := time.Now()
	events := []model.Event{
		{ID: 5, Kind: model.KindResult, Status: model.EventArchived, Timestamp: now.Add(-90 * 24 * time.Hour)},
	}
	plan := PlanEpisodic(events, 30, now)
	assert.Equal(t, []int64{5}, plan.PruneIDs)
	assert.Empty(t, plan.ArchiveIDs)
}

func TestPlanSemantic_NoDecayWithinSevenDays(t *testing.T) {
	now := time.Now()
	a := model.Artifact{FID: "a", Kind: model.ArtifactDecision, Status: model.StatusActive, Confidence: 0.9, Timestamp: now.Add(-3 * 24 * time.Hour)}
	out := PlanSemantic([]model.Artifact{a}, Params{BaseRate: 0.05, ForgetThreshold: 0.1, DeprecateThreshold: 0.5}, now)
	assert.Equal(t, 0.9, out[0].NewConfidence)
	assert.False(t, out[0].ForgetTarget)
	assert.False(t, out[0].Deprecate)
}

func TestPlanSemantic_SlowKindsDecayAtThirdRate(t *testing.T) {
	now := time.Now()
	ts := now.Add(-21 * 24 * time.Hour) // 3 steps of 7 days
	decision := model.Artifact{FID: "d", Kind: model.ArtifactDecision, Status: model.StatusActive, Confidence: 0.9, Timestamp: ts}
	proposal := model.Artifact{FID: "p", Kind: model.ArtifactProposal, Status: model.StatusActive, Confidence: 0.9, Timestamp: ts}

	out := PlanSemantic([]model.Artifact{decision, proposal}, Params{BaseRate: 0.06, ForgetThreshold: 0.1, DeprecateThreshold: 0.5}, now)

	var decisionOut, proposalOut SemanticOutcome
	for _, o := range out {
		if o.FID == "d" {
			decisionOut = o
		} else {
			proposalOut = o
		}
	}
	assert.InDelta(t, 0.9-0.02*3, decisionOut.NewConfidence, 1e-9) // 0.06/3 per step
	assert.InDelta(t, 0.9-0.06*3, proposalOut.NewConfidence, 1e-9)
}

func TestPlanSemantic_ForgetAndDeprecateThresholds(t *testing.T) {
	now := time.Now()
	ts := now.Add(-140 * 24 * time.Hour) // 20 steps

	forgotten := model.Artifact{FID: "forget", Kind: model.ArtifactProposal, Status: model.StatusActive, Confidence: 0.3, Timestamp: ts}
	deprecated := model.Artifact{FID: "deprecate", Kind: model.ArtifactDecision, Status: model.StatusActive, Confidence: 0.6, Timestamp: ts}

	out := PlanSemantic([]model.Artifact{forgotten, deprecated}, Params{BaseRate: 0.03, ForgetThreshold: 0.1, DeprecateThreshold: 0.55}, now)

	byFID := map[string]SemanticOutcome{}
	for _, o := range out {
		byFID[o.FID] = o
	}
	assert.True(t, byFID["forget"].ForgetTarget)
	assert.True(t, byFID["deprecate"].Deprecate)
	assert.False(t, byFID["deprecate"].ForgetTarget)
}

func TestPlanSemantic_SkipsInactiveStatuses(t *testing.T) {
	now := time.Now()
	a := model.Artifact{FID: "rejected", Kind: model.ArtifactProposal, Status: model.StatusRejected, Confidence: 0.9, Timestamp: now.Add(-100 * 24 * time.Hour)}
	out := PlanSemantic([]model.Artifact{a}, Params{BaseRate: 0.05, ForgetThreshold: 0.1, DeprecateThreshold: 0.5}, now)
	assert.Empty(t, out)
}
