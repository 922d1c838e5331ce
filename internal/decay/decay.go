// Package decay implements C11: episodic archival/pruning and semantic
// confidence decay, grounded on akashi's background-loop batch-update
// style in akashi.go (periodic maintenance goroutines operating over a
// snapshot and returning a summary).
package decay

import (
	"time"

	"github.com/ashita-ai/ledgermind/internal/model"
)

// EpisodicPlan is the (archive_ids, prune_ids, retained_count) result of
// episodic decay (§4.11).
type EpisodicPlan struct {
	ArchiveIDs    []int64
	PruneIDs      []int64
	RetainedCount int
}

// PlanEpisodic computes which events to archive or prune. Protected kinds
// (decision, constraint) and linked events are never touched (I2).
func PlanEpisodic(events []model.Event, ttlDays int, now time.Time) EpisodicPlan {
	var plan EpisodicPlan
	ttl := time.Duration(ttlDays) * 24 * time.Hour

	for _, e := range events {
		if e.Immortal() || model.ProtectedEpisodicKinds[e.Kind] {
			plan.RetainedCount++
			continue
		}
		age := now.Sub(e.Timestamp)
		switch {
		case e.Status == model.EventActive && age > ttl:
			plan.ArchiveIDs = append(plan.ArchiveIDs, e.ID)
		case e.Status == model.EventArchived && age > ttl:
			plan.PruneIDs = append(plan.PruneIDs, e.ID)
		default:
			plan.RetainedCount++
		}
	}
	return plan
}

// SemanticOutcome describes what should happen to one artifact after decay
// is applied (§4.11 Semantic decay).
type SemanticOutcome struct {
	FID           string
	NewConfidence float64
	ForgetTarget  bool
	Deprecate     bool
}

// Params bundles the configurable decay thresholds (§4.11, §9 Open
// Questions: globally configurable via internal/config).
type Params struct {
	BaseRate           float64 // default 0.05 per 7-day step
	ForgetThreshold    float64 // default 0.1
	DeprecateThreshold float64 // default 0.5
	EpisodicTTLDays    int     // default 30
}

// slowKinds decay at a third of the base rate (§4.11). Only decisions and
// constraints are listed: the artifact model defines no assumption kind.
var slowKinds = map[model.ArtifactKind]bool{
	model.ArtifactDecision:   true,
	model.ArtifactConstraint: true,
}

// PlanSemantic computes decay outcomes for every eligible artifact
// (status in {active, deprecated}).
func PlanSemantic(artifacts []model.Artifact, p Params, now time.Time) []SemanticOutcome {
	var out []SemanticOutcome
	for _, a := range artifacts {
		if a.Status != model.StatusActive && a.Status != model.StatusDeprecated {
			continue
		}
		lastActivity := a.Timestamp
		if a.LastHitAt != nil && a.LastHitAt.After(lastActivity) {
			lastActivity = *a.LastHitAt
		}
		daysInactive := now.Sub(lastActivity).Hours() / 24

		rate := p.BaseRate
		if slowKinds[a.Kind] {
			rate /= 3
		}

		newConf := a.Confidence
		if daysInactive > 7 {
			steps := float64(int(daysInactive / 7))
			newConf -= rate * steps
			if newConf < 0 {
				newConf = 0
			}
		}

		outcome := SemanticOutcome{FID: a.FID, NewConfidence: newConf}
		if newConf < p.ForgetThreshold {
			outcome.ForgetTarget = true
		} else if (a.Kind == model.ArtifactDecision || a.Kind == model.ArtifactConstraint) &&
			newConf < p.DeprecateThreshold && a.Status == model.StatusActive {
			outcome.Deprecate = true
		}
		out = append(out, outcome)
	}
	return out
}
