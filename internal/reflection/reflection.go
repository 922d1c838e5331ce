// Package reflection implements C12: incremental, watermark-based event
// clustering and hypothesis generation/evaluation, grounded on akashi's
// conflict-scoring formulas (internal/conflict/scorer.go style: named
// weighted contributions with explicit caps) generalized from decision
// conflict scoring to hypothesis confidence scoring.
package reflection

import (
	"time"

	"github.com/ashita-ai/ledgermind/internal/model"
)

// blacklistedTargets are never clustered on (§4.12 step 2).
var blacklistedTargets = map[string]bool{
	"general": true, "general_development": true, "general_task": true,
	"unknown": true, "none": true, "null": true,
}

// ValidTarget reports whether target is eligible for clustering (§4.12:
// "length >= 3, not in blacklist").
func ValidTarget(target string) bool {
	return len(target) >= 3 && !blacklistedTargets[target]
}

// Cluster aggregates events observed for one target within a reflection
// pass (§4.12 step 2).
type Cluster struct {
	Target      string
	Errors      int
	Successes   float64 // continuous in [0,1] per event
	Commits     int
	EvidenceIDs []int64
	FirstSeen   time.Time
	LastSeen    time.Time
}

// Distillation is one procedural proposal candidate built from a RESULT
// event's preceding trajectory (§4.12 step 1).
type Distillation struct {
	Target      string
	Steps       []model.ProceduralStep
	EvidenceIDs []int64
}

// DistillWindow builds a procedural proposal from the window of events
// preceding a successful RESULT event (§4.12 step 1). target is the
// caller-resolved target: the result event's own target if present,
// otherwise the most recent non-blacklisted target seen in the window.
func DistillWindow(window []model.Event, resultEvent model.Event, target string) Distillation {
	var steps []model.ProceduralStep
	var evidence []int64
	kinds := map[model.EventKind]bool{
		model.KindTask: true, model.KindCall: true, model.KindDecision: true,
		model.KindCommitChange: true, model.KindPrompt: true, model.KindResult: true,
	}
	for _, e := range window {
		if !kinds[e.Kind] {
			continue
		}
		steps = append(steps, model.ProceduralStep{
			Step:            e.Content,
			Rationale:       string(e.Kind),
			ExpectedOutcome: "",
		})
		evidence = append(evidence, e.ID)
	}
	evidence = append(evidence, resultEvent.ID)
	return Distillation{Target: target, Steps: steps, EvidenceIDs: evidence}
}

// HypothesisEvaluation is the result of evaluating an existing proposal
// against newly observed cluster activity (§4.12 step 3).
type HypothesisEvaluation struct {
	Confidence     float64
	Falsified      bool
	ReadyForReview bool
}

// EvaluationParams bundles the configurable reflection thresholds.
type EvaluationParams struct {
	ReadyThreshold      float64
	ObservationWindowDays float64
	MinConfidence       float64
}

// EvaluateHypothesis folds new cluster activity into an existing proposal's
// running error/success counts and recomputes confidence (§4.12 step 3:
// "_evaluate_hypothesis").
func EvaluateHypothesis(priorErrors, priorSuccesses float64, c Cluster, objectionCount int, firstSeen time.Time, p EvaluationParams) HypothesisEvaluation {
	newErrors := priorErrors + float64(c.Errors)
	newSuccesses := priorSuccesses + c.Successes
	total := newErrors + newSuccesses

	if c.Successes > 0 {
		objectionCount++
	}

	var eval HypothesisEvaluation
	if total == 0 {
		return eval
	}

	baseRate := newErrors / total
	epistemicPenalty := (2 * newSuccesses) / (newErrors + 1)
	confidence := baseRate - epistemicPenalty
	eval.Confidence = clamp01(confidence)

	if eval.Confidence <= 0.05 && newSuccesses > newErrors {
		eval.Falsified = true
	}

	observedDays := c.LastSeen.Sub(firstSeen).Hours() / 24
	if eval.Confidence >= p.ReadyThreshold && observedDays >= p.ObservationWindowDays && objectionCount < 2 {
		eval.ReadyForReview = true
	}
	return eval
}

// NewHypothesisParams bundles the thresholds governing when fresh
// hypotheses are emitted for a cluster with no existing proposal (§4.12
// steps 4-6).
type NewHypothesisParams struct {
	ErrorThreshold   int
	SuccessThreshold float64
}

// ProposedHypothesisKind enumerates the kinds of proposals step 4-6 can
// emit for a cluster.
type ProposedHypothesisKind string

const (
	HypothesisStructuralFlaw   ProposedHypothesisKind = "structural_flaw"
	HypothesisEnvironmentalNoise ProposedHypothesisKind = "environmental_noise"
	HypothesisBestPractice     ProposedHypothesisKind = "best_practice"
	HypothesisEvolvingPattern  ProposedHypothesisKind = "evolving_pattern"
)

// ProposedHypothesis is one emitted draft before it becomes a persisted
// proposal artifact.
type ProposedHypothesis struct {
	Kind       ProposedHypothesisKind
	Target     string
	Confidence float64
}

// Title renders h's proposal title in the form scenario 5 expects, e.g.
// "Structural flaw in db_conn" / "Best Practice for db_conn".
func (h ProposedHypothesis) Title() string {
	switch h.Kind {
	case HypothesisStructuralFlaw:
		return "Structural flaw in " + h.Target
	case HypothesisEnvironmentalNoise:
		return "Environmental noise in " + h.Target
	case HypothesisBestPractice:
		return "Best Practice for " + h.Target
	case HypothesisEvolvingPattern:
		return "Evolving Pattern in " + h.Target
	default:
		return string(h.Kind) + ": " + h.Target
	}
}

// DistillationTitle renders a procedural distillation's proposal title
// (§4.12 step 1).
func DistillationTitle(target string) string {
	return "Procedural Optimization for " + target
}

// NewHypotheses computes which fresh proposals a cluster warrants, given
// whether an active decision already exists for its target (§4.12 steps
// 4-6). hasStrongProposal means an existing (non-falsified) proposal
// already covers this target, in which case step 4's competing error pair
// is skipped in favor of EvaluateHypothesis; steps 5 and 6 still apply.
func NewHypotheses(c Cluster, p NewHypothesisParams, hasStrongProposal, hasActiveDecision bool) []ProposedHypothesis {
	var out []ProposedHypothesis

	if !hasStrongProposal && c.Errors >= p.ErrorThreshold {
		out = append(out,
			ProposedHypothesis{Kind: HypothesisStructuralFlaw, Target: c.Target, Confidence: 0.5},
			ProposedHypothesis{Kind: HypothesisEnvironmentalNoise, Target: c.Target, Confidence: 0.4},
		)
	}
	if c.Successes >= p.SuccessThreshold && !hasActiveDecision {
		out = append(out, ProposedHypothesis{Kind: HypothesisBestPractice, Target: c.Target, Confidence: 0.5})
	}
	if c.Commits >= 2 && !hasActiveDecision {
		out = append(out, ProposedHypothesis{Kind: HypothesisEvolvingPattern, Target: c.Target, Confidence: 0.5})
	}
	return out
}

// ShouldAutoAccept reports whether a draft proposal should be automatically
// accepted (§4.12 step 8).
func ShouldAutoAccept(confidence float64, objectionCount int, autoAcceptThreshold float64) bool {
	return confidence >= autoAcceptThreshold && objectionCount == 0
}

// DecayDraft applies confidence decay to an unprocessed draft and reports
// whether it should be rejected (§4.12 step 7).
func DecayDraft(confidence, decayRate, minConfidence float64) (newConfidence float64, reject bool) {
	newConfidence = clamp01(confidence - decayRate)
	return newConfidence, newConfidence < minConfidence
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
