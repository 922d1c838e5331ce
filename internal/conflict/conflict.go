// Package conflict implements C8, active-target conflict detection and
// resolution-intent validation, grounded on akashi's DecisionConflict
// lifecycle model (internal/model/decision.go) adapted from the
// inter-agent conflict workflow to this spec's single active-decision
// invariant (I4).
package conflict

import (
	"context"
	"fmt"

	"github.com/ashita-ai/ledgermind/internal/model"
)

// ActiveFIDLookup is the narrow interface conflict checking needs from the
// metadata index (C3), kept minimal so this package has no direct
// dependency on metastore's sqlite internals.
type ActiveFIDLookup interface {
	GetActiveFID(ctx context.Context, target, namespace string) (string, error)
}

// Status tracks a conflict record's lifecycle once surfaced, mirrored on
// akashi's DecisionConflict status column (open/investigating/resolved).
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// Conflict describes one detected active-target collision.
type Conflict struct {
	Target      string
	Namespace   string
	Competitors []string
	Status      Status
}

// CheckForConflicts returns a non-nil Conflict when an active decision
// already exists for (target, namespace) (§4.8: delegated to
// C3.get_active_fid). ErrNotFound from the lookup means no conflict.
func CheckForConflicts(ctx context.Context, lookup ActiveFIDLookup, notFound error, target, namespace string) (*Conflict, error) {
	fid, err := lookup.GetActiveFID(ctx, target, namespace)
	if err != nil {
		if err == notFound {
			return nil, nil
		}
		return nil, fmt.Errorf("conflict: check_for_conflicts: %w", err)
	}
	return &Conflict{Target: target, Namespace: namespace, Competitors: []string{fid}, Status: StatusOpen}, nil
}

// ValidateIntent reports whether intent legitimately resolves every file in
// conflictFiles (§4.8 validate_intent): false for IntentAbort; otherwise
// true iff every conflict file is named in intent.TargetDecisionIDs.
func ValidateIntent(intent model.ResolutionIntent, conflictFiles []string) bool {
	if intent.Type == model.IntentAbort {
		return false
	}
	covered := make(map[string]bool, len(intent.TargetDecisionIDs))
	for _, t := range intent.TargetDecisionIDs {
		covered[t] = true
	}
	for _, f := range conflictFiles {
		if !covered[f] {
			return false
		}
	}
	return true
}

// Arbiter is the optional gray-zone callback from §4.10/§9: given the new
// and a competing artifact, returns "SUPERSEDE", "CONFLICT", or anything
// else (treated as CONFLICT per the documented observed behavior, §9 Open
// Questions resolution below).
type Arbiter func(newArt, old model.Artifact) string

const (
	ArbiterSupersede = "SUPERSEDE"
	ArbiterConflict  = "CONFLICT"
)

// Resolution is the auto-resolution engine's verdict for one competitor
// (§4.9 record_decision auto-resolution thresholds).
type Resolution int

const (
	ResolveSupersede Resolution = iota
	ResolveConflict
	ResolveDefer // ambiguous until a title-similarity check runs
)

const (
	titleSimilarityElevation = 0.90
	autoSupersedeThreshold   = 0.70
	grayZoneLowerBound       = 0.50
)

// Resolve applies §4.9's thresholds to one (newArt, competitor) pair:
// title similarity >= 0.90 elevates the effective score; cosine > 0.70
// auto-supersedes; [0.50, 0.70] defers to arbiter (SUPERSEDE/CONFLICT,
// anything else is a hard conflict per the documented behavior); below 0.50
// is a hard conflict.
func Resolve(newArt, competitor model.Artifact, cosine, titleSimilarity float64, arbiter Arbiter) Resolution {
	score := cosine
	if titleSimilarity >= titleSimilarityElevation && score < autoSupersedeThreshold {
		score = autoSupersedeThreshold
	}

	switch {
	case score > autoSupersedeThreshold:
		return ResolveSupersede
	case score >= grayZoneLowerBound:
		if arbiter == nil {
			return ResolveConflict
		}
		switch arbiter(newArt, competitor) {
		case ArbiterSupersede:
			return ResolveSupersede
		default:
			// Including ArbiterConflict and any unrecognized value: §9
			// records the observed behavior as "do nothing and continue to
			// hard conflict" for non-SUPERSEDE/CONFLICT arbiter replies, so
			// this branch intentionally does not special-case
			// ArbiterConflict differently from garbage input.
			return ResolveConflict
		}
	default:
		return ResolveConflict
	}
}
