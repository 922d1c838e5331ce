// Package router implements C9: a pure function deciding whether an
// inbound event is persisted and to which store, gated by trust boundary
// and any open conflict, grounded on akashi's policy-gate style in
// akashi.go (trust checks ahead of storage calls) generalized into a
// standalone pure decision function.
package router

import (
	"fmt"

	"github.com/ashita-ai/ledgermind/internal/model"
)

// Decide is the C9 router (§4.9): a pure function over (event, optional
// intent, trust_boundary, conflict state).
func Decide(e model.Event, intent *model.ResolutionIntent, trust model.TrustBoundary, conflictFiles []string, intentCovers func(model.ResolutionIntent, []string) bool) model.MemoryDecision {
	if trust == model.TrustHumanOnly && e.Source == model.SourceAgent && model.SemanticKinds[e.Kind] {
		return model.MemoryDecision{
			ShouldPersist: false,
			StoreType:     model.StoreNone,
			Reason:        "trust boundary human_only blocks agent-authored semantic events",
			Priority:      0,
		}
	}

	if len(conflictFiles) > 0 {
		if intent == nil {
			return model.MemoryDecision{
				ShouldPersist: false,
				StoreType:     model.StoreNone,
				Reason:        fmt.Sprintf("CONFLICT: active decision(s) exist: %v", conflictFiles),
				Priority:      0,
			}
		}
		if !intentCovers(*intent, conflictFiles) {
			return model.MemoryDecision{
				ShouldPersist: false,
				StoreType:     model.StoreNone,
				Reason:        fmt.Sprintf("CONFLICT: resolution intent does not cover all conflicting files: %v", conflictFiles),
				Priority:      0,
			}
		}
	}

	isSemantic := model.SemanticKinds[e.Kind] || (intent != nil && intent.Type == model.IntentSupersede)
	if isSemantic {
		return model.MemoryDecision{
			ShouldPersist: true,
			StoreType:     model.StoreSemantic,
			Reason:        "semantic-kind event or supersede intent",
			Priority:      priorityFor(e.Kind),
		}
	}

	return model.MemoryDecision{
		ShouldPersist: true,
		StoreType:     model.StoreEpisodic,
		Reason:        "non-semantic event",
		Priority:      priorityFor(e.Kind),
	}
}

func priorityFor(kind model.EventKind) int {
	switch kind {
	case model.KindDecision, model.KindConstraint:
		return 10
	case model.KindError, model.KindIntervention:
		return 8
	default:
		return 5
	}
}
