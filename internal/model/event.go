// Package model defines the typed records that flow through the ledgermind
// core: episodic events, semantic artifacts (decisions, proposals), and the
// resolution intents clients use to settle conflicts.
package model

import (
	"encoding/json"
	"time"
)

// EventSource identifies who or what produced an episodic event.
type EventSource string

const (
	SourceUser             EventSource = "user"
	SourceAgent            EventSource = "agent"
	SourceSystem           EventSource = "system"
	SourceReflectionEngine EventSource = "reflection_engine"
	SourceBridge           EventSource = "bridge"
)

// EventKind enumerates the kinds of episodic events the engine accepts.
type EventKind string

const (
	KindDecision          EventKind = "decision"
	KindError             EventKind = "error"
	KindConfigChange      EventKind = "config_change"
	KindAssumption        EventKind = "assumption"
	KindConstraint        EventKind = "constraint"
	KindResult            EventKind = "result"
	KindProposal          EventKind = "proposal"
	KindContextSnapshot   EventKind = "context_snapshot"
	KindContextInjection  EventKind = "context_injection"
	KindTask              EventKind = "task"
	KindCall              EventKind = "call"
	KindCommitChange      EventKind = "commit_change"
	KindPrompt            EventKind = "prompt"
	KindIntervention      EventKind = "intervention"
	KindReflectionSummary EventKind = "reflection_summary"
)

// SemanticKinds is the set of event kinds that route to the semantic store
// rather than the episodic log (C9 Router).
var SemanticKinds = map[EventKind]bool{
	KindDecision:     true,
	KindConstraint:   true,
	KindAssumption:   true,
	KindProposal:     true,
	KindIntervention: true,
}

// ProtectedEpisodicKinds never decay (C11): they back a semantic record's
// rationale even before a link is established.
var ProtectedEpisodicKinds = map[EventKind]bool{
	KindDecision:   true,
	KindConstraint: true,
}

// EventStatus tracks episodic lifecycle (§3 Event lifecycle).
type EventStatus string

const (
	EventActive   EventStatus = "active"
	EventArchived EventStatus = "archived"
)

// Event is the episodic unit (§3 Data Model).
type Event struct {
	ID           int64           `json:"id"`
	Source       EventSource     `json:"source"`
	Kind         EventKind       `json:"kind"`
	Content      string          `json:"content"`
	Context      json.RawMessage `json:"context,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Status       EventStatus     `json:"status"`
	LinkedID     *string         `json:"linked_id,omitempty"` // semantic artifact fid
	LinkStrength float64         `json:"link_strength"`
}

// Immortal reports whether the event must never be physically pruned (I2).
func (e Event) Immortal() bool {
	return e.LinkedID != nil && *e.LinkedID != ""
}
