package model

// IntentType enumerates the resolution intents a client may declare when a
// conflicting write is detected (§3 Resolution Intent).
type IntentType string

const (
	IntentSupersede IntentType = "supersede"
	IntentDeprecate IntentType = "deprecate"
	IntentAbort     IntentType = "abort"
)

// ResolutionIntent is a client's declared plan to resolve a conflict.
type ResolutionIntent struct {
	Type              IntentType `json:"type"`
	Rationale         string     `json:"rationale"`
	TargetDecisionIDs []string   `json:"target_decision_ids"`
}

// TrustBoundary is the process-wide policy governing which sources may
// write semantic records (§3).
type TrustBoundary string

const (
	TrustAgentWithIntent TrustBoundary = "agent_with_intent"
	TrustHumanOnly       TrustBoundary = "human_only"
)

// StoreType identifies which store an event should be routed to (C9).
type StoreType string

const (
	StoreEpisodic StoreType = "episodic"
	StoreSemantic StoreType = "semantic"
	StoreNone     StoreType = "none"
)

// MemoryDecision is the C9 Router's verdict on an inbound event.
type MemoryDecision struct {
	ShouldPersist bool
	StoreType     StoreType
	Reason        string
	Priority      int
	Metadata      map[string]any
}
