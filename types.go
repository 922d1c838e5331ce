package ledgermind

import (
	"github.com/ashita-ai/ledgermind/internal/conflict"
	"github.com/ashita-ai/ledgermind/internal/decay"
	"github.com/ashita-ai/ledgermind/internal/memory"
	"github.com/ashita-ai/ledgermind/internal/model"
	"github.com/ashita-ai/ledgermind/internal/vectorindex"
)

// Public type aliases to internal/model's value types. Unlike the teacher's
// types.go — which hand-duplicates every field of its Postgres/sqlc-backed
// internal model to avoid leaking DB-coupled types across the package
// boundary — internal/model holds plain stdlib-only structs with no such
// coupling, so aliasing them directly costs nothing and keeps one
// definition instead of two that can drift.
type (
	Artifact             = model.Artifact
	ArtifactKind         = model.ArtifactKind
	ArtifactStatus       = model.ArtifactStatus
	Phase                = model.Phase
	Vitality             = model.Vitality
	ProceduralStep       = model.ProceduralStep
	Row                  = model.Row
	Event                = model.Event
	EventSource          = model.EventSource
	EventKind            = model.EventKind
	EventStatus          = model.EventStatus
	ResolutionIntent     = model.ResolutionIntent
	IntentType           = model.IntentType
	TrustBoundary        = model.TrustBoundary
	StoreType            = model.StoreType
	MemoryDecision       = model.MemoryDecision
	SearchMode           = model.SearchMode
	SearchResult         = model.SearchResult
	AssessmentOutcome    = model.AssessmentOutcome
	Assessment           = model.Assessment
	AssessmentSummary    = model.AssessmentSummary
)

const (
	ArtifactDecision     = model.ArtifactDecision
	ArtifactConstraint   = model.ArtifactConstraint
	ArtifactProposal     = model.ArtifactProposal
	ArtifactIntervention = model.ArtifactIntervention

	StatusActive     = model.StatusActive
	StatusDeprecated = model.StatusDeprecated
	StatusSuperseded = model.StatusSuperseded
	StatusDraft      = model.StatusDraft
	StatusAccepted   = model.StatusAccepted
	StatusRejected   = model.StatusRejected
	StatusFalsified  = model.StatusFalsified

	SourceUser             = model.SourceUser
	SourceAgent            = model.SourceAgent
	SourceSystem           = model.SourceSystem
	SourceReflectionEngine = model.SourceReflectionEngine
	SourceBridge           = model.SourceBridge

	KindDecision          = model.KindDecision
	KindError             = model.KindError
	KindConfigChange      = model.KindConfigChange
	KindAssumption        = model.KindAssumption
	KindConstraint        = model.KindConstraint
	KindResult            = model.KindResult
	KindProposal          = model.KindProposal
	KindContextSnapshot   = model.KindContextSnapshot
	KindContextInjection  = model.KindContextInjection
	KindTask              = model.KindTask
	KindCall              = model.KindCall
	KindCommitChange      = model.KindCommitChange
	KindPrompt            = model.KindPrompt
	KindIntervention      = model.KindIntervention
	KindReflectionSummary = model.KindReflectionSummary

	IntentSupersede = model.IntentSupersede
	IntentDeprecate = model.IntentDeprecate
	IntentAbort     = model.IntentAbort

	TrustAgentWithIntent = model.TrustAgentWithIntent
	TrustHumanOnly       = model.TrustHumanOnly

	ModeStrict   = model.ModeStrict
	ModeBalanced = model.ModeBalanced
	ModeAudit    = model.ModeAudit

	AssessmentCorrect          = model.AssessmentCorrect
	AssessmentIncorrect        = model.AssessmentIncorrect
	AssessmentPartiallyCorrect = model.AssessmentPartiallyCorrect
)

// Request/result types for the Engine's operations. These mirror
// internal/memory's own input structs field-for-field; aliased rather than
// redeclared for the same reason as the model aliases above.
type (
	RecordDecisionInput = memory.RecordDecisionInput
	SupersedeInput      = memory.SupersedeInput
	ProcessEventInput   = memory.ProcessEventInput
	SearchInput         = memory.SearchInput
	ReflectionParams    = memory.ReflectionParams
	KnowledgeGraphNode  = memory.KnowledgeGraphNode
	EnvironmentReport   = memory.EnvironmentReport
)

// DecayParams bundles the confidence-decay thresholds applied by RunDecay.
type DecayParams = decay.Params

// Arbiter decides a gray-zone case between a new decision and its active
// competitor during conflict resolution, returning a verdict: "SUPERSEDE"
// supersedes the competitor, any other verdict is a conflict (§4.9).
// With a nil Arbiter every gray-zone case is a conflict.
type Arbiter = conflict.Arbiter

// Embedder turns text into a dense vector for semantic search (§4.5).
// Implementations must be safe for concurrent use.
type Embedder = vectorindex.Embedder
