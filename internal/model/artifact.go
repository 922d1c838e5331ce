package model

import "time"

// ArtifactKind enumerates the semantic record kinds.
type ArtifactKind string

const (
	ArtifactDecision     ArtifactKind = "decision"
	ArtifactConstraint   ArtifactKind = "constraint"
	ArtifactProposal     ArtifactKind = "proposal"
	ArtifactIntervention ArtifactKind = "intervention"
)

// ArtifactStatus enumerates the lifecycle states of a semantic artifact.
type ArtifactStatus string

const (
	StatusActive      ArtifactStatus = "active"
	StatusDeprecated  ArtifactStatus = "deprecated"
	StatusSuperseded  ArtifactStatus = "superseded"
	StatusDraft       ArtifactStatus = "draft"
	StatusAccepted    ArtifactStatus = "accepted"
	StatusRejected    ArtifactStatus = "rejected"
	StatusFalsified   ArtifactStatus = "falsified"
)

// Phase is the lifecycle-engine promotion stage (C13).
type Phase string

const (
	PhasePattern   Phase = "pattern"
	PhaseEmergent  Phase = "emergent"
	PhaseCanonical Phase = "canonical"
)

// Vitality is the inactivity-decay stage (C13).
type Vitality string

const (
	VitalityActive   Vitality = "active"
	VitalityDecaying Vitality = "decaying"
	VitalityDormant  Vitality = "dormant"
)

// DefaultNamespace is used when an artifact is stored without an explicit
// namespace (§9 Design Notes: namespace defaulting).
const DefaultNamespace = "default"

// Artifact is the semantic record (§3 Data Model: Semantic Artifact).
// Proposal-only fields are populated only when Kind == ArtifactProposal.
type Artifact struct {
	// Identity: FID is the relative path within the namespace directory,
	// including a timestamp+random suffix, unique within the store (§3).
	FID string `json:"fid"`

	Kind      ArtifactKind   `json:"kind"`
	Title     string         `json:"title"`
	Target    string         `json:"target"`
	Rationale string         `json:"rationale"`
	Namespace string         `json:"namespace"`
	Status    ArtifactStatus `json:"status"`

	Supersedes    []string `json:"supersedes,omitempty"`
	SupersededBy  *string  `json:"superseded_by,omitempty"`
	Consequences  []string `json:"consequences,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	EvidenceIDs   []int64  `json:"evidence_event_ids,omitempty"`

	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`

	Phase    Phase    `json:"phase"`
	Vitality Vitality `json:"vitality"`

	StabilityScore       float64 `json:"stability_score"`
	Frequency            int     `json:"frequency"`
	HitCount             int     `json:"hit_count"`
	Coverage             float64 `json:"coverage"`
	EstimatedRemovalCost float64 `json:"estimated_removal_cost"`
	EstimatedUtility     float64 `json:"estimated_utility"`

	ReinforcementDensity float64    `json:"reinforcement_density"`
	LastHitAt            *time.Time `json:"last_hit_at,omitempty"`
	FirstObservedAt      *time.Time `json:"first_observed_at,omitempty"`
	LastObservedAt       *time.Time `json:"last_observed_at,omitempty"`

	// Content hash: tamper-evident SHA-256 digest over canonical fields,
	// grounded on the teacher's internal/integrity content-hash scheme.
	ContentHash string `json:"content_hash,omitempty"`

	// Proposal extensions (§3 Proposal extensions).
	Strengths           []string `json:"strengths,omitempty"`
	Objections          []string `json:"objections,omitempty"`
	CounterPatterns      []string `json:"counter_patterns,omitempty"`
	AlternativeIDs      []string `json:"alternative_ids,omitempty"`
	CounterEvidenceIDs  []int64  `json:"counter_evidence_event_ids,omitempty"`
	SuggestedSupersedes []string `json:"suggested_supersedes,omitempty"`
	SuggestedConsequences []string `json:"suggested_consequences,omitempty"`
	HitCountProposal    int      `json:"proposal_hit_count,omitempty"`
	MissCount           int      `json:"miss_count,omitempty"`
	ReadyForReview      bool     `json:"ready_for_review,omitempty"`
	ProceduralSteps     []ProceduralStep `json:"procedural_steps,omitempty"`
	ConvertedTo         *string  `json:"converted_to,omitempty"`

	// Body vector (not persisted to the metadata row; used transiently when
	// indexing/searching). Populated by callers that compute embeddings.
	Embedding []float32 `json:"-"`
}

// ProceduralStep is one ordered step of a procedural proposal (§3).
type ProceduralStep struct {
	Step            string `json:"step"`
	Rationale       string `json:"rationale"`
	ExpectedOutcome string `json:"expected_outcome"`
}

// Row is the C3 metadata index's flattened view of an Artifact: what is
// actually stored in semantic_meta.db, including the short content cache
// used for keyword search (§4.3).
type Row struct {
	FID                  string
	Target               string
	Title                string
	Status               ArtifactStatus
	Kind                 ArtifactKind
	Timestamp            time.Time
	SupersededBy         *string
	Content              string // first 8KiB of the rationale, for FTS
	Keywords             []string
	Confidence           float64
	Namespace            string
	HitCount             int
	Phase                Phase
	Vitality             Vitality
	ReinforcementDensity float64
	StabilityScore       float64
	Coverage             float64
	LastHitAt            *time.Time
	ContextJSON          string
}

// FromArtifact projects an Artifact onto its C3 Row representation.
func FromArtifact(a Artifact) Row {
	content := a.Rationale
	if len(content) > 8192 {
		content = content[:8192]
	}
	return Row{
		FID:                  a.FID,
		Target:               a.Target,
		Title:                a.Title,
		Status:               a.Status,
		Kind:                 a.Kind,
		Timestamp:            a.Timestamp,
		SupersededBy:         a.SupersededBy,
		Content:              content,
		Keywords:             a.Keywords,
		Confidence:           a.Confidence,
		Namespace:            a.Namespace,
		HitCount:             a.HitCount,
		Phase:                a.Phase,
		Vitality:             a.Vitality,
		ReinforcementDensity: a.ReinforcementDensity,
		StabilityScore:       a.StabilityScore,
		Coverage:             a.Coverage,
		LastHitAt:            a.LastHitAt,
	}
}
