// Package memory implements C10, the Memory Facade: the orchestration
// layer tying C1-C9 and C11-C13 into the public record/supersede/search/
// accept/forget/maintenance operations, grounded on akashi's App type in
// akashi.go (a single struct holding every subsystem, exposing orchestrated
// methods that open a transaction, call into subsystems, and commit/roll
// back as a unit).
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/ledgermind/internal/conflict"
	"github.com/ashita-ai/ledgermind/internal/decay"
	"github.com/ashita-ai/ledgermind/internal/episodic"
	"github.com/ashita-ai/ledgermind/internal/fsstore"
	"github.com/ashita-ai/ledgermind/internal/integrity"
	"github.com/ashita-ai/ledgermind/internal/lifecycle"
	"github.com/ashita-ai/ledgermind/internal/metastore"
	"github.com/ashita-ai/ledgermind/internal/model"
	"github.com/ashita-ai/ledgermind/internal/reflection"
	"github.com/ashita-ai/ledgermind/internal/router"
	"github.com/ashita-ai/ledgermind/internal/sanitize"
	"github.com/ashita-ai/ledgermind/internal/txnmgr"
	"github.com/ashita-ai/ledgermind/internal/vectorindex"
)

// AuditBackend is the narrow C2 surface the facade needs.
type AuditBackend interface {
	Initialize(ctx context.Context) error
	AddArtifact(ctx context.Context, path, body, message string) error
	UpdateArtifact(ctx context.Context, path, body, message string) error
	PurgeArtifact(ctx context.Context, path string) error
	CommitTransaction(ctx context.Context, message string) error
	GetHeadHash(ctx context.Context) (string, error)
}

// Facade is C10: the Memory Facade.
type Facade struct {
	meta    *metastore.Store
	events  *episodic.Store
	files   *fsstore.Store
	vectors *vectorindex.Index
	txns    *txnmgr.Manager
	audit   AuditBackend
	targets *TargetRegistry
	checker *integrity.Scanner

	trust  model.TrustBoundary
	logger *slog.Logger

	decayParams      decay.Params
	reflectionParams ReflectionParams
}

// ReflectionParams bundles C12's configurable thresholds.
type ReflectionParams struct {
	WindowSize        int
	ErrorThreshold    int
	SuccessThreshold  float64
	ReadyThreshold    float64
	ObservationDays   float64
	MinConfidence     float64
	AutoAcceptThresh  float64
	DecayRate         float64
}

// New constructs the Memory Facade from its already-opened subsystem
// handles.
func New(meta *metastore.Store, events *episodic.Store, files *fsstore.Store, vectors *vectorindex.Index,
	txns *txnmgr.Manager, audit AuditBackend, targets *TargetRegistry, trust model.TrustBoundary,
	decayParams decay.Params, reflectionParams ReflectionParams, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		meta: meta, events: events, files: files, vectors: vectors, txns: txns, audit: audit,
		targets: targets, checker: integrity.NewScanner(), trust: trust,
		decayParams: decayParams, reflectionParams: reflectionParams, logger: logger,
	}
}

// RecordDecisionInput collects record_decision's parameters (§4.9).
type RecordDecisionInput struct {
	Title         string
	Target        string
	Rationale     string
	Consequences  []string
	EvidenceIDs   []int64
	Namespace     string
	Arbiter       conflict.Arbiter
	EmbedFn       func(context.Context, string) ([]float32, error)
	TitleSimilarity func(a, b string) float64
}

// RecordDecision implements §4.9 record_decision: target normalization,
// conflict detection, and similarity-threshold auto-resolution.
func (f *Facade) RecordDecision(ctx context.Context, in RecordDecisionInput) (model.Artifact, error) {
	if err := validateDecisionInput(in.Title, in.Rationale); err != nil {
		return model.Artifact{}, err
	}
	namespace := normNamespace(in.Namespace)
	target := f.targets.Normalize(in.Target)

	existingFID, err := f.meta.GetActiveFID(ctx, target, namespace)
	if err != nil && !errors.Is(err, metastore.ErrNotFound) {
		return model.Artifact{}, err
	}

	if existingFID != "" {
		existing, err := f.meta.GetByFID(ctx, existingFID)
		if err != nil {
			return model.Artifact{}, err
		}
		newArt := model.Artifact{Title: in.Title, Target: target, Rationale: in.Rationale}

		cosine := 0.0
		embedForConflict := in.EmbedFn
		if embedForConflict == nil && f.vectors != nil {
			embedForConflict = func(ctx context.Context, text string) ([]float32, error) {
				return f.vectors.EmbedCached(ctx, "conflict:"+target+":"+namespace, text)
			}
		}
		if embedForConflict != nil {
			newVec, err := embedForConflict(ctx, in.Rationale)
			if err == nil {
				if cands, err := f.vectors.Search(ctx, newVec, 1); err == nil {
					for _, c := range cands {
						if c.FID == existingFID {
							cosine = float64(c.Score)
						}
					}
				}
			}
		}
		titleSim := 0.0
		if in.TitleSimilarity != nil {
			titleSim = in.TitleSimilarity(in.Title, existing.Title)
		}

		res := conflict.Resolve(newArt, fsstoreRowToArtifact(existing), cosine, titleSim, in.Arbiter)
		switch res {
		case conflict.ResolveSupersede:
			return f.SupersedeDecision(ctx, SupersedeInput{
				Title: in.Title, Target: target, Rationale: in.Rationale,
				Consequences: in.Consequences, EvidenceIDs: in.EvidenceIDs, Namespace: namespace,
				OldIDs: []string{existingFID}, EmbedFn: in.EmbedFn,
			})
		default:
			suggestions := f.targets.Suggest(target, 3)
			return model.Artifact{}, &ConflictError{Target: target, Namespace: namespace,
				Competitors: []string{existingFID}, Suggestions: suggestions}
		}
	}

	return f.writeNewDecision(ctx, target, namespace, in)
}

func (f *Facade) writeNewDecision(ctx context.Context, target, namespace string, in RecordDecisionInput) (model.Artifact, error) {
	now := time.Now().UTC()
	fid, err := fsstore.NewFID(model.ArtifactDecision, namespace, now)
	if err != nil {
		return model.Artifact{}, err
	}
	art := model.Artifact{
		FID: fid, Kind: model.ArtifactDecision, Title: in.Title, Target: target,
		Rationale: in.Rationale, Namespace: namespace, Status: model.StatusActive,
		Consequences: in.Consequences, EvidenceIDs: in.EvidenceIDs,
		Confidence: 1.0, Timestamp: now, Phase: model.PhasePattern, Vitality: model.VitalityActive,
	}
	art.ContentHash = integrity.ComputeContentHash(art)

	if err := f.commitArtifact(ctx, art, "record_decision: "+in.Title); err != nil {
		return model.Artifact{}, err
	}
	f.indexVector(ctx, art, in.EmbedFn)

	if _, err := f.events.Append(ctx, model.Event{
		Source: model.SourceAgent, Kind: model.KindDecision, Content: in.Rationale,
		Timestamp: now, Status: model.EventActive, LinkedID: &fid, LinkStrength: 1.0,
	}); err != nil {
		f.logger.Warn("record_decision: failed to append immortal evidence event", "fid", fid, "error", err)
	}
	return art, nil
}

// SupersedeInput collects supersede_decision's parameters (§4.10).
type SupersedeInput struct {
	Title        string
	Target       string
	Rationale    string
	Consequences []string
	EvidenceIDs  []int64
	Namespace    string
	OldIDs       []string
	EmbedFn      func(context.Context, string) ([]float32, error)
}

// SupersedeDecision implements §4.10 supersede_decision.
func (f *Facade) SupersedeDecision(ctx context.Context, in SupersedeInput) (model.Artifact, error) {
	namespace := normNamespace(in.Namespace)
	target := f.targets.Normalize(in.Target)

	var predecessors []model.Artifact
	for _, id := range in.OldIDs {
		row, err := f.meta.GetByFID(ctx, id)
		if err != nil {
			return model.Artifact{}, fmt.Errorf("memory: supersede_decision: predecessor %s: %w", id, err)
		}
		if row.Status != model.StatusActive || row.Target != target || row.Namespace != namespace {
			return model.Artifact{}, fmt.Errorf("memory: supersede_decision: %s is not an active decision for (%s,%s)", id, target, namespace)
		}
		art, err := f.files.Read(id)
		if err != nil {
			return model.Artifact{}, err
		}
		predecessors = append(predecessors, art)
	}

	now := time.Now().UTC()
	newFID, err := fsstore.NewFID(model.ArtifactDecision, namespace, now)
	if err != nil {
		return model.Artifact{}, err
	}

	var supersedesList []string
	for _, p := range predecessors {
		supersedesList = append(supersedesList, p.FID)
	}
	newArt := model.Artifact{
		FID: newFID, Kind: model.ArtifactDecision, Title: in.Title, Target: target,
		Rationale: in.Rationale, Namespace: namespace, Status: model.StatusActive,
		Consequences: in.Consequences, EvidenceIDs: in.EvidenceIDs, Supersedes: supersedesList,
		Confidence: 1.0, Timestamp: now, Phase: model.PhasePattern, Vitality: model.VitalityActive,
	}
	newArt.ContentHash = integrity.ComputeContentHash(newArt)

	txn, err := f.txns.Begin(ctx)
	if err != nil {
		return model.Artifact{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = txn.Rollback()
		}
	}()

	// First flip predecessors to superseded, to satisfy the unique-active
	// index before the new artifact is written (§4.10).
	for i := range predecessors {
		predecessors[i].Status = model.StatusSuperseded
		supersededBy := newFID
		predecessors[i].SupersededBy = &supersededBy
		if err := f.saveArtifactUnlocked(ctx, txn, predecessors[i]); err != nil {
			return model.Artifact{}, err
		}
	}
	if err := f.saveArtifactUnlocked(ctx, txn, newArt); err != nil {
		return model.Artifact{}, err
	}

	for _, p := range predecessors {
		linked, err := f.events.GetLinkedEventIDs(ctx, p.FID)
		if err != nil {
			return model.Artifact{}, err
		}
		for _, id := range linked {
			if err := f.events.LinkToSemantic(ctx, id, newFID, 1.0); err != nil {
				return model.Artifact{}, err
			}
		}
	}

	if err := f.audit.CommitTransaction(ctx, "supersede_decision: "+in.Title); err != nil {
		return model.Artifact{}, fmt.Errorf("memory: supersede_decision: commit: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return model.Artifact{}, err
	}
	committed = true

	f.indexVector(ctx, newArt, in.EmbedFn)
	for _, p := range predecessors {
		f.vectors.SoftDelete(p.FID)
	}

	if _, err := f.events.Append(ctx, model.Event{
		Source: model.SourceAgent, Kind: model.KindDecision, Content: in.Rationale,
		Timestamp: now, Status: model.EventActive, LinkedID: &newFID, LinkStrength: 1.0,
	}); err != nil {
		f.logger.Warn("supersede_decision: failed to append immortal evidence event", "fid", newFID, "error", err)
	}
	return newArt, nil
}

// saveArtifactUnlocked writes an artifact to fsstore, metastore, and stages
// its audit write, inside an already-open Txn.
func (f *Facade) saveArtifactUnlocked(ctx context.Context, txn *txnmgr.Txn, a model.Artifact) error {
	path := a.FID
	absPath, err := f.files.PathFor(a.FID)
	if err != nil {
		return err
	}
	if err := txn.Backup(absPath); err != nil {
		return err
	}
	body, err := f.files.Write(a)
	if err != nil {
		return err
	}
	if err := f.meta.Upsert(ctx, model.FromArtifact(a)); err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Target: a.Target, Namespace: a.Namespace, Competitors: []string{a.FID}}
		}
		return err
	}
	if err := f.audit.AddArtifact(ctx, path, body, "save "+a.FID); err != nil {
		return err
	}
	return nil
}

// commitArtifact is the single-artifact-write convenience wrapper around
// Begin/saveArtifactUnlocked/Commit used by operations that are not
// multi-artifact like SupersedeDecision.
func (f *Facade) commitArtifact(ctx context.Context, a model.Artifact, message string) error {
	txn, err := f.txns.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = txn.Rollback()
		}
	}()
	if err := f.saveArtifactUnlocked(ctx, txn, a); err != nil {
		return err
	}
	if err := f.audit.CommitTransaction(ctx, message); err != nil {
		return fmt.Errorf("memory: commit: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (f *Facade) indexVector(ctx context.Context, a model.Artifact, embed func(context.Context, string) ([]float32, error)) {
	text := a.Title + "\n" + a.Rationale
	var vec []float32
	var err error
	if embed != nil {
		// Caller-supplied embedder overrides the index's own, bypassing its
		// cache (e.g. a one-off backfill using a different model).
		vec, err = embed(ctx, text)
	} else if f.vectors != nil {
		vec, err = f.vectors.EmbedCached(ctx, a.FID, text)
	} else {
		return
	}
	// Vector indexing failures are logged and do not abort the transaction
	// (§4.10: "index is reconcilable from artifacts").
	if err != nil {
		f.logger.Warn("memory: embedding failed, vector index left stale", "fid", a.FID, "error", err)
		return
	}
	if err := f.vectors.Upsert(a.FID, vec); err != nil {
		f.logger.Warn("memory: vector upsert failed", "fid", a.FID, "error", err)
	}
}

// ProcessEventInput collects process_event's parameters (§4.10).
type ProcessEventInput struct {
	Source    model.EventSource
	Kind      model.EventKind
	Content   string
	Context   []byte
	Intent    *model.ResolutionIntent
	Namespace string
}

// ProcessEvent implements §4.10 process_event.
func (f *Facade) ProcessEvent(ctx context.Context, in ProcessEventInput) (model.MemoryDecision, error) {
	content, err := sanitize.Content(in.Content)
	if err != nil {
		return model.MemoryDecision{}, &ValueError{Field: "content", Detail: err.Error()}
	}

	if dupID, found, err := f.events.FindDuplicate(ctx, in.Source, in.Kind, content, in.Context, 5*time.Minute, time.Now()); err == nil && found {
		return model.MemoryDecision{ShouldPersist: false, StoreType: model.StoreNone,
			Reason: "duplicate episodic event", Metadata: map[string]any{"event_id": dupID}}, nil
	}

	// A raw event carries no target of its own; conflict gating only applies
	// once an intent names the decisions it resolves (§4.9/§4.10).
	var conflictFiles []string
	if in.Intent != nil {
		conflictFiles = in.Intent.TargetDecisionIDs
	}

	decision := router.Decide(model.Event{Source: in.Source, Kind: in.Kind, Content: content},
		in.Intent, f.trust, conflictFiles, conflict.ValidateIntent)

	if !decision.ShouldPersist {
		return decision, nil
	}

	// A StoreSemantic verdict is advisory: the raw occurrence is still logged
	// here as evidence, and the caller is expected to follow up with
	// record_decision/supersede_decision to actually mint the artifact
	// (those operations are where title/rationale/target get authored).
	now := time.Now().UTC()
	id, err := f.events.Append(ctx, model.Event{
		Source: in.Source, Kind: in.Kind, Content: content, Context: in.Context,
		Timestamp: now, Status: model.EventActive,
	})
	if err != nil {
		return model.MemoryDecision{}, err
	}
	if decision.Metadata == nil {
		decision.Metadata = map[string]any{}
	}
	decision.Metadata["event_id"] = id
	return decision, nil
}

// SearchInput collects search_decisions' parameters (§4.10).
type SearchInput struct {
	Query     string
	Limit     int
	Offset    int
	Namespace string
	Mode      model.SearchMode
	EmbedFn   func(context.Context, string) ([]float32, error)
}

// SearchDecisions implements §4.10 search_decisions: RRF fusion, truth
// resolution, evidence/status/lifecycle rescoring, dedup, and pagination.
func (f *Facade) SearchDecisions(ctx context.Context, in SearchInput) ([]model.SearchResult, error) {
	namespace := normNamespace(in.Namespace)
	depth := (in.Offset + in.Limit) * 10
	if depth <= 0 {
		depth = 10
	}

	var vectorRanked []string
	embedQuery := in.EmbedFn
	if embedQuery == nil && f.vectors != nil {
		embedQuery = func(ctx context.Context, text string) ([]float32, error) {
			return f.vectors.EmbedCached(ctx, "query:"+text, text)
		}
	}
	if embedQuery != nil {
		qvec, err := embedQuery(ctx, in.Query)
		if err == nil {
			cands, err := f.vectors.Search(ctx, qvec, depth)
			if err == nil {
				for _, c := range cands {
					vectorRanked = append(vectorRanked, c.FID)
				}
			}
		}
	}
	keywordRanked, err := f.meta.KeywordSearch(ctx, in.Query, namespace, depth)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(vectorRanked, keywordRanked, 60)

	seenTarget := map[string]bool{}
	var out []model.SearchResult
	for _, cand := range fused {
		truth := cand.FID
		if in.Mode != model.ModeAudit {
			resolved, err := f.meta.ResolveToTruth(ctx, cand.FID)
			if err == nil {
				truth = resolved
			}
		}
		row, err := f.meta.GetByFID(ctx, truth)
		if err != nil {
			continue
		}
		if row.Namespace != namespace {
			continue
		}
		if in.Mode == model.ModeStrict && row.Status != model.StatusActive {
			continue
		}

		linkCount, _ := f.events.CountLinksForSemantic(ctx, row.FID)
		evidenceBoost := 1 + minFloat(float64(linkCount)*0.2, 1.0)
		statusMult := statusMultiplier(row.Status)
		lifecycleMult := phaseWeight(row.Phase) * vitalityWeight(row.Vitality)

		score := cand.RRFScore * evidenceBoost * statusMult * lifecycleMult
		if summary, err := f.meta.GetAssessmentSummary(ctx, row.FID); err == nil && summary.Total > 0 {
			score *= 0.5 + 0.5*summary.Score()
		}

		if in.Mode != model.ModeAudit {
			if seenTarget[row.Target] {
				continue
			}
			seenTarget[row.Target] = true
		}

		out = append(out, model.SearchResult{Row: row, Score: score, EvidenceHits: linkCount})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if in.Offset > 0 && in.Offset < len(out) {
		out = out[in.Offset:]
	} else if in.Offset >= len(out) {
		out = nil
	}
	if in.Limit > 0 && len(out) > in.Limit {
		out = out[:in.Limit]
	}

	now := time.Now()
	for _, r := range out {
		_ = f.meta.IncrementHit(ctx, r.Row.FID, now)
	}
	return out, nil
}

func statusMultiplier(s model.ArtifactStatus) float64 {
	switch s {
	case model.StatusActive:
		return 1.5
	case model.StatusRejected, model.StatusFalsified:
		return 0.2
	case model.StatusSuperseded, model.StatusDeprecated:
		return 0.3
	default:
		return 1.0
	}
}

func phaseWeight(p model.Phase) float64 {
	switch p {
	case model.PhaseCanonical:
		return 1.5
	case model.PhaseEmergent:
		return 1.2
	default:
		return 1.0
	}
}

func vitalityWeight(v model.Vitality) float64 {
	switch v {
	case model.VitalityDecaying:
		return 0.5
	case model.VitalityDormant:
		return 0.2
	default:
		return 1.0
	}
}

// fuseRRF merges two rankings with Reciprocal Rank Fusion, k=60, normalized
// by 2/(k+1) (§4.10 step 2).
func fuseRRF(vectorRanked, keywordRanked []string, k int) []model.RankedCandidate {
	scores := map[string]float64{}
	vr := map[string]int{}
	kr := map[string]int{}
	for i, fid := range vectorRanked {
		vr[fid] = i
		scores[fid] += 1.0 / float64(k+i+1)
	}
	for i, fid := range keywordRanked {
		kr[fid] = i
		scores[fid] += 1.0 / float64(k+i+1)
	}
	norm := 2.0 / float64(k+1)

	out := make([]model.RankedCandidate, 0, len(scores))
	for fid, s := range scores {
		vRank, ok := vr[fid]
		if !ok {
			vRank = -1
		}
		kRank, ok := kr[fid]
		if !ok {
			kRank = -1
		}
		out = append(out, model.RankedCandidate{FID: fid, VectorRank: vRank, KeywordRank: kRank, RRFScore: s / norm})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RRFScore > out[j].RRFScore })
	return out
}

// AcceptProposal implements §4.10 accept_proposal.
func (f *Facade) AcceptProposal(ctx context.Context, fid string, embed func(context.Context, string) ([]float32, error)) (model.Artifact, error) {
	row, err := f.meta.GetByFID(ctx, fid)
	if err != nil {
		return model.Artifact{}, err
	}
	if row.Kind != model.ArtifactProposal || row.Status != model.StatusDraft {
		return model.Artifact{}, fmt.Errorf("memory: accept_proposal: %s is not a draft proposal", fid)
	}
	proposal, err := f.files.Read(fid)
	if err != nil {
		return model.Artifact{}, err
	}

	var newArt model.Artifact
	if len(proposal.SuggestedSupersedes) > 0 {
		newArt, err = f.SupersedeDecision(ctx, SupersedeInput{
			Title: proposal.Title, Target: proposal.Target, Rationale: proposal.Rationale,
			Consequences: proposal.SuggestedConsequences, EvidenceIDs: proposal.EvidenceIDs,
			Namespace: proposal.Namespace, OldIDs: proposal.SuggestedSupersedes, EmbedFn: embed,
		})
	} else {
		newArt, err = f.RecordDecision(ctx, RecordDecisionInput{
			Title: proposal.Title, Target: proposal.Target, Rationale: proposal.Rationale,
			Consequences: proposal.SuggestedConsequences, EvidenceIDs: proposal.EvidenceIDs,
			Namespace: proposal.Namespace, EmbedFn: embed,
		})
	}
	if err != nil {
		return model.Artifact{}, err
	}

	proposal.Status = model.StatusAccepted
	converted := newArt.FID
	proposal.ConvertedTo = &converted
	if err := f.commitArtifact(ctx, proposal, "accept_proposal: "+fid); err != nil {
		return model.Artifact{}, err
	}
	return newArt, nil
}

// RejectProposal implements §4.10 reject_proposal.
func (f *Facade) RejectProposal(ctx context.Context, fid, reason string) error {
	proposal, err := f.files.Read(fid)
	if err != nil {
		return err
	}
	proposal.Status = model.StatusRejected
	proposal.Objections = append(proposal.Objections, reason)
	return f.commitArtifact(ctx, proposal, "reject_proposal: "+fid+": "+reason)
}

// Forget implements §4.10 forget(id): unlink episodic, purge artifact,
// delete metadata, remove vector.
func (f *Facade) Forget(ctx context.Context, fid string) error {
	txn, err := f.txns.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = txn.Rollback()
		}
	}()

	absPath, err := f.files.PathFor(fid)
	if err != nil {
		return err
	}
	if err := txn.Backup(absPath); err != nil {
		return err
	}
	if _, err := f.events.UnlinkAllForSemantic(ctx, fid); err != nil {
		return err
	}
	if err := f.files.Purge(fid); err != nil {
		return err
	}
	// The metadata index and filesystem store are coordinated through the
	// outer advisory lock rather than a shared *sql.Tx (§5); the metastore
	// delete runs against its own connection directly.
	if err := f.meta.Delete(ctx, fid); err != nil {
		return err
	}
	if err := f.audit.PurgeArtifact(ctx, fid); err != nil {
		return err
	}
	if err := f.audit.CommitTransaction(ctx, "forget: "+fid); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	committed = true
	f.vectors.Remove(fid)
	return nil
}

// RecordAssessment implements SPEC_FULL.md C.3 (supplemented feature):
// explicit outcome feedback on a decision, folded into SearchDecisions'
// rescoring step. Assessments do not mutate the artifact itself — they are
// a separate, append-only feedback stream.
func (f *Facade) RecordAssessment(ctx context.Context, fid string, outcome model.AssessmentOutcome, assessorID, notes string) error {
	if _, err := f.meta.GetByFID(ctx, fid); err != nil {
		return err
	}
	return f.meta.RecordAssessment(ctx, model.Assessment{
		DecisionFID: fid, AssessorID: assessorID, Outcome: outcome, Notes: notes,
	}, time.Now())
}

// UpdateDecision implements §4.10 update_decision(id, updates, msg): skip
// if no effective change.
func (f *Facade) UpdateDecision(ctx context.Context, fid string, updates func(*model.Artifact), message string) (model.Artifact, bool, error) {
	art, err := f.files.Read(fid)
	if err != nil {
		return model.Artifact{}, false, err
	}
	updated := art
	updates(&updated)
	if fsstore.Render(updated) == fsstore.Render(art) {
		return art, false, nil
	}
	updated.ContentHash = integrity.ComputeContentHash(updated)
	if err := f.commitArtifact(ctx, updated, "update_decision: "+message); err != nil {
		return model.Artifact{}, false, err
	}
	return updated, true, nil
}

// RunDecay implements §4.10 run_decay(dry_run?), delegating computation to
// internal/decay.
func (f *Facade) RunDecay(ctx context.Context, dryRun bool) (decay.EpisodicPlan, []decay.SemanticOutcome, error) {
	events, err := f.events.Query(ctx, episodic.QueryFilter{})
	if err != nil {
		return decay.EpisodicPlan{}, nil, err
	}
	plan := decay.PlanEpisodic(events, f.episodicTTLDays(), time.Now())

	rows, err := f.meta.ListAll(ctx)
	if err != nil {
		return decay.EpisodicPlan{}, nil, err
	}
	artifacts := make([]model.Artifact, len(rows))
	for i, r := range rows {
		artifacts[i] = model.Artifact{FID: r.FID, Kind: r.Kind, Status: r.Status,
			Confidence: r.Confidence, Timestamp: r.Timestamp, LastHitAt: r.LastHitAt}
	}
	outcomes := decay.PlanSemantic(artifacts, f.decayParams, time.Now())

	if dryRun {
		return plan, outcomes, nil
	}

	now := time.Now()
	// Prune before archiving, so events archived in this pass are only
	// pruned by a later pass.
	if _, err := f.events.PhysicalPrune(ctx, now.Add(-time.Duration(f.episodicTTLDays())*24*time.Hour)); err != nil {
		return plan, outcomes, err
	}
	if _, err := f.events.MarkArchived(ctx, now.Add(-time.Duration(f.episodicTTLDays())*24*time.Hour)); err != nil {
		return plan, outcomes, err
	}
	for _, o := range outcomes {
		if o.ForgetTarget {
			if err := f.Forget(ctx, o.FID); err != nil {
				f.logger.Warn("run_decay: forget failed", "fid", o.FID, "error", err)
			}
			continue
		}
		if _, _, err := f.UpdateDecision(ctx, o.FID, func(a *model.Artifact) {
			a.Confidence = o.NewConfidence
			if o.Deprecate {
				a.Status = model.StatusDeprecated
			}
		}, "decay"); err != nil {
			f.logger.Warn("run_decay: update failed", "fid", o.FID, "error", err)
		}
	}
	return plan, outcomes, nil
}

func (f *Facade) episodicTTLDays() int {
	if f.decayParams.EpisodicTTLDays > 0 {
		return f.decayParams.EpisodicTTLDays
	}
	return 30
}

// eventContext is the subset of an event's free-form context the reflection
// pass reads to cluster by target (§4.12 step 2).
type eventContext struct {
	Target  string `json:"target"`
	Outcome string `json:"outcome"`
}

// RunReflection implements §4.10 run_reflection: incremental watermark-based
// clustering, hypothesis generation against fresh clusters, and evaluation
// of existing draft proposals, delegating all scoring to internal/reflection.
func (f *Facade) RunReflection(ctx context.Context) error {
	watermarkStr, err := f.meta.GetConfig(ctx, "last_reflection_event_id")
	var after int64
	if err == nil {
		fmt.Sscanf(watermarkStr, "%d", &after)
	}

	events, err := f.events.Query(ctx, episodic.QueryFilter{})
	if err != nil {
		return err
	}
	var fresh []model.Event
	var maxID int64
	for _, e := range events {
		if e.ID > maxID {
			maxID = e.ID
		}
		if e.ID > after {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	clusters := map[string]*reflection.Cluster{}
	for _, e := range fresh {
		var ec eventContext
		if len(e.Context) > 0 {
			_ = json.Unmarshal(e.Context, &ec)
		}
		if !reflection.ValidTarget(ec.Target) {
			continue
		}
		c, ok := clusters[ec.Target]
		if !ok {
			c = &reflection.Cluster{Target: ec.Target, FirstSeen: e.Timestamp, LastSeen: e.Timestamp}
			clusters[ec.Target] = c
		}
		if e.Timestamp.Before(c.FirstSeen) {
			c.FirstSeen = e.Timestamp
		}
		if e.Timestamp.After(c.LastSeen) {
			c.LastSeen = e.Timestamp
		}
		switch e.Kind {
		case model.KindError:
			c.Errors++
		case model.KindResult:
			c.Successes += successScore(ec.Outcome)
		case model.KindCommitChange:
			c.Commits++
		}
		c.EvidenceIDs = append(c.EvidenceIDs, e.ID)
	}

	// Step 1 (§4.12): distill successful RESULT trajectories into procedural
	// proposals, scanning fresh events in chronological order.
	freshAsc := make([]model.Event, len(fresh))
	copy(freshAsc, fresh)
	sort.Slice(freshAsc, func(i, j int) bool { return freshAsc[i].ID < freshAsc[j].ID })

	windowSize := f.reflectionParams.WindowSize
	if windowSize <= 0 {
		windowSize = 5
	}
	lastValidTarget := ""
	for i, e := range freshAsc {
		var ec eventContext
		if len(e.Context) > 0 {
			_ = json.Unmarshal(e.Context, &ec)
		}
		if ec.Target != "" && reflection.ValidTarget(ec.Target) {
			lastValidTarget = ec.Target
		}
		if e.Kind != model.KindResult {
			continue
		}
		if !(ec.Outcome == "success" || strings.Contains(strings.ToLower(e.Content), "success")) {
			continue
		}
		target := ec.Target
		if target == "" || !reflection.ValidTarget(target) {
			target = lastValidTarget
		}
		if !reflection.ValidTarget(target) {
			continue
		}
		start := i - windowSize
		if start < 0 {
			start = 0
		}
		dist := reflection.DistillWindow(freshAsc[start:i], e, target)
		if len(dist.Steps) == 0 {
			continue
		}
		if err := f.emitDistillation(ctx, dist); err != nil {
			f.logger.Warn("run_reflection: distillation failed", "target", target, "error", err)
		}
	}

	drafts, err := f.meta.ListDraftProposals(ctx, model.DefaultNamespace)
	if err != nil {
		return err
	}
	draftByTarget := map[string]model.Row{}
	for _, d := range drafts {
		draftByTarget[d.Target] = d
	}

	hypothesisParams := reflection.NewHypothesisParams{
		ErrorThreshold: f.reflectionParams.ErrorThreshold, SuccessThreshold: f.reflectionParams.SuccessThreshold,
	}
	evalParams := reflection.EvaluationParams{
		ReadyThreshold: f.reflectionParams.ReadyThreshold, ObservationWindowDays: f.reflectionParams.ObservationDays,
		MinConfidence: f.reflectionParams.MinConfidence,
	}

	processed := map[string]bool{}
	for target, c := range clusters {
		_, hasActiveDecision := f.activeDecisionExists(ctx, target)
		if draft, ok := draftByTarget[target]; ok {
			processed[draft.FID] = true
			if err := f.evaluateDraft(ctx, draft, *c, evalParams); err != nil {
				f.logger.Warn("run_reflection: evaluate draft failed", "target", target, "error", err)
			}
			continue
		}
		for _, h := range reflection.NewHypotheses(*c, hypothesisParams, false, hasActiveDecision) {
			if err := f.emitHypothesis(ctx, h, *c); err != nil {
				f.logger.Warn("run_reflection: emit hypothesis failed", "target", target, "error", err)
			}
		}
	}

	// Step 7 (§4.12): any draft whose target did not reappear in a fresh
	// cluster this pass still gets decayed, and is rejected once its
	// confidence falls below min_confidence.
	for _, d := range drafts {
		if processed[d.FID] {
			continue
		}
		newConf, reject := reflection.DecayDraft(d.Confidence, f.reflectionParams.DecayRate, f.reflectionParams.MinConfidence)
		if reject {
			if err := f.RejectProposal(ctx, d.FID, "confidence decayed below minimum"); err != nil {
				f.logger.Warn("run_reflection: decay-reject draft failed", "fid", d.FID, "error", err)
			}
			continue
		}
		if _, _, err := f.UpdateDecision(ctx, d.FID, func(a *model.Artifact) {
			a.Confidence = newConf
		}, "reflection: applied decay"); err != nil {
			f.logger.Warn("run_reflection: decay draft failed", "fid", d.FID, "error", err)
		}
	}

	return f.meta.SetConfig(ctx, "last_reflection_event_id", fmt.Sprintf("%d", maxID))
}

// emitDistillation persists a procedural proposal distilled from a
// successful trajectory (§4.12 step 1).
func (f *Facade) emitDistillation(ctx context.Context, d reflection.Distillation) error {
	now := time.Now().UTC()
	fid, err := fsstore.NewFID(model.ArtifactProposal, model.DefaultNamespace, now)
	if err != nil {
		return err
	}
	art := model.Artifact{
		FID: fid, Kind: model.ArtifactProposal, Title: reflection.DistillationTitle(d.Target),
		Target: d.Target, Namespace: model.DefaultNamespace, Status: model.StatusDraft,
		Rationale:       fmt.Sprintf("Distilled from a successful trajectory for target %q.", d.Target),
		EvidenceIDs:     d.EvidenceIDs,
		Confidence:      0.8, Timestamp: now,
		Phase: model.PhasePattern, Vitality: model.VitalityActive,
		ProceduralSteps: d.Steps,
	}
	art.ContentHash = integrity.ComputeContentHash(art)
	return f.commitArtifact(ctx, art, "run_reflection: distilled procedural proposal for "+d.Target)
}

func successScore(outcome string) float64 {
	switch outcome {
	case "success":
		return 1.0
	case "partial":
		return 0.5
	default:
		return 0
	}
}

func (f *Facade) activeDecisionExists(ctx context.Context, target string) (string, bool) {
	fid, err := f.meta.GetActiveFID(ctx, target, model.DefaultNamespace)
	if err != nil {
		return "", false
	}
	return fid, true
}

// emitHypothesis persists a fresh draft proposal artifact for one of
// NewHypotheses's proposed kinds (§4.12 steps 4-6).
func (f *Facade) emitHypothesis(ctx context.Context, h reflection.ProposedHypothesis, c reflection.Cluster) error {
	now := time.Now().UTC()
	fid, err := fsstore.NewFID(model.ArtifactProposal, model.DefaultNamespace, now)
	if err != nil {
		return err
	}
	art := model.Artifact{
		FID: fid, Kind: model.ArtifactProposal, Title: h.Title(),
		Target: h.Target, Namespace: model.DefaultNamespace, Status: model.StatusDraft,
		Rationale:   reflectionRationale(h, c),
		EvidenceIDs: c.EvidenceIDs, Confidence: h.Confidence, Timestamp: now,
		Phase: model.PhasePattern, Vitality: model.VitalityActive,
	}
	art.ContentHash = integrity.ComputeContentHash(art)
	return f.commitArtifact(ctx, art, "run_reflection: new hypothesis for "+h.Target)
}

func reflectionRationale(h reflection.ProposedHypothesis, c reflection.Cluster) string {
	return fmt.Sprintf("Observed %d error(s) and %.1f success(es) across %d commit(s) for target %q (kind: %s).",
		c.Errors, c.Successes, c.Commits, h.Target, h.Kind)
}

// evaluateDraft folds a cluster's fresh activity into an existing draft
// proposal, auto-accepting, rejecting, or leaving it in place per §4.12 step
// 3/8. Prior error/success counts are approximated from the draft's
// recorded objection/strength counts, since a draft proposal artifact has
// no dedicated running-tally fields.
func (f *Facade) evaluateDraft(ctx context.Context, draft model.Row, c reflection.Cluster, p reflection.EvaluationParams) error {
	art, err := f.files.Read(draft.FID)
	if err != nil {
		return err
	}
	priorErrors := float64(len(art.Objections))
	priorSuccesses := float64(len(art.Strengths))

	eval := reflection.EvaluateHypothesis(priorErrors, priorSuccesses, c, len(art.Objections), art.Timestamp, p)

	if eval.Falsified {
		return f.RejectProposal(ctx, draft.FID, "falsified by subsequent activity")
	}
	if reflection.ShouldAutoAccept(eval.Confidence, len(art.Objections), f.reflectionParams.AutoAcceptThresh) {
		_, err := f.AcceptProposal(ctx, draft.FID, nil)
		return err
	}
	_, _, err = f.UpdateDecision(ctx, draft.FID, func(a *model.Artifact) {
		a.Confidence = eval.Confidence
		a.ReadyForReview = eval.ReadyForReview
	}, "reflection: updated confidence")
	return err
}

// RunMaintenance implements §4.10 run_maintenance: integrity resync plus
// vector compaction.
func (f *Facade) RunMaintenance(ctx context.Context) error {
	rows, err := f.meta.ListAll(ctx)
	if err != nil {
		return err
	}
	artifacts := make([]model.Artifact, 0, len(rows))
	for _, r := range rows {
		a, err := f.files.Read(r.FID)
		if err != nil {
			f.logger.Warn("run_maintenance: read failed, excluding from integrity scan", "fid", r.FID, "error", err)
			continue
		}
		artifacts = append(artifacts, a)
	}
	if v := f.checker.Scan(integrity.ScanInput{Artifacts: artifacts}); v != nil {
		return v
	}
	if err := f.RunLifecyclePass(ctx); err != nil {
		f.logger.Warn("run_maintenance: lifecycle pass failed", "error", err)
	}
	if f.vectors.NeedsCompaction() {
		f.vectors.Compact()
	}
	return f.vectors.Save()
}

// SyncGit implements §4.10 sync_git(repo, limit): reports the current audit
// head hash (the detailed remote sync workflow is a
// collaborator concern per §1 Non-goals; the core exposes only the commit
// boundary it owns).
func (f *Facade) SyncGit(ctx context.Context) (string, error) {
	return f.audit.GetHeadHash(ctx)
}

// KnowledgeGraphNode is one node of the §4.10 generate_knowledge_graph
// output.
type KnowledgeGraphNode struct {
	FID        string
	Target     string
	Status     model.ArtifactStatus
	Supersedes []string
}

// GenerateKnowledgeGraph implements §4.10 generate_knowledge_graph(target?).
func (f *Facade) GenerateKnowledgeGraph(ctx context.Context, target string) ([]KnowledgeGraphNode, error) {
	rows, err := f.meta.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var nodes []KnowledgeGraphNode
	for _, r := range rows {
		if target != "" && r.Target != target {
			continue
		}
		art, err := f.files.Read(r.FID)
		if err != nil {
			continue
		}
		nodes = append(nodes, KnowledgeGraphNode{FID: r.FID, Target: r.Target, Status: r.Status, Supersedes: art.Supersedes})
	}
	return nodes, nil
}

// EnvironmentReport is the §4.10 check_environment() structured readiness
// report.
type EnvironmentReport struct {
	ID           string
	AuditReady   bool
	AuditHead    string
	MetaReady    bool
	EventCount   int64
	VectorDims   int
}

// CheckEnvironment implements §4.10 check_environment().
func (f *Facade) CheckEnvironment(ctx context.Context) EnvironmentReport {
	report := EnvironmentReport{ID: uuid.NewString(), VectorDims: f.vectors.Dimensions()}
	if head, err := f.audit.GetHeadHash(ctx); err == nil {
		report.AuditReady = true
		report.AuditHead = head
	}
	if n, err := f.events.CountEvents(ctx); err == nil {
		report.MetaReady = true
		report.EventCount = n
	}
	return report
}

func normNamespace(ns string) string {
	if ns == "" {
		return model.DefaultNamespace
	}
	return ns
}

func validateDecisionInput(title, rationale string) error {
	if err := sanitize.MinLen("title", title, 1); err != nil {
		return &ValueError{Field: "title", Detail: err.Error()}
	}
	if err := sanitize.MinLen("rationale", rationale, 10); err != nil {
		return &ValueError{Field: "rationale", Detail: err.Error()}
	}
	return nil
}

func fsstoreRowToArtifact(r model.Row) model.Artifact {
	return model.Artifact{FID: r.FID, Title: r.Title, Target: r.Target, Kind: r.Kind,
		Status: r.Status, Confidence: r.Confidence, Timestamp: r.Timestamp}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// RunLifecyclePass recomputes C13 signals for every active/deprecated
// artifact and persists the resulting phase/vitality/confidence, the
// periodic counterpart to the per-write updates record_decision already
// applies at creation time.
func (f *Facade) RunLifecyclePass(ctx context.Context) error {
	rows, err := f.meta.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, r := range rows {
		if r.Status != model.StatusActive && r.Status != model.StatusDeprecated {
			continue
		}
		art, err := f.files.Read(r.FID)
		if err != nil {
			f.logger.Warn("run_lifecycle: read failed", "fid", r.FID, "error", err)
			continue
		}

		linkedIDs, err := f.events.GetLinkedEventIDs(ctx, r.FID)
		if err != nil {
			f.logger.Warn("run_lifecycle: linked events failed", "fid", r.FID, "error", err)
			continue
		}
		linkedEvents, err := f.events.GetByIDs(ctx, linkedIDs)
		if err != nil {
			f.logger.Warn("run_lifecycle: fetch linked events failed", "fid", r.FID, "error", err)
			continue
		}

		sig := lifecycle.Signals{
			FirstSeen:             r.Timestamp,
			LastSeen:              r.Timestamp,
			Frequency:             r.HitCount,
			ConsequenceCount:      len(art.Consequences),
			UniqueContexts:        len(linkedEvents),
			ObservationWindowDays: 30,
			Scope:                 classifyScope(r.Target),
		}
		if r.LastHitAt != nil && r.LastHitAt.After(sig.LastSeen) {
			sig.LastSeen = *r.LastHitAt
		}
		for _, e := range linkedEvents {
			sig.ReinforcementDates = append(sig.ReinforcementDates, e.Timestamp)
			if e.Timestamp.After(sig.LastSeen) {
				sig.LastSeen = e.Timestamp
			}
		}

		computed := lifecycle.Compute(art, sig, now)
		if computed.NewPhase == art.Phase && computed.Vitality == art.Vitality &&
			computed.NewConfidence == art.Confidence {
			continue
		}
		if _, _, err := f.UpdateDecision(ctx, r.FID, func(a *model.Artifact) {
			a.Phase = computed.NewPhase
			a.Vitality = computed.Vitality
			a.Confidence = computed.NewConfidence
			a.StabilityScore = computed.Stability
			a.EstimatedRemovalCost = computed.RemovalCost
			a.EstimatedUtility = computed.Utility
			a.Coverage = computed.Coverage
			a.ReinforcementDensity = computed.ReinforcementDensity
		}, "lifecycle"); err != nil {
			f.logger.Warn("run_lifecycle: update failed", "fid", r.FID, "error", err)
		}
	}
	return nil
}

// classifyScope applies the §4.13 infra/system/other split via target-name
// heuristics (no pack example tags artifacts with a scope field, so this is
// inferred rather than stored).
func classifyScope(target string) lifecycle.Scope {
	lower := strings.ToLower(target)
	switch {
	case strings.Contains(lower, "infra"), strings.Contains(lower, "deploy"), strings.Contains(lower, "database"), strings.Contains(lower, "db"):
		return lifecycle.ScopeInfra
	case strings.Contains(lower, "system"), strings.Contains(lower, "architecture"), strings.Contains(lower, "service"):
		return lifecycle.ScopeSystem
	default:
		return lifecycle.ScopeOther
	}
}
