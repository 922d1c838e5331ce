// Package ledgermind is a persistent, verifiable memory substrate for
// long-running coding agents: durable decisions and constraints (the
// semantic store), a rolling log of raw activity (the episodic store), and
// the machinery that reconciles the two — conflict detection, confidence
// decay, reflection-driven promotion of recurring patterns, and tamper
// evidence over the whole history.
//
// An Engine owns every subsystem under one root directory (§6 Storage
// layout) and exposes record_decision, search_decisions, process_event and
// the rest of the spec's operations as plain Go methods — there is no
// transport, scheduler, or server loop here; callers decide when and how
// often to call RunDecay, RunReflection, and RunMaintenance.
package ledgermind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/ledgermind/internal/audit"
	"github.com/ashita-ai/ledgermind/internal/config"
	"github.com/ashita-ai/ledgermind/internal/decay"
	"github.com/ashita-ai/ledgermind/internal/episodic"
	"github.com/ashita-ai/ledgermind/internal/fsstore"
	"github.com/ashita-ai/ledgermind/internal/memory"
	"github.com/ashita-ai/ledgermind/internal/metastore"
	"github.com/ashita-ai/ledgermind/internal/telemetry"
	"github.com/ashita-ai/ledgermind/internal/txnmgr"
	"github.com/ashita-ai/ledgermind/internal/vectorindex"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Storage layout under an Engine's root directory (§6).
const (
	dirSemantic    = "semantic"
	dirVectorIndex = "vector_index"
	fileMetaDB     = "semantic_meta.db"
	fileEventsDB   = "episodic.db"
	fileTargets    = "targets.json"
)

// Engine is the top-level handle returned by New. The zero value is not
// usable; construct one with New.
type Engine struct {
	facade *memory.Facade
	vec    *vectorindex.Index
	cfg    config.Config
	logger *slog.Logger

	defaultArbiter         Arbiter
	defaultTitleSimilarity func(a, b string) float64

	otelShutdown telemetry.Shutdown
	meterReader  *sdkmetric.ManualReader
}

// New opens (or initializes) an engine rooted at dir, wiring the metadata
// index, episodic log, file store, vector index, transaction manager, and
// git-backed audit log together. It does not start any background loop —
// callers invoke RunDecay/RunReflection/RunMaintenance on their own
// schedule (§1 Non-goals: no task scheduling).
func New(ctx context.Context, dir string, opts ...Option) (*Engine, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present; non-fatal, production won't have one.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("ledgermind: load config: %w", err)
	}
	if o.trustBoundary != "" {
		cfg.TrustBoundary = o.trustBoundary
	}
	if o.telemetry != nil {
		cfg.TelemetryEnabled = *o.telemetry
	}

	version := o.version
	if version == "" {
		version = "dev"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledgermind: create root dir: %w", err)
	}

	otelShutdown, meterReader, err := telemetry.Init(ctx, cfg.TelemetryEnabled, cfg.ServiceName, version, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("ledgermind: telemetry: %w", err)
	}

	logger.Info("ledgermind starting", "version", version, "root", dir, "trust_boundary", cfg.TrustBoundary)

	// §6's storage layout nests semantic_meta.db, .lock, .tx_backup, and the
	// audit backend's directory all inside <root>/semantic/, alongside the
	// artifact files themselves; episodic.db and vector_index/ are root
	// siblings. semanticDir is therefore the txnmgr root (its lock and
	// backup dir live there) and the audit git repo root (fsstore writes
	// artifacts there too, so bare-FID paths staged by audit resolve
	// correctly relative to that same directory).
	semanticDir := filepath.Join(dir, dirSemantic)
	if err := os.MkdirAll(semanticDir, 0o755); err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("ledgermind: create semantic dir: %w", err)
	}

	meta, err := metastore.Open(ctx, filepath.Join(semanticDir, fileMetaDB))
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("ledgermind: metastore: %w", err)
	}

	events, err := episodic.Open(ctx, filepath.Join(dir, fileEventsDB))
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("ledgermind: episodic: %w", err)
	}

	// fsstore.New takes the store's root, not the "semantic" directory
	// itself — it appends that path component internally (pathFor), landing
	// artifacts at <root>/semantic/<fid>, matching semanticDir above.
	files := fsstore.New(dir)

	embedder := o.embedder
	if embedder == nil {
		embedder = noopEmbedder{dims: cfg.EmbeddingDimensions}
	}
	vecDir := filepath.Join(dir, dirVectorIndex)
	if err := os.MkdirAll(vecDir, 0o755); err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("ledgermind: create vector index dir: %w", err)
	}
	vec, err := vectorindex.Open(vecDir, cfg.EmbeddingDimensions, embedder, cfg.ANNTreeCount)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("ledgermind: vectorindex: %w", err)
	}

	txns := txnmgr.New(semanticDir, cfg.LockTimeout, cfg.LockPollTick)

	var auditBackend memory.AuditBackend
	if o.auditBackend != nil {
		auditBackend = o.auditBackend
	} else {
		gitBackend := audit.New(semanticDir, cfg.GitAuthorName, cfg.GitAuthorEmail, logger)
		if err := gitBackend.Initialize(ctx); err != nil {
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("%w: %v", ErrAuditUnavailable, err)
		}
		auditBackend = gitBackend
	}

	targets, err := memory.NewTargetRegistry(filepath.Join(dir, fileTargets))
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("ledgermind: target registry: %w", err)
	}

	decayParams := decay.Params{
		BaseRate:           cfg.SemanticDecayRate,
		ForgetThreshold:    cfg.SemanticForgetThresh,
		DeprecateThreshold: cfg.SemanticDeprecateThresh,
		EpisodicTTLDays:    cfg.EpisodicTTLDays,
	}
	if o.decayParams != nil {
		decayParams = *o.decayParams
	}

	reflectionParams := memory.ReflectionParams{
		WindowSize:       cfg.ReflectionWindowSize,
		ErrorThreshold:   cfg.ReflectionErrorThreshold,
		SuccessThreshold: cfg.ReflectionSuccessThreshold,
		ReadyThreshold:   cfg.ReflectionReadyThreshold,
		ObservationDays:  cfg.ReflectionObservationDays,
		MinConfidence:    cfg.ReflectionMinConfidence,
		AutoAcceptThresh: cfg.ReflectionAutoAcceptThresh,
		DecayRate:        cfg.SemanticDecayRate,
	}
	if o.reflectionParams != nil {
		reflectionParams = *o.reflectionParams
	}

	facade := memory.New(meta, events, files, vec, txns, auditBackend, targets,
		cfg.TrustBoundary, decayParams, reflectionParams, logger)

	return &Engine{
		facade:                 facade,
		vec:                    vec,
		cfg:                    cfg,
		logger:                 logger,
		defaultArbiter:         o.arbiter,
		defaultTitleSimilarity: o.titleSimilarity,
		otelShutdown:           otelShutdown,
		meterReader:            meterReader,
	}, nil
}

// Close flushes the vector index to disk and shuts down telemetry
// providers. It does not close the underlying sqlite handles or release
// the advisory lock directory — those are process-lifetime resources, like
// the teacher's connection pool.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if err := e.vec.Save(); err != nil {
		errs = append(errs, fmt.Errorf("vector index: %w", err))
	}
	if e.otelShutdown != nil {
		if err := e.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RecordDecision implements record_decision (§4.9). An Arbiter or
// TitleSimilarity func left unset on in falls back to the Engine's
// configured default (WithArbiter/WithTitleSimilarity), if any.
func (e *Engine) RecordDecision(ctx context.Context, in RecordDecisionInput) (Artifact, error) {
	if in.Arbiter == nil {
		in.Arbiter = e.defaultArbiter
	}
	if in.TitleSimilarity == nil {
		in.TitleSimilarity = e.defaultTitleSimilarity
	}
	return e.facade.RecordDecision(ctx, in)
}

// SupersedeDecision implements supersede_decision (§4.9).
func (e *Engine) SupersedeDecision(ctx context.Context, in SupersedeInput) (Artifact, error) {
	return e.facade.SupersedeDecision(ctx, in)
}

// ProcessEvent implements process_event (§4.10).
func (e *Engine) ProcessEvent(ctx context.Context, in ProcessEventInput) (MemoryDecision, error) {
	return e.facade.ProcessEvent(ctx, in)
}

// SearchDecisions implements search_decisions (§4.10).
func (e *Engine) SearchDecisions(ctx context.Context, in SearchInput) ([]SearchResult, error) {
	return e.facade.SearchDecisions(ctx, in)
}

// AcceptProposal implements accept_proposal (§4.10): converts a draft
// proposal into an active decision, superseding its suggested targets.
func (e *Engine) AcceptProposal(ctx context.Context, fid string, embed func(context.Context, string) ([]float32, error)) (Artifact, error) {
	return e.facade.AcceptProposal(ctx, fid, embed)
}

// RejectProposal implements reject_proposal (§4.10).
func (e *Engine) RejectProposal(ctx context.Context, fid, reason string) error {
	return e.facade.RejectProposal(ctx, fid, reason)
}

// Forget implements forget(fid) (§4.10): hard-deletes an artifact and its
// vector entry, unlinking any episodic events that referenced it.
func (e *Engine) Forget(ctx context.Context, fid string) error {
	return e.facade.Forget(ctx, fid)
}

// RecordAssessment attaches outcome feedback to a decision, folded into
// SearchDecisions' rescoring step (SPEC_FULL.md C.3).
func (e *Engine) RecordAssessment(ctx context.Context, fid string, outcome AssessmentOutcome, assessorID, notes string) error {
	return e.facade.RecordAssessment(ctx, fid, outcome, assessorID, notes)
}

// UpdateDecision applies updates to fid's artifact inside a single
// transaction, recomputing its content hash and committing message to the
// audit log.
func (e *Engine) UpdateDecision(ctx context.Context, fid string, updates func(*Artifact), message string) (Artifact, bool, error) {
	return e.facade.UpdateDecision(ctx, fid, updates, message)
}

// RunDecay implements run_decay(dry_run?) (§4.11).
func (e *Engine) RunDecay(ctx context.Context, dryRun bool) (decay.EpisodicPlan, []decay.SemanticOutcome, error) {
	return e.facade.RunDecay(ctx, dryRun)
}

// RunReflection implements run_reflection (§4.12): clusters recent
// episodic activity and emits or advances hypotheses toward canonical
// decisions.
func (e *Engine) RunReflection(ctx context.Context) error {
	return e.facade.RunReflection(ctx)
}

// RunMaintenance implements run_maintenance (§4.7/§4.13): integrity
// scanning, vector index compaction, and lifecycle scoring in one pass.
func (e *Engine) RunMaintenance(ctx context.Context) error {
	return e.facade.RunMaintenance(ctx)
}

// RunLifecyclePass implements the C13 lifecycle engine standalone, for
// callers that want it on a different cadence than RunMaintenance.
func (e *Engine) RunLifecyclePass(ctx context.Context) error {
	return e.facade.RunLifecyclePass(ctx)
}

// SyncGit returns the audit backend's current HEAD hash (§4.2); it does not
// create a commit.
func (e *Engine) SyncGit(ctx context.Context) (string, error) {
	return e.facade.SyncGit(ctx)
}

// GenerateKnowledgeGraph implements generate_knowledge_graph(target?)
// (§4.10): the supersede-chain graph rooted at target, or the whole store
// when target is empty.
func (e *Engine) GenerateKnowledgeGraph(ctx context.Context, target string) ([]KnowledgeGraphNode, error) {
	return e.facade.GenerateKnowledgeGraph(ctx, target)
}

// CheckEnvironment implements check_environment() (§4.10): a point-in-time
// readiness report over the audit, metadata, and vector subsystems.
func (e *Engine) CheckEnvironment(ctx context.Context) EnvironmentReport {
	return e.facade.CheckEnvironment(ctx)
}

// Metrics returns a snapshot of the engine's accumulated OpenTelemetry
// metrics, or nil if telemetry is disabled.
func (e *Engine) Metrics(ctx context.Context) (any, error) {
	rm, err := telemetry.Collect(ctx, e.meterReader)
	if err != nil {
		return nil, err
	}
	return rm, nil
}
