// Package metastore implements C3, the relational metadata index backing
// semantic_meta.db: a fast, queryable shadow of the artifact store's
// filesystem content, grounded on akashi's storage/pool.go connection
// handling and modernc.org/sqlite's pure-Go embedded engine the way
// steveyegge-beads and untoldecay-BeadsLog use it for single-host tool data.
package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashita-ai/ledgermind/internal/model"
)

// ErrNotFound mirrors the root package's sentinel for row-not-present (kept
// local so this package has no dependency on the root package, matching
// akashi's internal/storage/errors.go keeping its own ErrNotFound rather
// than importing the top-level module).
var ErrNotFound = errors.New("metastore: not found")

// Store is the C3 relational metadata index.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite-backed metadata index at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("metastore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	fid                    TEXT PRIMARY KEY,
	target                 TEXT NOT NULL,
	title                  TEXT NOT NULL,
	status                 TEXT NOT NULL,
	kind                   TEXT NOT NULL,
	timestamp              TEXT NOT NULL,
	superseded_by          TEXT,
	content                TEXT NOT NULL DEFAULT '',
	keywords               TEXT NOT NULL DEFAULT '[]',
	confidence             REAL NOT NULL DEFAULT 0,
	namespace              TEXT NOT NULL DEFAULT 'default',
	hit_count              INTEGER NOT NULL DEFAULT 0,
	phase                  TEXT NOT NULL DEFAULT 'pattern',
	vitality               TEXT NOT NULL DEFAULT 'active',
	reinforcement_density  REAL NOT NULL DEFAULT 0,
	stability_score        REAL NOT NULL DEFAULT 0,
	coverage               REAL NOT NULL DEFAULT 0,
	last_hit_at            TEXT
);
CREATE INDEX IF NOT EXISTS idx_artifacts_target_ns ON artifacts(target, namespace);
CREATE INDEX IF NOT EXISTS idx_artifacts_status ON artifacts(status);
CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON artifacts(kind);
CREATE UNIQUE INDEX IF NOT EXISTS idx_artifacts_single_active ON artifacts(target, namespace)
	WHERE status = 'active' AND kind = 'decision';

CREATE VIRTUAL TABLE IF NOT EXISTS artifacts_fts USING fts5(
	fid UNINDEXED, title, content, keywords, tokenize='porter unicode61'
);

CREATE TABLE IF NOT EXISTS kv_config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_fid TEXT NOT NULL,
	assessor_id  TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assessments_fid ON assessments(decision_fid);
`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("metastore: migrate: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a row (§4.3 upsert).
func (s *Store) Upsert(ctx context.Context, r model.Row) error {
	return s.upsertTx(ctx, s.db, r)
}

// UpsertTx is the same operation bound to an existing *sql.Tx, used by the
// transaction manager (C6) to keep the metadata write inside the coordinated
// commit.
func (s *Store) UpsertTx(ctx context.Context, tx *sql.Tx, r model.Row) error {
	return s.upsertTx(ctx, tx, r)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsertTx(ctx context.Context, ex execer, r model.Row) error {
	kw, err := json.Marshal(r.Keywords)
	if err != nil {
		return fmt.Errorf("metastore: marshal keywords: %w", err)
	}
	var lastHit *string
	if r.LastHitAt != nil {
		v := r.LastHitAt.UTC().Format(time.RFC3339Nano)
		lastHit = &v
	}
	_, err = ex.ExecContext(ctx, `
INSERT INTO artifacts (fid, target, title, status, kind, timestamp, superseded_by, content,
	keywords, confidence, namespace, hit_count, phase, vitality, reinforcement_density,
	stability_score, coverage, last_hit_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(fid) DO UPDATE SET
	target=excluded.target, title=excluded.title, status=excluded.status, kind=excluded.kind,
	timestamp=excluded.timestamp, superseded_by=excluded.superseded_by, content=excluded.content,
	keywords=excluded.keywords, confidence=excluded.confidence, namespace=excluded.namespace,
	hit_count=excluded.hit_count, phase=excluded.phase, vitality=excluded.vitality,
	reinforcement_density=excluded.reinforcement_density, stability_score=excluded.stability_score,
	coverage=excluded.coverage, last_hit_at=excluded.last_hit_at
`,
		r.FID, r.Target, r.Title, string(r.Status), string(r.Kind), r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.SupersededBy, r.Content, string(kw), r.Confidence, r.Namespace, r.HitCount,
		string(r.Phase), string(r.Vitality), r.ReinforcementDensity, r.StabilityScore, r.Coverage, lastHit)
	if err != nil {
		return fmt.Errorf("metastore: upsert %s: %w", r.FID, err)
	}

	_, err = ex.ExecContext(ctx, `DELETE FROM artifacts_fts WHERE fid = ?`, r.FID)
	if err != nil {
		return fmt.Errorf("metastore: fts delete %s: %w", r.FID, err)
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO artifacts_fts (fid, title, content, keywords) VALUES (?,?,?,?)`,
		r.FID, r.Title, r.Content, strings.Join(r.Keywords, " "))
	if err != nil {
		return fmt.Errorf("metastore: fts insert %s: %w", r.FID, err)
	}
	return nil
}

// GetByFID fetches a single row (§4.3 get_by_fid).
func (s *Store) GetByFID(ctx context.Context, fid string) (model.Row, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` WHERE fid = ?`, fid)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Row{}, ErrNotFound
	}
	return r, err
}

// GetActiveFID returns the fid of the single active decision for
// (target, namespace), or ErrNotFound if none exists (§4.3 get_active_fid,
// I4).
func (s *Store) GetActiveFID(ctx context.Context, target, namespace string) (string, error) {
	var fid string
	err := s.db.QueryRowContext(ctx,
		`SELECT fid FROM artifacts WHERE target = ? AND namespace = ? AND status = 'active' LIMIT 1`,
		target, namespace).Scan(&fid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("metastore: get_active_fid: %w", err)
	}
	return fid, nil
}

// ListAll returns every row, newest first (§4.3 list_all).
func (s *Store) ListAll(ctx context.Context) ([]model.Row, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("metastore: list_all: %w", err)
	}
	return scanRows(rows)
}

// ListActiveTargets returns the distinct targets in namespace that have a
// currently active artifact.
func (s *Store) ListActiveTargets(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT target FROM artifacts WHERE namespace = ? AND status = 'active'`, namespace)
	if err != nil {
		return nil, fmt.Errorf("metastore: list_active_targets: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListDraftProposals returns proposals awaiting review (§4.3
// list_draft_proposals).
func (s *Store) ListDraftProposals(ctx context.Context, namespace string) ([]model.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCols+` WHERE namespace = ? AND kind = 'proposal' AND status = 'draft' ORDER BY timestamp DESC`,
		namespace)
	if err != nil {
		return nil, fmt.Errorf("metastore: list_draft_proposals: %w", err)
	}
	return scanRows(rows)
}

// Delete removes a row by fid (§4.3 delete, used by forget()).
func (s *Store) Delete(ctx context.Context, fid string) error {
	return s.DeleteTx(ctx, s.db, fid)
}

// DeleteTx is Delete bound to an existing transaction.
func (s *Store) DeleteTx(ctx context.Context, ex execer, fid string) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM artifacts WHERE fid = ?`, fid); err != nil {
		return fmt.Errorf("metastore: delete %s: %w", fid, err)
	}
	if _, err := ex.ExecContext(ctx, `DELETE FROM artifacts_fts WHERE fid = ?`, fid); err != nil {
		return fmt.Errorf("metastore: fts delete %s: %w", fid, err)
	}
	return nil
}

// IncrementHit bumps hit_count and last_hit_at for a retrieved artifact
// (§4.3 increment_hit, feeds reinforcement_density in C13).
func (s *Store) IncrementHit(ctx context.Context, fid string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE artifacts SET hit_count = hit_count + 1, last_hit_at = ? WHERE fid = ?`,
		at.UTC().Format(time.RFC3339Nano), fid)
	if err != nil {
		return fmt.Errorf("metastore: increment_hit %s: %w", fid, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// KeywordSearch runs the FTS5 side of hybrid retrieval (§4.10 step 1b),
// returning fids ranked by bm25, best first.
func (s *Store) KeywordSearch(ctx context.Context, query, namespace string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT a.fid FROM artifacts_fts f
JOIN artifacts a ON a.fid = f.fid
WHERE artifacts_fts MATCH ? AND a.namespace = ?
ORDER BY bm25(artifacts_fts) LIMIT ?`, sanitizeFTSQuery(query), namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("metastore: keyword_search: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var fid string
		if err := rows.Scan(&fid); err != nil {
			return nil, err
		}
		out = append(out, fid)
	}
	return out, rows.Err()
}

// sanitizeFTSQuery quotes each token so punctuation in free text (quotes,
// colons) cannot be interpreted as FTS5 query syntax.
func sanitizeFTSQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		fields[i] = `"` + f + `"`
	}
	return strings.Join(fields, " OR ")
}

// GetConfig/SetConfig persist small engine-wide scalars (e.g. decay
// watermarks) alongside the metadata index (§4.3 get_config/set_config).
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_config WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_config (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// ResolveToTruth walks the superseded_by chain from fid to the currently
// active artifact, returning its fid (§4.3 resolve_to_truth, used by search
// truth resolution in §4.10 step 2). Detects cycles defensively even though
// I5 should prevent them.
func (s *Store) ResolveToTruth(ctx context.Context, fid string) (string, error) {
	seen := map[string]bool{}
	cur := fid
	for {
		if seen[cur] {
			return "", fmt.Errorf("metastore: resolve_to_truth: cycle detected at %s", cur)
		}
		seen[cur] = true
		row, err := s.GetByFID(ctx, cur)
		if err != nil {
			return "", err
		}
		if row.SupersededBy == nil || *row.SupersededBy == "" {
			return cur, nil
		}
		cur = *row.SupersededBy
	}
}

// RecordAssessment persists explicit outcome feedback on a decision
// artifact (SPEC_FULL.md C.3, modeled on the teacher's DecisionAssessment).
func (s *Store) RecordAssessment(ctx context.Context, a model.Assessment, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (decision_fid, assessor_id, outcome, notes, created_at) VALUES (?,?,?,?,?)`,
		a.DecisionFID, a.AssessorID, string(a.Outcome), a.Notes, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("metastore: record_assessment %s: %w", a.DecisionFID, err)
	}
	return nil
}

// GetAssessmentSummary tallies every assessment recorded against fid (§4.10
// step 4 rescoring input).
func (s *Store) GetAssessmentSummary(ctx context.Context, fid string) (model.AssessmentSummary, error) {
	summaries, err := s.GetAssessmentSummaries(ctx, []string{fid})
	if err != nil {
		return model.AssessmentSummary{}, err
	}
	return summaries[fid], nil
}

// GetAssessmentSummaries tallies the assessments of every fid in fids with
// one query; GetAssessmentSummary is its single-fid form.
func (s *Store) GetAssessmentSummaries(ctx context.Context, fids []string) (map[string]model.AssessmentSummary, error) {
	out := map[string]model.AssessmentSummary{}
	if len(fids) == 0 {
		return out, nil
	}
	placeholders := strings.Repeat("?,", len(fids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(fids))
	for i, f := range fids {
		args[i] = f
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT decision_fid, outcome FROM assessments WHERE decision_fid IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("metastore: get_assessment_summaries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fid, outcome string
		if err := rows.Scan(&fid, &outcome); err != nil {
			return nil, err
		}
		summary := out[fid]
		summary.Total++
		switch model.AssessmentOutcome(outcome) {
		case model.AssessmentCorrect:
			summary.Correct++
		case model.AssessmentIncorrect:
			summary.Incorrect++
		case model.AssessmentPartiallyCorrect:
			summary.PartiallyCorrect++
		}
		out[fid] = summary
	}
	return out, rows.Err()
}

// BeginTx exposes a raw transaction for the C6 transaction manager to
// coordinate metastore writes with the other stores.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

const selectCols = `
SELECT fid, target, title, status, kind, timestamp, superseded_by, content, keywords,
       confidence, namespace, hit_count, phase, vitality, reinforcement_density,
       stability_score, coverage, last_hit_at
FROM artifacts`

func scanRow(row *sql.Row) (model.Row, error) {
	var r model.Row
	var status, kind, phase, vitality, ts string
	var keywordsJSON string
	var supersededBy, lastHit sql.NullString
	err := row.Scan(&r.FID, &r.Target, &r.Title, &status, &kind, &ts, &supersededBy, &r.Content,
		&keywordsJSON, &r.Confidence, &r.Namespace, &r.HitCount, &phase, &vitality,
		&r.ReinforcementDensity, &r.StabilityScore, &r.Coverage, &lastHit)
	if err != nil {
		return model.Row{}, err
	}
	return fillRow(r, status, kind, phase, vitality, ts, keywordsJSON, supersededBy, lastHit)
}

func scanRows(rows *sql.Rows) ([]model.Row, error) {
	defer rows.Close()
	var out []model.Row
	for rows.Next() {
		var r model.Row
		var status, kind, phase, vitality, ts string
		var keywordsJSON string
		var supersededBy, lastHit sql.NullString
		if err := rows.Scan(&r.FID, &r.Target, &r.Title, &status, &kind, &ts, &supersededBy, &r.Content,
			&keywordsJSON, &r.Confidence, &r.Namespace, &r.HitCount, &phase, &vitality,
			&r.ReinforcementDensity, &r.StabilityScore, &r.Coverage, &lastHit); err != nil {
			return nil, err
		}
		filled, err := fillRow(r, status, kind, phase, vitality, ts, keywordsJSON, supersededBy, lastHit)
		if err != nil {
			return nil, err
		}
		out = append(out, filled)
	}
	return out, rows.Err()
}

func fillRow(r model.Row, status, kind, phase, vitality, ts, keywordsJSON string, supersededBy, lastHit sql.NullString) (model.Row, error) {
	r.Status = model.ArtifactStatus(status)
	r.Kind = model.ArtifactKind(kind)
	r.Phase = model.Phase(phase)
	r.Vitality = model.Vitality(vitality)

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return model.Row{}, fmt.Errorf("metastore: parse timestamp: %w", err)
	}
	r.Timestamp = parsed

	if supersededBy.Valid {
		v := supersededBy.String
		r.SupersededBy = &v
	}
	if lastHit.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastHit.String)
		if err != nil {
			return model.Row{}, fmt.Errorf("metastore: parse last_hit_at: %w", err)
		}
		r.LastHitAt = &t
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &r.Keywords); err != nil {
		return model.Row{}, fmt.Errorf("metastore: unmarshal keywords: %w", err)
	}
	return r, nil
}
