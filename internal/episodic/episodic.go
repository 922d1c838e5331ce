// Package episodic implements C4, the append-only event log backing
// episodic.db: raw occurrences (decisions, errors, results, assumptions)
// before they are promoted into semantic artifacts, grounded on the same
// modernc.org/sqlite embedding approach as internal/metastore.
package episodic

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashita-ai/ledgermind/internal/model"
)

var ErrNotFound = errors.New("episodic: not found")

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("episodic: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
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
CREATE TABLE IF NOT EXISTS events (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	source         TEXT NOT NULL,
	kind           TEXT NOT NULL,
	content        TEXT NOT NULL,
	context        TEXT,
	context_hash   TEXT NOT NULL DEFAULT '',
	timestamp      TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'active',
	linked_id      TEXT,
	link_strength  REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
CREATE INDEX IF NOT EXISTS idx_events_linked_id ON events(linked_id);
CREATE INDEX IF NOT EXISTS idx_events_dup ON events(source, kind, content, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("episodic: migrate: %w", err)
	}
	return nil
}

// Append inserts a new episodic event and returns its assigned id (§4.4
// append).
func (s *Store) Append(ctx context.Context, e model.Event) (int64, error) {
	hash := contextHash(e.Context)
	var ctxStr any
	if len(e.Context) > 0 {
		ctxStr = string(e.Context)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO events (source, kind, content, context, context_hash, timestamp, status, linked_id, link_strength)
VALUES (?,?,?,?,?,?,?,?,?)`,
		string(e.Source), string(e.Kind), e.Content, ctxStr, hash,
		e.Timestamp.UTC().Format(time.RFC3339Nano), string(e.Status), e.LinkedID, e.LinkStrength)
	if err != nil {
		return 0, fmt.Errorf("episodic: append: %w", err)
	}
	return res.LastInsertId()
}

// contextHash canonicalizes the context payload for duplicate detection
// (§4.4 find_duplicate: "canonicalized context JSON").
func contextHash(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		sum := sha256.Sum256(raw)
		return hex.EncodeToString(sum[:])
	}
	canon, err := json.Marshal(canonicalize(v))
	if err != nil {
		sum := sha256.Sum256(raw)
		return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// canonicalize recursively sorts map keys so semantically identical JSON
// produces an identical hash regardless of field order.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	default:
		return t
	}
}

// LinkToSemantic attaches an event to a semantic artifact fid, making it
// immortal (I2) (§4.4 link_to_semantic).
func (s *Store) LinkToSemantic(ctx context.Context, eventID int64, fid string, strength float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET linked_id = ?, link_strength = ? WHERE id = ?`, fid, strength, eventID)
	if err != nil {
		return fmt.Errorf("episodic: link_to_semantic: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnlinkAllForSemantic detaches every event linked to fid, used when an
// artifact is forgotten so its evidence events become mortal again (§4.4
// unlink_all_for_semantic).
func (s *Store) UnlinkAllForSemantic(ctx context.Context, fid string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET linked_id = NULL, link_strength = 0 WHERE linked_id = ?`, fid)
	if err != nil {
		return 0, fmt.Errorf("episodic: unlink_all_for_semantic: %w", err)
	}
	return res.RowsAffected()
}

// GetByIDs batch-fetches events (§4.4 get_by_ids).
func (s *Store) GetByIDs(ctx context.Context, ids []int64) ([]model.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, selectCols+` WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("episodic: get_by_ids: %w", err)
	}
	return scanEvents(rows)
}

// QueryFilter narrows Query results (§4.4 query).
type QueryFilter struct {
	Kind        model.EventKind
	Source      model.EventSource
	Status      model.EventStatus
	Since       time.Time
	Limit       int
}

// Query lists events matching the filter, newest first (§4.4 query).
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]model.Event, error) {
	q := selectCols + ` WHERE 1=1`
	var args []any
	if f.Kind != "" {
		q += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if f.Source != "" {
		q += ` AND source = ?`
		args = append(args, string(f.Source))
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		q += ` AND timestamp >= ?`
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	q += ` ORDER BY timestamp DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("episodic: query: %w", err)
	}
	return scanEvents(rows)
}

// FindDuplicate looks for a recent event with identical source, kind,
// content, and canonicalized context whose timestamp falls within the
// trailing window, returning its id if found (§4.4 find_duplicate: source is
// part of the dedup key, so two events differing only in source are never
// collapsed).
func (s *Store) FindDuplicate(ctx context.Context, source model.EventSource, kind model.EventKind, content string, rawContext json.RawMessage, within time.Duration, now time.Time) (int64, bool, error) {
	hash := contextHash(rawContext)
	cutoff := now.Add(-within).UTC().Format(time.RFC3339Nano)
	var id int64
	err := s.db.QueryRowContext(ctx, `
SELECT id FROM events
WHERE source = ? AND kind = ? AND content = ? AND context_hash = ? AND timestamp >= ?
ORDER BY timestamp DESC LIMIT 1`, string(source), string(kind), content, hash, cutoff).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("episodic: find_duplicate: %w", err)
	}
	return id, true, nil
}

// CountLinksForSemantic counts events linked to fid (§4.4
// count_links_for_semantic).
func (s *Store) CountLinksForSemantic(ctx context.Context, fid string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE linked_id = ?`, fid).Scan(&n)
	return n, err
}

// CountLinksForSemanticBatch is the batched form used by the lifecycle
// engine's coverage computation across many artifacts at once (§4.4
// count_links_for_semantic_batch, C13).
func (s *Store) CountLinksForSemanticBatch(ctx context.Context, fids []string) (map[string]int, error) {
	out := make(map[string]int, len(fids))
	if len(fids) == 0 {
		return out, nil
	}
	placeholders, args := inClauseStr(fids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT linked_id, COUNT(*) FROM events WHERE linked_id IN (`+placeholders+`) GROUP BY linked_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("episodic: count_links_for_semantic_batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fid string
		var n int
		if err := rows.Scan(&fid, &n); err != nil {
			return nil, err
		}
		out[fid] = n
	}
	return out, rows.Err()
}

// GetLinkedEventIDs returns the event ids linked to fid (§4.4
// get_linked_event_ids).
func (s *Store) GetLinkedEventIDs(ctx context.Context, fid string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM events WHERE linked_id = ? ORDER BY id`, fid)
	if err != nil {
		return nil, fmt.Errorf("episodic: get_linked_event_ids: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetLinkedEventIDsBatch is the batched form (§4.4
// get_linked_event_ids_batch).
func (s *Store) GetLinkedEventIDsBatch(ctx context.Context, fids []string) (map[string][]int64, error) {
	out := make(map[string][]int64, len(fids))
	if len(fids) == 0 {
		return out, nil
	}
	placeholders, args := inClauseStr(fids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT linked_id, id FROM events WHERE linked_id IN (`+placeholders+`) ORDER BY linked_id, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("episodic: get_linked_event_ids_batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fid string
		var id int64
		if err := rows.Scan(&fid, &id); err != nil {
			return nil, err
		}
		out[fid] = append(out[fid], id)
	}
	return out, rows.Err()
}

// MarkArchived flips status to archived for events older than cutoff, not
// linked to a semantic artifact and not of a protected kind (decision,
// constraint) (§4.11 decay; I2 keeps linked events out of scope here since
// Immortal events are never archived).
func (s *Store) MarkArchived(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE events SET status = 'archived'
WHERE status = 'active' AND linked_id IS NULL AND kind NOT IN ('decision', 'constraint') AND timestamp < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("episodic: mark_archived: %w", err)
	}
	return res.RowsAffected()
}

// PhysicalPrune permanently deletes archived, unlinked events older than
// cutoff (§4.11 decay, I2: linked_id IS NULL enforces immortality here too).
func (s *Store) PhysicalPrune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM events
WHERE status = 'archived' AND linked_id IS NULL AND timestamp < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("episodic: physical_prune: %w", err)
	}
	return res.RowsAffected()
}

// CountEvents reports the total event count, active and archived (§4.4
// count_events, used for health/maintenance reporting).
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

const selectCols = `SELECT id, source, kind, content, context, timestamp, status, linked_id, link_strength FROM events`

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var e model.Event
		var source, kind, status, ts string
		var ctxStr sql.NullString
		var linkedID sql.NullString
		if err := rows.Scan(&e.ID, &source, &kind, &e.Content, &ctxStr, &ts, &status, &linkedID, &e.LinkStrength); err != nil {
			return nil, err
		}
		e.Source = model.EventSource(source)
		e.Kind = model.EventKind(kind)
		e.Status = model.EventStatus(status)
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("episodic: parse timestamp: %w", err)
		}
		e.Timestamp = parsed
		if ctxStr.Valid {
			e.Context = json.RawMessage(ctxStr.String)
		}
		if linkedID.Valid {
			v := linkedID.String
			e.LinkedID = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += "?"
		args[i] = id
	}
	return s, args
}

func inClauseStr(vals []string) (string, []any) {
	args := make([]any, len(vals))
	s := ""
	for i, v := range vals {
		if i > 0 {
			s += ","
		}
		s += "?"
		args[i] = v
	}
	return s, args
}
