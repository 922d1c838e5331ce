package episodic

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ledgermind/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "episodic.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	id, err := s.Append(ctx, model.Event{
		Source: model.SourceUser, Kind: model.KindDecision, Content: "use sqlite",
		Timestamp: time.Now(), Status: model.EventActive,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	events, err := s.Query(ctx, QueryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "use sqlite", events[0].Content)
}

// TestFindDuplicate_DedupIdempotence reproduces §4.4/§8's idempotence law:
// appending the same (source, kind, content, context) pair twice within the
// window is detected, but two events differing only in source are not
// collapsed.
func TestFindDuplicate_DedupIdempotence(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Now()

	_, err := s.Append(ctx, model.Event{
		Source: model.SourceUser, Kind: model.KindError, Content: "db timeout",
		Context: []byte(`{"attempt":1}`), Timestamp: now, Status: model.EventActive,
	})
	require.NoError(t, err)

	_, found, err := s.FindDuplicate(ctx, model.SourceUser, model.KindError, "db timeout", []byte(`{"attempt":1}`), 5*time.Minute, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = s.FindDuplicate(ctx, model.SourceAgent, model.KindError, "db timeout", []byte(`{"attempt":1}`), 5*time.Minute, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, found, "events differing only in source must not dedup")

	_, found, err = s.FindDuplicate(ctx, model.SourceUser, model.KindError, "db timeout", []byte(`{"attempt":2}`), 5*time.Minute, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, found, "events differing in context must not dedup")
}

func TestFindDuplicate_OutsideWindow(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Now()

	_, err := s.Append(ctx, model.Event{
		Source: model.SourceUser, Kind: model.KindError, Content: "db timeout",
		Timestamp: now.Add(-10 * time.Minute), Status: model.EventActive,
	})
	require.NoError(t, err)

	_, found, err := s.FindDuplicate(ctx, model.SourceUser, model.KindError, "db timeout", nil, 5*time.Minute, now)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLinkToSemanticAndUnlink(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	id, err := s.Append(ctx, model.Event{Source: model.SourceAgent, Kind: model.KindResult, Content: "ok", Timestamp: time.Now(), Status: model.EventActive})
	require.NoError(t, err)

	require.NoError(t, s.LinkToSemantic(ctx, id, "decisions/x.md", 0.9))

	ids, err := s.GetLinkedEventIDs(ctx, "decisions/x.md")
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, ids)

	n, err := s.CountLinksForSemantic(ctx, "decisions/x.md")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	affected, err := s.UnlinkAllForSemantic(ctx, "decisions/x.md")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	n, err = s.CountLinksForSemantic(ctx, "decisions/x.md")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLinkToSemantic_NotFound(t *testing.T) {
	s := openStore(t)
	err := s.LinkToSemantic(context.Background(), 999, "decisions/x.md", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestMarkArchivedAndPrune exercises §4.11's two-stage lifecycle: archive
// stale unlinked events, then physically prune archived events past a
// second cutoff. Linked events are immortal at both stages (I2).
func TestMarkArchivedAndPrune(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Now()

	staleID, err := s.Append(ctx, model.Event{Source: model.SourceUser, Kind: model.KindResult, Content: "old", Timestamp: now.Add(-60 * 24 * time.Hour), Status: model.EventActive})
	require.NoError(t, err)

	linkedID, err := s.Append(ctx, model.Event{Source: model.SourceUser, Kind: model.KindResult, Content: "old-but-linked", Timestamp: now.Add(-60 * 24 * time.Hour), Status: model.EventActive})
	require.NoError(t, err)
	require.NoError(t, s.LinkToSemantic(ctx, linkedID, "decisions/keep.md", 1))

	archived, err := s.MarkArchived(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)

	pruned, err := s.PhysicalPrune(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = s.GetByIDs(ctx, []int64{staleID})
	require.NoError(t, err)
	remaining, err := s.GetByIDs(ctx, []int64{staleID, linkedID})
	require.NoError(t, err)
	require.Len(t, remaining, 1, "only the linked event should survive prune")
	assert.Equal(t, linkedID, remaining[0].ID)
}

func TestCountEvents(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, model.Event{Source: model.SourceUser, Kind: model.KindTask, Content: "x", Timestamp: time.Now(), Status: model.EventActive})
		require.NoError(t, err)
	}
	n, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
