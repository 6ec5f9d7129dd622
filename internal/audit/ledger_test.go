package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/filebroker/internal/apperr"
	"github.com/maneesh/filebroker/internal/models"
	"github.com/maneesh/filebroker/internal/storage/storagetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T, start time.Time, step time.Duration) (*Ledger, *storagetest.Repository) {
	t.Helper()
	repo := storagetest.NewRepository()
	l := NewLedger(repo, discardLogger())
	clock := start
	l.now = func() time.Time {
		now := clock
		clock = clock.Add(step)
		return now
	}
	return l, repo
}

func TestAppend_ValidatesAction(t *testing.T) {
	l, _ := newTestLedger(t, time.Now(), time.Millisecond)
	ctx := context.Background()

	_, err := l.Append(ctx, "alice", "f1", "invalid_action", nil)
	require.ErrorIs(t, err, apperr.ErrInvalidAction)
	assert.Contains(t, err.Error(), "view, download, upload, delete, share, access_attempt")

	for _, a := range models.Actions {
		e, err := l.Append(ctx, "alice", "f1", a, nil)
		require.NoError(t, err, a)
		assert.Equal(t, a, e.Action)
	}
}

func TestAppend_RequiresOwnerAndFile(t *testing.T) {
	l, _ := newTestLedger(t, time.Now(), time.Millisecond)

	_, err := l.Append(context.Background(), "", "f1", models.ActionView, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = l.Append(context.Background(), "alice", "", models.ActionView, nil)
	assert.ErrorIs(t, err, apperr.ErrMissingField)
}

func TestAppend_StampsEntry(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 6000, time.FixedZone("X", 3600))
	l, repo := newTestLedger(t, at, time.Millisecond)

	e, err := l.Append(context.Background(), "alice", "f1", models.ActionShare, nil)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-02T02:04:05.000006Z", e.Timestamp)
	assert.NotEmpty(t, e.EntryID)
	assert.Len(t, repo.AuditEntries("alice"), 1)
}

func TestAppend_MergesRequestInfo(t *testing.T) {
	l, _ := newTestLedger(t, time.Now(), time.Millisecond)

	input := map[string]any{"note": "x", "ipAddress": "1.2.3.4"}
	ctx := WithRequestInfo(context.Background(), RequestInfo{IPAddress: "10.0.0.7", UserAgent: "  "})

	e, err := l.Append(ctx, "alice", "f1", models.ActionView, input)
	require.NoError(t, err)

	assert.Equal(t, "x", e.Metadata["note"])
	assert.Equal(t, "10.0.0.7", e.Metadata["ipAddress"])
	assert.Equal(t, "unknown", e.Metadata["userAgent"])
	assert.Equal(t, "1.2.3.4", input["ipAddress"], "caller map must not be mutated")

	e, err = l.Append(context.Background(), "alice", "f1", models.ActionView, nil)
	require.NoError(t, err)
	assert.NotContains(t, e.Metadata, "ipAddress")
}

func TestAppend_RepositoryFailureIsInternal(t *testing.T) {
	l, repo := newTestLedger(t, time.Now(), time.Millisecond)
	repo.AppendErr = errors.New("write conflict")

	_, err := l.Append(context.Background(), "alice", "f1", models.ActionView, nil)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func seedJanuary(t *testing.T, l *Ledger) {
	t.Helper()
	days := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	for i, d := range days {
		d := d
		l.now = func() time.Time { return d }
		action := models.ActionView
		if i%2 == 1 {
			action = models.ActionDownload
		}
		_, err := l.Append(context.Background(), "alice", fmt.Sprintf("f%d", i%2), action, nil)
		require.NoError(t, err)
	}
}

func TestQuery_Range(t *testing.T) {
	l, _ := newTestLedger(t, time.Now(), time.Millisecond)
	seedJanuary(t, l)
	ctx := context.Background()

	tests := []struct {
		name  string
		p     QueryParams
		times []string
	}{
		{
			name:  "two sided inclusive",
			p:     QueryParams{StartDate: "2024-01-15", EndDate: "2024-01-31"},
			times: []string{"2024-01-31T23:00:00.000000Z", "2024-01-15T12:00:00.000000Z"},
		},
		{
			name:  "start only",
			p:     QueryParams{StartDate: "2024-01-31T23:00:00Z"},
			times: []string{"2024-02-01T00:00:00.000000Z", "2024-01-31T23:00:00.000000Z"},
		},
		{
			name:  "end only",
			p:     QueryParams{EndDate: "2024-01-01T00:00:00.000000Z"},
			times: []string{"2024-01-01T00:00:00.000000Z"},
		},
		{
			name:  "unbounded newest first",
			p:     QueryParams{},
			times: []string{"2024-02-01T00:00:00.000000Z", "2024-01-31T23:00:00.000000Z", "2024-01-15T12:00:00.000000Z", "2024-01-01T00:00:00.000000Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := l.Query(ctx, "alice", tt.p)
			require.NoError(t, err)
			var got []string
			for _, e := range page.Entries {
				got = append(got, e.Timestamp)
			}
			assert.Equal(t, tt.times, got)
		})
	}
}

func TestQuery_Filters(t *testing.T) {
	l, _ := newTestLedger(t, time.Now(), time.Millisecond)
	seedJanuary(t, l)
	ctx := context.Background()

	page, err := l.Query(ctx, "alice", QueryParams{FileID: "f1"})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 2)

	page, err = l.Query(ctx, "alice", QueryParams{Action: models.ActionDownload, StartDate: "2024-01-20"})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "2024-02-01T00:00:00.000000Z", page.Entries[0].Timestamp)
}

func TestQuery_OwnerIsolation(t *testing.T) {
	l, _ := newTestLedger(t, time.Now(), time.Millisecond)
	seedJanuary(t, l)

	page, err := l.Query(context.Background(), "bob", QueryParams{FileID: "f1"})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Empty(t, page.NextCursor)
}

func TestQuery_PaginationCapNoOverlapOrGap(t *testing.T) {
	// every third entry shares a timestamp with its neighbour
	l, _ := newTestLedger(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 0)
	ctx := context.Background()

	clock := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	want := map[string]bool{}
	for i := 0; i < 150; i++ {
		if i%3 != 0 {
			clock = clock.Add(time.Microsecond)
		}
		at := clock
		l.now = func() time.Time { return at }
		e, err := l.Append(ctx, "alice", "f", models.ActionView, nil)
		require.NoError(t, err)
		want[e.EntryID] = true
	}

	first, err := l.Query(ctx, "alice", QueryParams{Limit: 200})
	require.NoError(t, err)
	require.Len(t, first.Entries, MaxQueryLimit)
	require.NotEmpty(t, first.NextCursor)

	second, err := l.Query(ctx, "alice", QueryParams{Limit: 200, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Len(t, second.Entries, 50)
	assert.Empty(t, second.NextCursor)

	seen := map[string]bool{}
	prev := "~"
	for _, e := range append(first.Entries, second.Entries...) {
		assert.False(t, seen[e.EntryID])
		seen[e.EntryID] = true
		assert.LessOrEqual(t, e.Timestamp, prev)
		prev = e.Timestamp
	}
	assert.Equal(t, want, seen)
}

func TestQuery_DefaultLimit(t *testing.T) {
	l, _ := newTestLedger(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Second)
	for i := 0; i < 60; i++ {
		_, err := l.Append(context.Background(), "alice", "f", models.ActionView, nil)
		require.NoError(t, err)
	}

	page, err := l.Query(context.Background(), "alice", QueryParams{})
	require.NoError(t, err)
	assert.Len(t, page.Entries, DefaultQueryLimit)
	assert.NotEmpty(t, page.NextCursor)
}

func TestNormalizeBound(t *testing.T) {
	assert.Equal(t, "", normalizeBound("  ", false))
	assert.Equal(t, "2024-01-31T00:00:00.000000Z", normalizeBound("2024-01-31", false))
	assert.Equal(t, "2024-01-31T23:59:59.999999Z", normalizeBound("2024-01-31", true))
	assert.Equal(t, "2024-01-31T09:00:00.000000Z", normalizeBound("2024-01-31T10:00:00+01:00", true))
	assert.Equal(t, "yesterday", normalizeBound("yesterday", false))
}
