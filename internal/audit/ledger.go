// Package audit is the append-only ledger of actions taken against files.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maneesh/filebroker/internal/apperr"
	"github.com/maneesh/filebroker/internal/cursor"
	"github.com/maneesh/filebroker/internal/models"
)

const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 100

	unknown = "unknown"
)

// Repository persists audit entries. There is no update or delete.
type Repository interface {
	AppendAudit(ctx context.Context, e *models.AuditEntry) error
	QueryAudit(ctx context.Context, q models.AuditQuery) ([]*models.AuditEntry, error)
}

// QueryParams are the raw query inputs of a caller.
type QueryParams struct {
	Limit     int
	StartDate string
	EndDate   string
	FileID    string
	Action    models.Action
	Cursor    string
}

// Page is one slice of query results.
type Page struct {
	Entries    []*models.AuditEntry
	NextCursor string
}

// Ledger validates, stamps and queries audit entries.
type Ledger struct {
	repo   Repository
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewLedger creates a ledger over repo.
func NewLedger(repo Repository, logger *slog.Logger) *Ledger {
	return &Ledger{
		repo:   repo,
		logger: logger.With("component", "audit_ledger"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Append validates action, assigns the timestamp and entry id, merges the
// caller's request info into metadata and writes the entry.
func (l *Ledger) Append(ctx context.Context, ownerID, fileID string, action models.Action, metadata map[string]any) (*models.AuditEntry, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if fileID == "" {
		return nil, apperr.New(apperr.KindMissingField, "Missing required fields: fileId, action")
	}
	if !action.Valid() {
		return nil, InvalidActionError()
	}

	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	if info, ok := RequestInfoFromContext(ctx); ok {
		meta["ipAddress"] = orUnknown(info.IPAddress)
		meta["userAgent"] = orUnknown(info.UserAgent)
	}

	e := &models.AuditEntry{
		OwnerID:   ownerID,
		Timestamp: FormatTimestamp(l.now()),
		EntryID:   l.newID(),
		FileID:    fileID,
		Action:    action,
		Metadata:  meta,
	}

	if err := l.repo.AppendAudit(ctx, e); err != nil {
		return nil, apperr.Wrap(err, "append audit entry")
	}
	return e, nil
}

// Query returns the owner's entries newest first within an inclusive range.
func (l *Ledger) Query(ctx context.Context, ownerID string, p QueryParams) (*Page, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}

	limit := cursor.ClampLimit(p.Limit, DefaultQueryLimit, MaxQueryLimit)

	q := models.AuditQuery{
		OwnerID: ownerID,
		Limit:   limit + 1,
		Start:   normalizeBound(p.StartDate, false),
		End:     normalizeBound(p.EndDate, true),
		FileID:  p.FileID,
		Action:  p.Action,
	}
	if p.Cursor != "" {
		var pos models.AuditPosition
		if err := cursor.Decode(p.Cursor, &pos); err != nil {
			l.logger.WarnContext(ctx, "ignoring invalid audit cursor", "error", err)
		} else {
			q.After = &pos
		}
	}

	entries, err := l.repo.QueryAudit(ctx, q)
	if err != nil {
		return nil, apperr.Wrap(err, "query audit entries")
	}

	page := &Page{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		last := page.Entries[limit-1]
		next, err := cursor.Encode(models.AuditPosition{Timestamp: last.Timestamp, EntryID: last.EntryID})
		if err != nil {
			return nil, apperr.Internal(err)
		}
		page.NextCursor = next
	}
	return page, nil
}

// InvalidActionError lists the accepted actions.
func InvalidActionError() *apperr.Error {
	names := make([]string, len(models.Actions))
	for i, a := range models.Actions {
		names[i] = string(a)
	}
	return apperr.WithDetails(apperr.KindInvalidAction,
		fmt.Sprintf("Invalid action. Must be one of: %s", strings.Join(names, ", ")),
		map[string]any{"allowedActions": names})
}

// FormatTimestamp renders t in the fixed-width ledger layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(models.AuditTimestampLayout)
}

// normalizeBound rewrites a date or RFC 3339 bound into the ledger layout.
// A date-only upper bound covers the whole day. Anything else is compared
// as given.
func normalizeBound(s string, upper bool) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		if upper {
			d = d.Add(24*time.Hour - time.Microsecond)
		}
		return FormatTimestamp(d)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return FormatTimestamp(t)
	}
	return s
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}
