// Package storagetest provides in-memory stand-ins for the storage clients.
// They keep the ordering and scoping rules of the SQL store.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maneesh/filebroker/internal/apperr"
	"github.com/maneesh/filebroker/internal/models"
)

// Repository is an in-memory file metadata store and audit ledger.
type Repository struct {
	mu    sync.Mutex
	files map[string]map[string]models.FileRecord
	audit map[string][]models.AuditEntry

	// Injected failures, returned by the matching method when set.
	CreateErr error
	GetErr    error
	ListErr   error
	DeleteErr error
	AppendErr error
	QueryErr  error
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{
		files: make(map[string]map[string]models.FileRecord),
		audit: make(map[string][]models.AuditEntry),
	}
}

func (r *Repository) CreateFile(_ context.Context, f *models.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CreateErr != nil {
		return r.CreateErr
	}
	owned := r.files[f.OwnerID]
	if owned == nil {
		owned = make(map[string]models.FileRecord)
		r.files[f.OwnerID] = owned
	}
	if _, ok := owned[f.FileID]; ok {
		return fmt.Errorf("duplicate file %s", f.FileID)
	}
	owned[f.FileID] = *f
	return nil
}

func (r *Repository) GetFile(_ context.Context, ownerID, fileID string) (*models.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.GetErr != nil {
		return nil, r.GetErr
	}
	f, ok := r.files[ownerID][fileID]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", fileID, apperr.ErrNotFound)
	}
	return &f, nil
}

func (r *Repository) ListFiles(_ context.Context, ownerID string, limit int, after *models.FilePosition) ([]*models.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ListErr != nil {
		return nil, r.ListErr
	}

	var out []*models.FileRecord
	for _, f := range r.files[ownerID] {
		if f.Status == models.StatusDeleted {
			continue
		}
		if after != nil && !fileBefore(f, *after) {
			continue
		}
		f := f
		out = append(out, &f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].FileID > out[j].FileID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fileBefore reports whether f sorts strictly after pos in descending order.
func fileBefore(f models.FileRecord, pos models.FilePosition) bool {
	if f.CreatedAt.Before(pos.CreatedAt) {
		return true
	}
	return f.CreatedAt.Equal(pos.CreatedAt) && f.FileID < pos.FileID
}

func (r *Repository) SoftDeleteFile(_ context.Context, ownerID, fileID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	f, ok := r.files[ownerID][fileID]
	if !ok || f.Status == models.StatusDeleted {
		return fmt.Errorf("file %s: %w", fileID, apperr.ErrAlreadyDeleted)
	}
	f.Status = models.StatusDeleted
	f.DeletedAt = &at
	f.UpdatedAt = &at
	r.files[ownerID][fileID] = f
	return nil
}

func (r *Repository) MarkFileUploaded(_ context.Context, ownerID, fileID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[ownerID][fileID]
	if !ok || f.Status != models.StatusPending {
		return false, nil
	}
	f.Status = models.StatusUploaded
	f.UpdatedAt = &at
	r.files[ownerID][fileID] = f
	return true, nil
}

func (r *Repository) AppendAudit(_ context.Context, e *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.AppendErr != nil {
		return r.AppendErr
	}
	r.audit[e.OwnerID] = append(r.audit[e.OwnerID], *e)
	return nil
}

func (r *Repository) QueryAudit(_ context.Context, q models.AuditQuery) ([]*models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.QueryErr != nil {
		return nil, r.QueryErr
	}

	var out []*models.AuditEntry
	for _, e := range r.audit[q.OwnerID] {
		switch {
		case q.Start != "" && e.Timestamp < q.Start:
			continue
		case q.End != "" && e.Timestamp > q.End:
			continue
		case q.After != nil && !entryBefore(e, *q.After):
			continue
		case q.FileID != "" && e.FileID != q.FileID:
			continue
		case q.Action != "" && e.Action != q.Action:
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].EntryID > out[j].EntryID
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func entryBefore(e models.AuditEntry, pos models.AuditPosition) bool {
	return e.Timestamp < pos.Timestamp || (e.Timestamp == pos.Timestamp && e.EntryID < pos.EntryID)
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

// File returns a copy of a stored record regardless of status.
func (r *Repository) File(ownerID, fileID string) (models.FileRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[ownerID][fileID]
	return f, ok
}

// AuditEntries returns the entries written for an owner in append order.
func (r *Repository) AuditEntries(ownerID string) []models.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuditEntry(nil), r.audit[ownerID]...)
}
