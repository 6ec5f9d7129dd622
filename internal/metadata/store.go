// Package metadata owns the lifecycle record of every file. All operations
// are scoped by owner; a record of another owner behaves as if it did not
// exist.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/maneesh/filebroker/internal/apperr"
	"github.com/maneesh/filebroker/internal/cursor"
	"github.com/maneesh/filebroker/internal/metrics"
	"github.com/maneesh/filebroker/internal/models"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100

	// Column widths of the files table, in characters.
	MaxOwnerIDLength  = 255
	MaxFileNameLength = 1024
)

// Repository persists file records.
type Repository interface {
	CreateFile(ctx context.Context, f *models.FileRecord) error
	GetFile(ctx context.Context, ownerID, fileID string) (*models.FileRecord, error)
	ListFiles(ctx context.Context, ownerID string, limit int, after *models.FilePosition) ([]*models.FileRecord, error)
	SoftDeleteFile(ctx context.Context, ownerID, fileID string, at time.Time) error
	MarkFileUploaded(ctx context.Context, ownerID, fileID string, at time.Time) (bool, error)
}

// Cache holds tombstones of deleted records for point lookups. A nil record
// with a nil error is a miss.
type Cache interface {
	GetFileMetadata(ctx context.Context, ownerID, fileID string) (*models.FileRecord, error)
	SetFileMetadata(ctx context.Context, f *models.FileRecord) error
	InvalidateFileMetadata(ctx context.Context, ownerID, fileID string) error
}

// UploadListener is notified when the blob store confirms an upload.
type UploadListener interface {
	UploadConfirmed(ctx context.Context, ownerID, fileID string) error
}

// Options are the creation constraints.
type Options struct {
	MaxFileSize         int64
	AllowedContentTypes []string
}

// Page is one slice of a listing.
type Page struct {
	Files      []*models.FileRecord
	NextCursor string
}

// Store implements the file record state machine.
type Store struct {
	repo    Repository
	cache   Cache
	opts    Options
	allowed map[string]struct{}
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

var _ UploadListener = (*Store)(nil)

// NewStore creates a store. cache may be nil.
func NewStore(repo Repository, cache Cache, opts Options, logger *slog.Logger) *Store {
	allowed := make(map[string]struct{}, len(opts.AllowedContentTypes))
	for _, ct := range opts.AllowedContentTypes {
		allowed[ct] = struct{}{}
	}
	return &Store{
		repo:    repo,
		cache:   cache,
		opts:    opts,
		allowed: allowed,
		logger:  logger.With("component", "metadata_store"),
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:   func() string { return uuid.New().String() },
	}
}

// AllowedContentTypes returns the upload allow-list.
func (s *Store) AllowedContentTypes() []string {
	return append([]string(nil), s.opts.AllowedContentTypes...)
}

// Create validates and persists a new pending record.
func (s *Store) Create(ctx context.Context, ownerID, fileName, contentType string, fileSize int64) (*models.FileRecord, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if utf8.RuneCountInString(ownerID) > MaxOwnerIDLength {
		return nil, apperr.WithDetails(apperr.KindInvalidInput,
			fmt.Sprintf("Owner identifier exceeds %d characters", MaxOwnerIDLength),
			map[string]any{"maxOwnerIdLength": MaxOwnerIDLength})
	}
	if utf8.RuneCountInString(fileName) > MaxFileNameLength {
		return nil, apperr.WithDetails(apperr.KindInvalidInput,
			fmt.Sprintf("File name exceeds %d characters", MaxFileNameLength),
			map[string]any{"maxFileNameLength": MaxFileNameLength})
	}
	if fileSize > s.opts.MaxFileSize {
		return nil, apperr.WithDetails(apperr.KindPayloadTooLarge,
			"File size exceeds maximum allowed ("+formatSize(s.opts.MaxFileSize)+")",
			map[string]any{"maxFileSize": s.opts.MaxFileSize})
	}
	if _, ok := s.allowed[contentType]; !ok {
		return nil, apperr.WithDetails(apperr.KindUnsupportedMediaType,
			fmt.Sprintf("Content type '%s' is not allowed", contentType),
			map[string]any{"allowedTypes": s.AllowedContentTypes()})
	}

	fileID := s.newID()
	f := &models.FileRecord{
		OwnerID:     ownerID,
		FileID:      fileID,
		FileName:    fileName,
		ContentType: contentType,
		FileSize:    fileSize,
		StorageKey:  StorageKey(ownerID, fileID, fileName),
		Status:      models.StatusPending,
		CreatedAt:   s.now(),
	}

	if err := s.repo.CreateFile(ctx, f); err != nil {
		return nil, apperr.Wrap(err, "create file")
	}

	s.logger.DebugContext(ctx, "file record created",
		"file_id", f.FileID,
		"content_type", f.ContentType,
		"file_size", f.FileSize,
	)
	return f, nil
}

// Get returns the owner's record in any status, or apperr.ErrNotFound.
// Only deleted records are served from the cache; live records are always
// read from the repository.
func (s *Store) Get(ctx context.Context, ownerID, fileID string) (*models.FileRecord, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, apperr.ErrNotFound
	}

	if f := s.cachedTombstone(ctx, ownerID, fileID); f != nil {
		return f, nil
	}

	f, err := s.repo.GetFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, apperr.Wrap(err, "get file")
	}
	if f.Status == models.StatusDeleted {
		s.remember(ctx, f)
	}
	return f, nil
}

func (s *Store) cachedTombstone(ctx context.Context, ownerID, fileID string) *models.FileRecord {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.GetFileMetadata(ctx, ownerID, fileID)
	switch {
	case err != nil:
		metrics.CacheLookup("error")
		s.logger.WarnContext(ctx, "metadata cache read failed", "file_id", fileID, "error", err)
		return nil
	case cached == nil:
		metrics.CacheLookup("miss")
		return nil
	case cached.Status != models.StatusDeleted:
		// live entries are never trusted
		metrics.CacheLookup("miss")
		s.forget(ctx, ownerID, fileID)
		return nil
	}
	metrics.CacheLookup("hit")
	return cached
}

// List returns the owner's non-deleted records, newest first.
func (s *Store) List(ctx context.Context, ownerID string, limit int, token string) (*Page, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	limit = cursor.ClampLimit(limit, DefaultListLimit, MaxListLimit)

	var after *models.FilePosition
	if token != "" {
		var pos models.FilePosition
		if err := cursor.Decode(token, &pos); err != nil {
			s.logger.WarnContext(ctx, "ignoring invalid list cursor", "error", err)
		} else {
			after = &pos
		}
	}

	files, err := s.repo.ListFiles(ctx, ownerID, limit+1, after)
	if err != nil {
		return nil, apperr.Wrap(err, "list files")
	}

	page := &Page{Files: files}
	if len(files) > limit {
		page.Files = files[:limit]
		last := page.Files[limit-1]
		next, err := cursor.Encode(models.FilePosition{CreatedAt: last.CreatedAt, FileID: last.FileID})
		if err != nil {
			return nil, apperr.Internal(err)
		}
		page.NextCursor = next
	}
	return page, nil
}

// SoftDelete moves a record to the terminal deleted state. A second call
// fails with apperr.ErrAlreadyDeleted.
func (s *Store) SoftDelete(ctx context.Context, ownerID, fileID string) (*models.FileRecord, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, apperr.ErrNotFound
	}

	f, err := s.repo.GetFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, apperr.Wrap(err, "get file")
	}
	if f.Status == models.StatusDeleted {
		return nil, apperr.ErrAlreadyDeleted
	}

	at := s.now()
	if err := s.repo.SoftDeleteFile(ctx, ownerID, fileID, at); err != nil {
		return nil, apperr.Wrap(err, "soft delete file")
	}

	f.Status = models.StatusDeleted
	f.DeletedAt = &at
	f.UpdatedAt = &at
	s.remember(ctx, f)
	return f, nil
}

// MarkUploaded moves a pending record to uploaded. It is a no-op for an
// uploaded record and fails with apperr.ErrNotFound for a deleted one.
func (s *Store) MarkUploaded(ctx context.Context, ownerID, fileID string) error {
	if ownerID == "" {
		return apperr.ErrUnauthenticated
	}
	if _, err := uuid.Parse(fileID); err != nil {
		return apperr.ErrNotFound
	}

	f, err := s.repo.GetFile(ctx, ownerID, fileID)
	if err != nil {
		return apperr.Wrap(err, "get file")
	}
	switch f.Status {
	case models.StatusDeleted:
		return apperr.ErrNotFound
	case models.StatusUploaded:
		return nil
	}

	if _, err := s.repo.MarkFileUploaded(ctx, ownerID, fileID, s.now()); err != nil {
		return apperr.Wrap(err, "mark file uploaded")
	}
	return nil
}

// UploadConfirmed implements UploadListener.
func (s *Store) UploadConfirmed(ctx context.Context, ownerID, fileID string) error {
	return s.MarkUploaded(ctx, ownerID, fileID)
}

func (s *Store) remember(ctx context.Context, f *models.FileRecord) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetFileMetadata(ctx, f); err != nil {
		s.logger.WarnContext(ctx, "metadata cache write failed", "file_id", f.FileID, "error", err)
	}
}

func (s *Store) forget(ctx context.Context, ownerID, fileID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFileMetadata(ctx, ownerID, fileID); err != nil {
		s.logger.WarnContext(ctx, "metadata cache invalidation failed", "file_id", fileID, "error", err)
	}
}

func formatSize(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

