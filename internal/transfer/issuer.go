// Package transfer issues time-limited, object-scoped credentials for
// direct transfers between clients and the blob store.
package transfer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maneesh/filebroker/internal/apperr"
	"github.com/maneesh/filebroker/internal/audit"
	"github.com/maneesh/filebroker/internal/metrics"
	"github.com/maneesh/filebroker/internal/models"
)

// DefaultTTL is the lifetime of an issued credential.
const DefaultTTL = time.Hour

// BlobStore signs transfer URLs and removes objects.
type BlobStore interface {
	PresignPut(ctx context.Context, key, contentType string, contentLength int64, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// FileStore is the part of the metadata store the issuer needs.
type FileStore interface {
	Create(ctx context.Context, ownerID, fileName, contentType string, fileSize int64) (*models.FileRecord, error)
	Get(ctx context.Context, ownerID, fileID string) (*models.FileRecord, error)
}

// Credential is a presigned URL and the file it grants access to.
type Credential struct {
	URL       string
	ExpiresIn int
	File      *models.FileRecord
}

// Issuer sequences record creation or lookup, signing and auditing.
type Issuer struct {
	files    FileStore
	blobs    BlobStore
	recorder audit.Recorder
	ttl      time.Duration
	logger   *slog.Logger
}

// NewIssuer creates an issuer. A non-positive ttl selects DefaultTTL.
func NewIssuer(files FileStore, blobs BlobStore, recorder audit.Recorder, ttl time.Duration, logger *slog.Logger) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		files:    files,
		blobs:    blobs,
		recorder: recorder,
		ttl:      ttl,
		logger:   logger.With("component", "transfer_issuer"),
	}
}

// IssueUpload creates a pending record and signs a PUT for exactly its key,
// content type and size. If signing fails the pending record is kept.
func (i *Issuer) IssueUpload(ctx context.Context, ownerID, fileName, contentType string, fileSize int64) (*Credential, error) {
	f, err := i.files.Create(ctx, ownerID, fileName, contentType, fileSize)
	if err != nil {
		return nil, err
	}

	u, err := i.blobs.PresignPut(ctx, f.StorageKey, f.ContentType, f.FileSize, i.ttl)
	if err != nil {
		i.logger.ErrorContext(ctx, "presign upload failed",
			"file_id", f.FileID,
			"storage_key", f.StorageKey,
			"error", err,
		)
		return nil, apperr.Internal(err)
	}
	metrics.CredentialIssued("upload")

	i.recorder.Record(ctx, ownerID, f.FileID, models.ActionUpload, map[string]any{
		"fileName":    f.FileName,
		"contentType": f.ContentType,
		"fileSize":    f.FileSize,
		"storageKey":  f.StorageKey,
	})

	return &Credential{URL: u, ExpiresIn: int(i.ttl.Seconds()), File: f}, nil
}

// IssueDownload signs a GET for a live record. Missing and deleted records
// both fail with apperr.ErrNotFound.
func (i *Issuer) IssueDownload(ctx context.Context, ownerID, fileID string) (*Credential, error) {
	f, err := i.files.Get(ctx, ownerID, fileID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			i.recordRefusal(ctx, ownerID, fileID)
		}
		return nil, err
	}
	if f.Status == models.StatusDeleted {
		i.recordRefusal(ctx, ownerID, fileID)
		return nil, apperr.ErrNotFound
	}

	u, err := i.blobs.PresignGet(ctx, f.StorageKey, f.FileName, i.ttl)
	if err != nil {
		i.logger.ErrorContext(ctx, "presign download failed",
			"file_id", f.FileID,
			"storage_key", f.StorageKey,
			"error", err,
		)
		return nil, apperr.Internal(err)
	}
	metrics.CredentialIssued("download")

	i.recorder.Record(ctx, ownerID, f.FileID, models.ActionDownload, map[string]any{
		"fileName":   f.FileName,
		"storageKey": f.StorageKey,
	})

	return &Credential{URL: u, ExpiresIn: int(i.ttl.Seconds()), File: f}, nil
}

func (i *Issuer) recordRefusal(ctx context.Context, ownerID, fileID string) {
	i.recorder.Record(ctx, ownerID, fileID, models.ActionAccessAttempt, map[string]any{
		"operation": "download",
		"result":    "not_found",
	})
}
