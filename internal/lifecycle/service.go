// Package lifecycle sequences identity resolution, validation, metadata
// transitions, credential issuance and auditing for every file operation.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/maneesh/filebroker/internal/apperr"
	"github.com/maneesh/filebroker/internal/audit"
	"github.com/maneesh/filebroker/internal/identity"
	"github.com/maneesh/filebroker/internal/metadata"
	"github.com/maneesh/filebroker/internal/models"
	"github.com/maneesh/filebroker/internal/transfer"
)

const deletedMessage = "File deleted successfully"

// Service is the transport independent entry point of the broker.
type Service struct {
	resolver *identity.Resolver
	files    *metadata.Store
	ledger   *audit.Ledger
	recorder audit.Recorder
	issuer   *transfer.Issuer
	blobs    transfer.BlobStore
	logger   *slog.Logger
}

// Deps are the collaborators of a Service.
type Deps struct {
	Resolver *identity.Resolver
	Files    *metadata.Store
	Ledger   *audit.Ledger
	Recorder audit.Recorder
	Issuer   *transfer.Issuer
	Blobs    transfer.BlobStore
}

// NewService wires a Service.
func NewService(deps Deps, logger *slog.Logger) *Service {
	return &Service{
		resolver: deps.Resolver,
		files:    deps.Files,
		ledger:   deps.Ledger,
		recorder: deps.Recorder,
		issuer:   deps.Issuer,
		blobs:    deps.Blobs,
		logger:   logger.With("component", "lifecycle"),
	}
}

// IssueUpload creates a pending record and returns a PUT credential for it.
func (s *Service) IssueUpload(ctx context.Context, creds identity.Credentials, req UploadRequest) (*UploadResponse, error) {
	id, err := s.resolver.Resolve(creds)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FileName) == "" || req.ContentType == "" || req.FileSize <= 0 {
		return nil, apperr.New(apperr.KindMissingField, "Missing required fields: fileName, contentType, fileSize")
	}

	cred, err := s.issuer.IssueUpload(ctx, id.OwnerID, req.FileName, req.ContentType, req.FileSize)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "upload credential issued",
		"owner_id", id.OwnerID,
		"file_id", cred.File.FileID,
		"identity_source", id.Source,
	)
	return &UploadResponse{
		PresignedURL: cred.URL,
		FileID:       cred.File.FileID,
		StorageKey:   cred.File.StorageKey,
		ExpiresIn:    cred.ExpiresIn,
	}, nil
}

// IssueDownload returns a GET credential for a live file.
func (s *Service) IssueDownload(ctx context.Context, creds identity.Credentials, req DownloadRequest) (*DownloadResponse, error) {
	id, err := s.resolver.Resolve(creds)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FileID) == "" {
		return nil, apperr.New(apperr.KindMissingField, "Missing required field: fileId")
	}

	cred, err := s.issuer.IssueDownload(ctx, id.OwnerID, req.FileID)
	if err != nil {
		return nil, err
	}

	return &DownloadResponse{
		PresignedURL: cred.URL,
		FileName:     cred.File.FileName,
		ContentType:  cred.File.ContentType,
		FileSize:     cred.File.FileSize,
		ExpiresIn:    cred.ExpiresIn,
	}, nil
}

// ListFiles returns a page of the caller's non-deleted files.
func (s *Service) ListFiles(ctx context.Context, creds identity.Credentials, req ListRequest) (*ListResponse, error) {
	id, err := s.resolver.Resolve(creds)
	if err != nil {
		return nil, err
	}

	page, err := s.files.List(ctx, id.OwnerID, req.Limit, req.Cursor)
	if err != nil {
		return nil, err
	}

	resp := &ListResponse{
		Files:      make([]FileSummary, 0, len(page.Files)),
		NextCursor: page.NextCursor,
	}
	for _, f := range page.Files {
		resp.Files = append(resp.Files, FileSummary{
			FileID:      f.FileID,
			FileName:    f.FileName,
			ContentType: f.ContentType,
			FileSize:    f.FileSize,
			StorageKey:  f.StorageKey,
			Status:      f.Status,
			CreatedAt:   f.CreatedAt,
			UpdatedAt:   f.UpdatedAt,
		})
	}
	resp.Count = len(resp.Files)
	return resp, nil
}

// DeleteFile soft-deletes a file, then removes its blob on a best-effort
// basis. A failed blob removal is logged and the call still succeeds.
func (s *Service) DeleteFile(ctx context.Context, creds identity.Credentials, req DeleteRequest) (*DeleteResponse, error) {
	id, err := s.resolver.Resolve(creds)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FileID) == "" {
		return nil, apperr.New(apperr.KindMissingField, "Missing required field: fileId")
	}

	f, err := s.files.SoftDelete(ctx, id.OwnerID, req.FileID)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			s.recordRefusal(ctx, id.OwnerID, req.FileID, "not_found")
		case errors.Is(err, apperr.ErrAlreadyDeleted):
			s.recordRefusal(ctx, id.OwnerID, req.FileID, "already_deleted")
		}
		return nil, err
	}

	if err := s.blobs.Delete(ctx, f.StorageKey); err != nil {
		s.logger.WarnContext(ctx, "blob removal failed, leaving orphan",
			"file_id", f.FileID,
			"storage_key", f.StorageKey,
			"error", err,
		)
	}

	s.recorder.Record(ctx, id.OwnerID, f.FileID, models.ActionDelete, map[string]any{
		"fileName":   f.FileName,
		"storageKey": f.StorageKey,
		"hardDelete": req.HardDelete,
	})

	return &DeleteResponse{
		Message:  deletedMessage,
		FileID:   f.FileID,
		FileName: f.FileName,
	}, nil
}

// QueryAudit returns a page of the caller's audit trail.
func (s *Service) QueryAudit(ctx context.Context, creds identity.Credentials, req AuditQueryRequest) (*AuditQueryResponse, error) {
	id, err := s.resolver.Resolve(creds)
	if err != nil {
		return nil, err
	}

	page, err := s.ledger.Query(ctx, id.OwnerID, audit.QueryParams{
		Limit:     req.Limit,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		FileID:    req.FileID,
		Action:    models.Action(req.Action),
		Cursor:    req.Cursor,
	})
	if err != nil {
		return nil, err
	}

	entries := page.Entries
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	return &AuditQueryResponse{
		Entries:    entries,
		Count:      len(entries),
		NextCursor: page.NextCursor,
	}, nil
}

// LogEvent appends a client submitted audit entry. Failures are returned.
func (s *Service) LogEvent(ctx context.Context, creds identity.Credentials, req LogEventRequest) (*LogEventResponse, error) {
	id, err := s.resolver.Resolve(creds)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FileID) == "" || req.Action == "" {
		return nil, apperr.New(apperr.KindMissingField, "Missing required fields: fileId, action")
	}

	e, err := s.ledger.Append(ctx, id.OwnerID, req.FileID, models.Action(req.Action), req.Metadata)
	if err != nil {
		return nil, err
	}

	return &LogEventResponse{
		Message: "Audit log created successfully",
		AuditEntry: AuditEntrySummary{
			OwnerID:   e.OwnerID,
			Timestamp: e.Timestamp,
			EntryID:   e.EntryID,
			FileID:    e.FileID,
			Action:    e.Action,
		},
	}, nil
}

func (s *Service) recordRefusal(ctx context.Context, ownerID, fileID, result string) {
	s.recorder.Record(ctx, ownerID, fileID, models.ActionAccessAttempt, map[string]any{
		"operation": "delete",
		"result":    result,
	})
}
