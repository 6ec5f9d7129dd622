package lifecycle

import (
	"time"

	"github.com/maneesh/filebroker/internal/models"
)

// UploadRequest asks for an upload credential.
type UploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
}

// UploadResponse carries the presigned PUT URL.
type UploadResponse struct {
	PresignedURL string `json:"presignedUrl"`
	FileID       string `json:"fileId"`
	StorageKey   string `json:"storageKey"`
	ExpiresIn    int    `json:"expiresIn"`
}

// DownloadRequest asks for a download credential.
type DownloadRequest struct {
	FileID string `json:"fileId"`
}

// DownloadResponse carries the presigned GET URL.
type DownloadResponse struct {
	PresignedURL string `json:"presignedUrl"`
	FileName     string `json:"fileName"`
	ContentType  string `json:"contentType"`
	FileSize     int64  `json:"fileSize"`
	ExpiresIn    int    `json:"expiresIn"`
}

// ListRequest pages through the caller's files.
type ListRequest struct {
	Limit  int
	Cursor string
}

// FileSummary is the listing view of a record.
type FileSummary struct {
	FileID      string            `json:"fileId"`
	FileName    string            `json:"fileName"`
	ContentType string            `json:"contentType"`
	FileSize    int64             `json:"fileSize"`
	StorageKey  string            `json:"storageKey"`
	Status      models.FileStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
}

// ListResponse is one page of files.
type ListResponse struct {
	Files      []FileSummary `json:"files"`
	Count      int           `json:"count"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// DeleteRequest soft-deletes a file. HardDelete is recorded only.
type DeleteRequest struct {
	FileID     string `json:"fileId"`
	HardDelete bool   `json:"hardDelete"`
}

// DeleteResponse confirms a soft delete.
type DeleteResponse struct {
	Message  string `json:"message"`
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

// AuditQueryRequest filters the caller's audit trail.
type AuditQueryRequest struct {
	Limit     int
	StartDate string
	EndDate   string
	FileID    string
	Action    string
	Cursor    string
}

// AuditQueryResponse is one page of audit entries.
type AuditQueryResponse struct {
	Entries    []*models.AuditEntry `json:"entries"`
	Count      int                  `json:"count"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

// LogEventRequest is a client submitted audit event.
type LogEventRequest struct {
	FileID   string         `json:"fileId"`
	Action   string         `json:"action"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AuditEntrySummary identifies a written entry.
type AuditEntrySummary struct {
	OwnerID   string        `json:"ownerId"`
	Timestamp string        `json:"timestamp"`
	EntryID   string        `json:"entryId"`
	FileID    string        `json:"fileId"`
	Action    models.Action `json:"action"`
}

// LogEventResponse confirms a written audit event.
type LogEventResponse struct {
	Message    string            `json:"message"`
	AuditEntry AuditEntrySummary `json:"auditEntry"`
}
