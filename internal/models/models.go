package models

import "time"

// FileStatus is the lifecycle state of a FileRecord
type FileStatus string

const (
	StatusPending  FileStatus = "pending"
	StatusUploaded FileStatus = "uploaded"
	StatusDeleted  FileStatus = "deleted"
)

// FileRecord represents file metadata stored in TiDB, one per (owner, file)
type FileRecord struct {
	OwnerID     string     `json:"ownerId"`
	FileID      string     `json:"fileId"`
	FileName    string     `json:"fileName"`
	ContentType string     `json:"contentType"`
	FileSize    int64      `json:"fileSize"`
	StorageKey  string     `json:"storageKey"`
	Status      FileStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// FilePosition is the last-seen key of a file listing scan
type FilePosition struct {
	CreatedAt time.Time `json:"c"`
	FileID    string    `json:"f"`
}

// Action is the kind of access recorded in the audit ledger
type Action string

const (
	ActionView          Action = "view"
	ActionDownload      Action = "download"
	ActionUpload        Action = "upload"
	ActionDelete        Action = "delete"
	ActionShare         Action = "share"
	ActionAccessAttempt Action = "access_attempt"
)

// Actions lists every accepted audit action in display order.
var Actions = []Action{
	ActionView,
	ActionDownload,
	ActionUpload,
	ActionDelete,
	ActionShare,
	ActionAccessAttempt,
}

// Valid reports whether a is one of the fixed audit actions.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// AuditTimestampLayout keeps a fixed width so lexical order equals time order.
const AuditTimestampLayout = "2006-01-02T15:04:05.000000Z"

// AuditEntry is an immutable record of one action against a file
type AuditEntry struct {
	OwnerID   string         `json:"ownerId"`
	Timestamp string         `json:"timestamp"`
	EntryID   string         `json:"entryId"`
	FileID    string         `json:"fileId"`
	Action    Action         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditPosition is the last-seen key of an audit query scan
type AuditPosition struct {
	Timestamp string `json:"t"`
	EntryID   string `json:"e"`
}

// AuditQuery holds the already-normalized parameters of a ledger range query.
// Empty strings mean the bound or filter is not applied.
type AuditQuery struct {
	OwnerID string
	Limit   int
	Start   string
	End     string
	FileID  string
	Action  Action
	After   *AuditPosition
}
