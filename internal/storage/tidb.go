package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/filebroker/internal/apperr"
	"github.com/maneesh/filebroker/internal/models"
)

const fileColumns = `owner_id, file_id, file_name, content_type, file_size, storage_key, status, created_at, updated_at, deleted_at`

const auditColumns = `owner_id, ts, entry_id, file_id, action, metadata`

// TiDBClient is the metadata store and audit ledger backed by TiDB/MySQL.
// Every statement is scoped by owner_id.
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient initializes a new TiDB client
func NewTiDBClient(ctx context.Context, dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &TiDBClient{db: db}, nil
}

// NewTiDBClientFromDB wraps an already opened handle.
func NewTiDBClientFromDB(db *sql.DB) *TiDBClient {
	return &TiDBClient{db: db}
}

// DB exposes the underlying handle for migrations.
func (tc *TiDBClient) DB() *sql.DB {
	return tc.db
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

// Ping checks that the database is reachable.
func (tc *TiDBClient) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "tidb.ping")
	defer span.End()

	if err := tc.db.PingContext(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// CreateFile inserts a file record with tracing
func (tc *TiDBClient) CreateFile(ctx context.Context, f *models.FileRecord) error {
	ctx, span := tracer.Start(ctx, "tidb.create_file",
		trace.WithAttributes(
			attribute.String("file_id", f.FileID),
			attribute.String("content_type", f.ContentType),
			attribute.Int64("file_size", f.FileSize),
		),
	)
	defer span.End()

	query := `INSERT INTO files (` + fileColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tc.db.ExecContext(ctx, query,
		f.OwnerID, f.FileID, f.FileName, f.ContentType, f.FileSize,
		f.StorageKey, string(f.Status), f.CreatedAt, f.UpdatedAt, f.DeletedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert file: %w", err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// GetFile retrieves one owner's file record, in any status.
func (tc *TiDBClient) GetFile(ctx context.Context, ownerID, fileID string) (*models.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.get_file",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = ? AND file_id = ?`

	f, err := scanFile(tc.db.QueryRowContext(ctx, query, ownerID, fileID))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, fmt.Errorf("file %s: %w", fileID, apperr.ErrNotFound)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query file: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return f, nil
}

// ListFiles returns up to limit non-deleted records of an owner, newest
// first, strictly after the given position.
func (tc *TiDBClient) ListFiles(ctx context.Context, ownerID string, limit int, after *models.FilePosition) ([]*models.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.list_files",
		trace.WithAttributes(
			attribute.Int("limit", limit),
			attribute.Bool("has_cursor", after != nil),
		),
	)
	defer span.End()

	var sb strings.Builder
	sb.WriteString(`SELECT ` + fileColumns + ` FROM files WHERE owner_id = ? AND status <> ?`)
	args := []any{ownerID, string(models.StatusDeleted)}

	if after != nil {
		sb.WriteString(` AND (created_at < ? OR (created_at = ? AND file_id < ?))`)
		args = append(args, after.CreatedAt, after.CreatedAt, after.FileID)
	}
	sb.WriteString(` ORDER BY created_at DESC, file_id DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := tc.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	files := make([]*models.FileRecord, 0, limit)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))
	return files, nil
}

// SoftDeleteFile marks a record deleted. The update is conditional on the
// record not being deleted yet; when no row changes the record was deleted
// concurrently and apperr.ErrAlreadyDeleted is returned.
func (tc *TiDBClient) SoftDeleteFile(ctx context.Context, ownerID, fileID string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "tidb.soft_delete_file",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	query := `UPDATE files SET status = ?, deleted_at = ?, updated_at = ?
			  WHERE owner_id = ? AND file_id = ? AND status <> ?`

	res, err := tc.db.ExecContext(ctx, query,
		string(models.StatusDeleted), at, at, ownerID, fileID, string(models.StatusDeleted))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to soft delete file: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		span.SetAttributes(attribute.Bool("already_deleted", true))
		return fmt.Errorf("file %s: %w", fileID, apperr.ErrAlreadyDeleted)
	}
	return nil
}

// MarkFileUploaded moves a pending record to uploaded. It reports whether a
// row changed.
func (tc *TiDBClient) MarkFileUploaded(ctx context.Context, ownerID, fileID string, at time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "tidb.mark_file_uploaded",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	query := `UPDATE files SET status = ?, updated_at = ?
			  WHERE owner_id = ? AND file_id = ? AND status = ?`

	res, err := tc.db.ExecContext(ctx, query,
		string(models.StatusUploaded), at, ownerID, fileID, string(models.StatusPending))
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to mark file uploaded: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// AppendAudit inserts an audit entry. Entries are never updated.
func (tc *TiDBClient) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	ctx, span := tracer.Start(ctx, "tidb.append_audit",
		trace.WithAttributes(
			attribute.String("file_id", e.FileID),
			attribute.String("action", string(e.Action)),
		),
	)
	defer span.End()

	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	query := `INSERT INTO audit_entries (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := tc.db.ExecContext(ctx, query,
		e.OwnerID, e.Timestamp, e.EntryID, e.FileID, string(e.Action), nullableJSON(meta))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// QueryAudit returns an owner's entries newest first. The timestamp bounds
// are inclusive; file and action filters apply within the range.
func (tc *TiDBClient) QueryAudit(ctx context.Context, q models.AuditQuery) ([]*models.AuditEntry, error) {
	ctx, span := tracer.Start(ctx, "tidb.query_audit",
		trace.WithAttributes(
			attribute.Int("limit", q.Limit),
			attribute.Bool("has_cursor", q.After != nil),
			attribute.String("start", q.Start),
			attribute.String("end", q.End),
		),
	)
	defer span.End()

	var sb strings.Builder
	sb.WriteString(`SELECT ` + auditColumns + ` FROM audit_entries WHERE owner_id = ?`)
	args := []any{q.OwnerID}

	if q.Start != "" {
		sb.WriteString(` AND ts >= ?`)
		args = append(args, q.Start)
	}
	if q.End != "" {
		sb.WriteString(` AND ts <= ?`)
		args = append(args, q.End)
	}
	if q.After != nil {
		sb.WriteString(` AND (ts < ? OR (ts = ? AND entry_id < ?))`)
		args = append(args, q.After.Timestamp, q.After.Timestamp, q.After.EntryID)
	}
	if q.FileID != "" {
		sb.WriteString(` AND file_id = ?`)
		args = append(args, q.FileID)
	}
	if q.Action != "" {
		sb.WriteString(` AND action = ?`)
		args = append(args, string(q.Action))
	}
	sb.WriteString(` ORDER BY ts DESC, entry_id DESC LIMIT ?`)
	args = append(args, q.Limit)

	rows, err := tc.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.AuditEntry, 0, q.Limit)
	for rows.Next() {
		var (
			e      models.AuditEntry
			action string
			meta   sql.NullString
		)
		if err := rows.Scan(&e.OwnerID, &e.Timestamp, &e.EntryID, &e.FileID, &action, &meta); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = models.Action(action)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	span.SetAttributes(attribute.Int("entry_count", len(entries)))
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.FileRecord, error) {
	var (
		f         models.FileRecord
		status    string
		updatedAt sql.NullTime
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&f.OwnerID,
		&f.FileID,
		&f.FileName,
		&f.ContentType,
		&f.FileSize,
		&f.StorageKey,
		&status,
		&f.CreatedAt,
		&updatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Status = models.FileStatus(status)
	f.CreatedAt = f.CreatedAt.UTC()
	if updatedAt.Valid {
		t := updatedAt.Time.UTC()
		f.UpdatedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		f.DeletedAt = &t
	}
	return &f, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
