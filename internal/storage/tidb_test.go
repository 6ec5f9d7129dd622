package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/filebroker/internal/apperr"
	"github.com/maneesh/filebroker/internal/models"
)

var fileCols = []string{"owner_id", "file_id", "file_name", "content_type", "file_size", "storage_key", "status", "created_at", "updated_at", "deleted_at"}

func newMockClient(t *testing.T) (*TiDBClient, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTiDBClientFromDB(db), mock
}

func TestCreateFile(t *testing.T) {
	tc, mock := newMockClient(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &models.FileRecord{
		OwnerID: "u1", FileID: "f1", FileName: "doc.pdf", ContentType: "application/pdf",
		FileSize: 5000, StorageKey: "owners/u1/uploads/f1-doc.pdf", Status: models.StatusPending, CreatedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO files (" + fileColumns + ")")).
		WithArgs("u1", "f1", "doc.pdf", "application/pdf", int64(5000), "owners/u1/uploads/f1-doc.pdf", "pending", now, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, tc.CreateFile(context.Background(), f))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFile(t *testing.T) {
	tc, mock := newMockClient(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	deleted := created.Add(time.Hour)

	mock.ExpectQuery(`SELECT .+ FROM files WHERE owner_id = \? AND file_id = \?`).
		WithArgs("u1", "f1").
		WillReturnRows(sqlmock.NewRows(fileCols).
			AddRow("u1", "f1", "doc.pdf", "application/pdf", 5000, "k", "deleted", created, deleted, deleted))

	f, err := tc.GetFile(context.Background(), "u1", "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, f.Status)
	assert.Equal(t, int64(5000), f.FileSize)
	require.NotNil(t, f.DeletedAt)
	assert.True(t, deleted.Equal(*f.DeletedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFile_NotFound(t *testing.T) {
	tc, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT .+ FROM files`).
		WithArgs("u2", "f1").
		WillReturnError(sql.ErrNoRows)

	_, err := tc.GetFile(context.Background(), "u2", "f1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGetFile_DriverError(t *testing.T) {
	tc, mock := newMockClient(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery(`SELECT .+ FROM files`).WillReturnError(boom)

	_, err := tc.GetFile(context.Background(), "u1", "f1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestListFiles_WithCursor(t *testing.T) {
	tc, mock := newMockClient(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		`WHERE owner_id = ? AND status <> ? AND (created_at < ? OR (created_at = ? AND file_id < ?)) ORDER BY created_at DESC, file_id DESC LIMIT ?`)).
		WithArgs("u1", "deleted", at, at, "f9", 3).
		WillReturnRows(sqlmock.NewRows(fileCols).
			AddRow("u1", "f8", "a.txt", "text/plain", 1, "k8", "pending", at, nil, nil).
			AddRow("u1", "f7", "b.txt", "text/plain", 2, "k7", "uploaded", at.Add(-time.Second), at, nil))

	files, err := tc.ListFiles(context.Background(), "u1", 3, &models.FilePosition{CreatedAt: at, FileID: "f9"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "f8", files[0].FileID)
	assert.Nil(t, files[0].UpdatedAt)
	assert.Equal(t, models.StatusUploaded, files[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFiles_FirstPage(t *testing.T) {
	tc, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE owner_id = ? AND status <> ? ORDER BY created_at DESC, file_id DESC LIMIT ?`)).
		WithArgs("u1", "deleted", 21).
		WillReturnRows(sqlmock.NewRows(fileCols))

	files, err := tc.ListFiles(context.Background(), "u1", 21, nil)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteFile(t *testing.T) {
	at := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta(`UPDATE files SET status = ?, deleted_at = ?, updated_at = ?`) + `\s+` +
		regexp.QuoteMeta(`WHERE owner_id = ? AND file_id = ? AND status <> ?`)

	t.Run("transitions", func(t *testing.T) {
		tc, mock := newMockClient(t)
		mock.ExpectExec(query).
			WithArgs("deleted", at, at, "u1", "f1", "deleted").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, tc.SoftDeleteFile(context.Background(), "u1", "f1", at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows means already deleted", func(t *testing.T) {
		tc, mock := newMockClient(t)
		mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 0))

		err := tc.SoftDeleteFile(context.Background(), "u1", "f1", at)
		assert.ErrorIs(t, err, apperr.ErrAlreadyDeleted)
	})
}

func TestMarkFileUploaded(t *testing.T) {
	tc, mock := newMockClient(t)
	at := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE files SET status = \?, updated_at = \?\s+WHERE owner_id = \? AND file_id = \? AND status = \?`).
		WithArgs("uploaded", at, "u1", "f1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := tc.MarkFileUploaded(context.Background(), "u1", "f1", at)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAudit(t *testing.T) {
	tc, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries (" + auditColumns + ")")).
		WithArgs("u1", "2024-05-01T12:00:00.000000Z", "e1", "f1", "upload", `{"fileName":"doc.pdf"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := tc.AppendAudit(context.Background(), &models.AuditEntry{
		OwnerID: "u1", Timestamp: "2024-05-01T12:00:00.000000Z", EntryID: "e1", FileID: "f1",
		Action: models.ActionUpload, Metadata: map[string]any{"fileName": "doc.pdf"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryAudit_AllFilters(t *testing.T) {
	tc, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`WHERE owner_id = ? AND ts >= ? AND ts <= ? AND (ts < ? OR (ts = ? AND entry_id < ?)) AND file_id = ? AND action = ? ORDER BY ts DESC, entry_id DESC LIMIT ?`)).
		WithArgs("u1", "2024-01-01", "2024-01-31T23:59:59.999999Z",
			"2024-01-15T00:00:00.000000Z", "2024-01-15T00:00:00.000000Z", "e5", "f1", "download", 51).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "ts", "entry_id", "file_id", "action", "metadata"}).
			AddRow("u1", "2024-01-14T09:00:00.000000Z", "e4", "f1", "download", `{"ipAddress":"10.0.0.1"}`).
			AddRow("u1", "2024-01-13T09:00:00.000000Z", "e3", "f1", "download", nil))

	entries, err := tc.QueryAudit(context.Background(), models.AuditQuery{
		OwnerID: "u1",
		Limit:   51,
		Start:   "2024-01-01",
		End:     "2024-01-31T23:59:59.999999Z",
		FileID:  "f1",
		Action:  models.ActionDownload,
		After:   &models.AuditPosition{Timestamp: "2024-01-15T00:00:00.000000Z", EntryID: "e5"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "10.0.0.1", entries[0].Metadata["ipAddress"])
	assert.Nil(t, entries[1].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryAudit_OwnerOnly(t *testing.T) {
	tc, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM audit_entries WHERE owner_id = ? ORDER BY ts DESC, entry_id DESC LIMIT ?`)).
		WithArgs("u1", 51).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "ts", "entry_id", "file_id", "action", "metadata"}))

	entries, err := tc.QueryAudit(context.Background(), models.AuditQuery{OwnerID: "u1", Limit: 51})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, NewTiDBClientFromDB(db).Ping(context.Background()))
}

func TestMigrate_UsesEmbeddedFS(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var dir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, d string, opts ...goose.OptionsFunc) error {
		dir = d
		return nil
	}

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, ".", dir)

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("lock timeout")
	}
	assert.ErrorContains(t, Migrate(context.Background(), db), "lock timeout")
}
