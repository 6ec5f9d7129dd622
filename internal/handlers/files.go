package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/filebroker/internal/identity"
	"github.com/maneesh/filebroker/internal/lifecycle"
)

var tracer = otel.Tracer("filebroker-handlers")

// Service is the broker operation set exposed over HTTP.
type Service interface {
	IssueUpload(ctx context.Context, creds identity.Credentials, req lifecycle.UploadRequest) (*lifecycle.UploadResponse, error)
	IssueDownload(ctx context.Context, creds identity.Credentials, req lifecycle.DownloadRequest) (*lifecycle.DownloadResponse, error)
	ListFiles(ctx context.Context, creds identity.Credentials, req lifecycle.ListRequest) (*lifecycle.ListResponse, error)
	DeleteFile(ctx context.Context, creds identity.Credentials, req lifecycle.DeleteRequest) (*lifecycle.DeleteResponse, error)
	QueryAudit(ctx context.Context, creds identity.Credentials, req lifecycle.AuditQueryRequest) (*lifecycle.AuditQueryResponse, error)
	LogEvent(ctx context.Context, creds identity.Credentials, req lifecycle.LogEventRequest) (*lifecycle.LogEventResponse, error)
}

// UploadHandler handles upload credential requests
type UploadHandler struct {
	service Service
	logger  *slog.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(service Service, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{service: service, logger: logger}
}

// ServeHTTP handles POST /files/upload
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "issue_upload", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var req lifecycle.UploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(
		attribute.String("file_name", req.FileName),
		attribute.String("content_type", req.ContentType),
		attribute.Int64("file_size", req.FileSize),
	)

	resp, err := h.service.IssueUpload(ctx, identity.CredentialsFromRequest(r), req)
	if err != nil {
		span.RecordError(err)
		writeError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(attribute.String("file_id", resp.FileID))
	writeJSON(w, http.StatusOK, resp)
}

// DownloadHandler handles download credential requests
type DownloadHandler struct {
	service Service
	logger  *slog.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(service Service, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{service: service, logger: logger}
}

// ServeHTTP handles POST /files/download and GET /files/{file_id}/download
func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "issue_download", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var req lifecycle.DownloadRequest
	if id, ok := mux.Vars(r)["file_id"]; ok {
		req.FileID = id
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(attribute.String("file_id", req.FileID))

	resp, err := h.service.IssueDownload(ctx, identity.CredentialsFromRequest(r), req)
	if err != nil {
		span.RecordError(err)
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListHandler handles file listing requests
type ListHandler struct {
	service Service
	logger  *slog.Logger
}

// NewListHandler creates a new list handler
func NewListHandler(service Service, logger *slog.Logger) *ListHandler {
	return &ListHandler{service: service, logger: logger}
}

// ServeHTTP handles GET /files?limit=&cursor=
func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_files", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	q := r.URL.Query()
	req := lifecycle.ListRequest{
		Limit:  queryInt(q.Get("limit")),
		Cursor: pageToken(r),
	}

	resp, err := h.service.ListFiles(ctx, identity.CredentialsFromRequest(r), req)
	if err != nil {
		span.RecordError(err)
		writeError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(attribute.Int("count", resp.Count))
	writeJSON(w, http.StatusOK, resp)
}

// DeleteHandler handles soft-delete requests
type DeleteHandler struct {
	service Service
	logger  *slog.Logger
}

// NewDeleteHandler creates a new delete handler
func NewDeleteHandler(service Service, logger *slog.Logger) *DeleteHandler {
	return &DeleteHandler{service: service, logger: logger}
}

// ServeHTTP handles POST /files/delete and DELETE /files/{file_id}
func (h *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "delete_file", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var req lifecycle.DeleteRequest
	if id, ok := mux.Vars(r)["file_id"]; ok {
		req.FileID = id
		req.HardDelete, _ = strconv.ParseBool(r.URL.Query().Get("hardDelete"))
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(
		attribute.String("file_id", req.FileID),
		attribute.Bool("hard_delete", req.HardDelete),
	)

	resp, err := h.service.DeleteFile(ctx, identity.CredentialsFromRequest(r), req)
	if err != nil {
		span.RecordError(err)
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// queryInt parses a numeric query value. Anything unparsable means unset.
func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// pageToken reads the cursor query parameter, accepting nextToken as an alias.
func pageToken(r *http.Request) string {
	q := r.URL.Query()
	if c := q.Get("cursor"); c != "" {
		return c
	}
	return q.Get("nextToken")
}
