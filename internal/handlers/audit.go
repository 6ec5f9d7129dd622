package handlers

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/filebroker/internal/identity"
	"github.com/maneesh/filebroker/internal/lifecycle"
)

// AuditQueryHandler serves the caller's audit trail
type AuditQueryHandler struct {
	service Service
	logger  *slog.Logger
}

// NewAuditQueryHandler creates a new audit query handler
func NewAuditQueryHandler(service Service, logger *slog.Logger) *AuditQueryHandler {
	return &AuditQueryHandler{service: service, logger: logger}
}

// ServeHTTP handles GET /audit?startDate=&endDate=&fileId=&action=&limit=&cursor=
func (h *AuditQueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "query_audit", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	q := r.URL.Query()
	req := lifecycle.AuditQueryRequest{
		Limit:     queryInt(q.Get("limit")),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		FileID:    q.Get("fileId"),
		Action:    q.Get("action"),
		Cursor:    pageToken(r),
	}

	resp, err := h.service.QueryAudit(ctx, identity.CredentialsFromRequest(r), req)
	if err != nil {
		span.RecordError(err)
		writeError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(attribute.Int("count", resp.Count))
	writeJSON(w, http.StatusOK, resp)
}

// AuditLogHandler records client submitted audit events
type AuditLogHandler struct {
	service Service
	logger  *slog.Logger
}

// NewAuditLogHandler creates a new audit log handler
func NewAuditLogHandler(service Service, logger *slog.Logger) *AuditLogHandler {
	return &AuditLogHandler{service: service, logger: logger}
}

// ServeHTTP handles POST /audit
func (h *AuditLogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "log_audit_event", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var req lifecycle.LogEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(
		attribute.String("file_id", req.FileID),
		attribute.String("action", req.Action),
	)

	resp, err := h.service.LogEvent(ctx, identity.CredentialsFromRequest(r), req)
	if err != nil {
		span.RecordError(err)
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
