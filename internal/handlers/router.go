package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/maneesh/filebroker/internal/identity"
	"github.com/maneesh/filebroker/internal/metrics"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	ServiceName string
	Version     string

	// DB backs the health check. Nil reports healthy unconditionally.
	DB Pinger

	// Verifier, when set, checks bearer tokens before identity resolution.
	Verifier *identity.Verifier

	// PrincipalHeader names a trusted gateway header carrying the principal.
	PrincipalHeader string

	// TrustForwardedFor takes the client address from X-Forwarded-For.
	TrustForwardedFor bool
}

// NewRouter builds the HTTP surface of the broker.
func NewRouter(service Service, opts RouterOptions, logger *slog.Logger) http.Handler {
	logger = logger.With("component", "http")

	router := mux.NewRouter()
	router.Use(metrics.Middleware)

	// Health and metrics endpoints (no identity needed)
	router.Handle("/health", NewHealthHandler(opts.DB, opts.ServiceName, opts.Version, logger)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	if opts.Verifier != nil {
		api.Use(opts.Verifier.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, r, logger, identityError(err))
		}))
	}
	if opts.PrincipalHeader != "" {
		api.Use(identity.PrincipalMiddleware(opts.PrincipalHeader))
	}
	api.Use(requestInfoMiddleware(opts.TrustForwardedFor))

	upload := NewUploadHandler(service, logger)
	download := NewDownloadHandler(service, logger)
	list := NewListHandler(service, logger)
	del := NewDeleteHandler(service, logger)
	auditQuery := NewAuditQueryHandler(service, logger)
	auditLog := NewAuditLogHandler(service, logger)

	// File operations with tracing
	api.Handle("/files/upload", otelhttp.NewHandler(upload, "POST /files/upload")).Methods(http.MethodPost)
	api.Handle("/files/download", otelhttp.NewHandler(download, "POST /files/download")).Methods(http.MethodPost)
	api.Handle("/files/delete", otelhttp.NewHandler(del, "POST /files/delete")).Methods(http.MethodPost)
	api.Handle("/files/{file_id}/download", otelhttp.NewHandler(download, "GET /files/{file_id}/download")).Methods(http.MethodGet)
	api.Handle("/files/{file_id}", otelhttp.NewHandler(del, "DELETE /files/{file_id}")).Methods(http.MethodDelete)
	api.Handle("/files", otelhttp.NewHandler(list, "GET /files")).Methods(http.MethodGet)

	// Audit trail
	api.Handle("/audit", otelhttp.NewHandler(auditQuery, "GET /audit")).Methods(http.MethodGet)
	api.Handle("/audit", otelhttp.NewHandler(auditLog, "POST /audit")).Methods(http.MethodPost)

	return requestLogger(logger)(corsMiddleware(router))
}
