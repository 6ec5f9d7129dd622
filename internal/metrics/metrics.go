// Package metrics registers the Prometheus collectors of the broker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebroker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filebroker_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	credentialsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebroker_credentials_issued_total",
			Help: "Presigned transfer credentials issued, by kind",
		},
		[]string{"kind"},
	)

	auditWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebroker_audit_writes_total",
			Help: "Audit entries written, by result",
		},
		[]string{"result"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebroker_metadata_cache_lookups_total",
			Help: "Metadata cache lookups, by result",
		},
		[]string{"result"},
	)
)

// CredentialIssued counts a presigned URL of the given kind ("upload" or "download").
func CredentialIssued(kind string) {
	credentialsIssued.WithLabelValues(kind).Inc()
}

// AuditWritten counts a successful audit write.
func AuditWritten() {
	auditWrites.WithLabelValues("ok").Inc()
}

// AuditFailed counts an audit write that was dropped.
func AuditFailed() {
	auditWrites.WithLabelValues("error").Inc()
}

// CacheLookup counts a metadata cache lookup with result "hit", "miss" or "error".
func CacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// Middleware records request count and latency labelled by route template,
// so path parameters do not inflate cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
