package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/maneesh/filebroker/internal/apperr"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    apperr.Kind    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindMissingField, apperr.KindInvalidInput, apperr.KindInvalidAction:
		return http.StatusBadRequest
	case apperr.KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case apperr.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAlreadyDeleted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as the JSON error body. Internal causes are logged
// here and never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	pub := apperr.Public(err)
	if pub.Kind == apperr.KindInternal {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, statusFor(pub.Kind), errorBody{Error: errorPayload{
		Code:    pub.Kind,
		Message: pub.Message,
		Details: pub.Details,
	}})
}

// decodeJSON reads a JSON request body into v. An empty body leaves v zeroed.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.New(apperr.KindInvalidInput, "Invalid JSON in request body")
	}
	return nil
}

func identityError(err error) error {
	return &apperr.Error{Kind: apperr.KindUnauthenticated, Message: "unauthorized: invalid token", Err: err}
}
