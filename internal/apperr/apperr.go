// Package apperr defines the error taxonomy shared by every layer.
// Callers match kinds with errors.Is against the exported sentinels or read
// them with KindOf.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and transport mapping.
type Kind string

const (
	KindUnauthenticated      Kind = "UNAUTHENTICATED"
	KindMissingField         Kind = "MISSING_FIELD"
	KindInvalidInput         Kind = "INVALID_INPUT"
	KindInvalidAction        Kind = "INVALID_ACTION"
	KindUnsupportedMediaType Kind = "UNSUPPORTED_MEDIA_TYPE"
	KindPayloadTooLarge      Kind = "PAYLOAD_TOO_LARGE"
	KindNotFound             Kind = "NOT_FOUND"
	KindAlreadyDeleted       Kind = "ALREADY_DELETED"
	KindInternal             Kind = "INTERNAL"
)

// Error carries a kind, a client-safe message and optional details.
// Err holds the underlying cause and never crosses the transport boundary.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated, Message: "unauthorized: userId not found"}
	ErrMissingField         = &Error{Kind: KindMissingField, Message: "missing required field"}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput, Message: "invalid request body"}
	ErrInvalidAction        = &Error{Kind: KindInvalidAction, Message: "invalid action"}
	ErrUnsupportedMediaType = &Error{Kind: KindUnsupportedMediaType, Message: "content type is not allowed"}
	ErrPayloadTooLarge      = &Error{Kind: KindPayloadTooLarge, Message: "file size exceeds maximum allowed"}
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "file not found"}
	ErrAlreadyDeleted       = &Error{Kind: KindAlreadyDeleted, Message: "file is already deleted"}
	ErrInternal             = &Error{Kind: KindInternal, Message: "internal server error"}
)

// New returns an error of the given kind with a specific message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithDetails returns an error of the given kind carrying client guidance.
func WithDetails(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Internal wraps a collaborator failure. The message stays generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: ErrInternal.Message, Err: err}
}

// Wrap marks a foreign error as internal, annotated with op. Errors that are
// already classified pass through unchanged.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Internal(fmt.Errorf("%s: %w", op, err))
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Public returns the *Error that may be shown to a client. Anything that is
// not a classified input or state error collapses to the generic internal one.
func Public(err error) *Error {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return ErrInternal
	}
	return &Error{Kind: e.Kind, Message: e.Message, Details: e.Details}
}
