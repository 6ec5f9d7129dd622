package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := New(KindNotFound, "File has been deleted")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrAlreadyDeleted))

	wrapped := fmt.Errorf("get file f1: %w", ErrNotFound)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestKindOf_ForeignErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("connection refused")))
}

func TestPublic_HidesInternalDetail(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:4000: connection refused")

	pub := Public(Internal(cause))
	assert.Equal(t, KindInternal, pub.Kind)
	assert.Equal(t, "internal server error", pub.Message)
	assert.Nil(t, pub.Err)
	assert.NotContains(t, pub.Error(), "10.0.0.5")

	pub = Public(cause)
	assert.Equal(t, ErrInternal, pub)
}

func TestPublic_KeepsClientErrors(t *testing.T) {
	err := WithDetails(KindUnsupportedMediaType, "Content type 'x/y' is not allowed",
		map[string]any{"allowedTypes": []string{"text/plain"}})

	pub := Public(fmt.Errorf("create: %w", err))
	assert.Equal(t, KindUnsupportedMediaType, pub.Kind)
	assert.Equal(t, "Content type 'x/y' is not allowed", pub.Message)
	assert.Equal(t, []string{"text/plain"}, pub.Details["allowedTypes"])
}

func TestError_MessageIncludesCause(t *testing.T) {
	err := Internal(errors.New("boom"))
	assert.Equal(t, "internal server error: boom", err.Error())
	assert.True(t, errors.Is(err, ErrInternal))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "get file"))

	notFound := fmt.Errorf("file f1: %w", ErrNotFound)
	assert.Same(t, notFound, Wrap(notFound, "get file"))

	cause := errors.New("i/o timeout")
	err := Wrap(cause, "get file")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "get file: i/o timeout")
}
