package errors_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/healthconnect/feed-engine/pkg/errors"
)

func TestClassification(t *testing.T) {
	transient := apperrors.Transient(io.EOF, "socket dropped")
	notFound := apperrors.NotFound(nil, "post gone")
	conflict := apperrors.Conflict(nil, "like raced delete")
	fatal := apperrors.Fatal(nil, "bad payload")

	assert.True(t, apperrors.IsTransient(transient))
	assert.True(t, apperrors.Retryable(transient))
	assert.False(t, apperrors.IsNotFound(transient))

	assert.True(t, apperrors.IsNotFound(notFound))
	assert.False(t, apperrors.Retryable(notFound))

	// A conflict ends the same way as a vanished post.
	assert.True(t, apperrors.IsNotFound(conflict))
	assert.False(t, apperrors.Retryable(conflict))

	assert.True(t, apperrors.IsFatal(fatal))
	assert.False(t, apperrors.Retryable(fatal))
}

func TestWrappingPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := apperrors.Transient(cause, "query failed")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, apperrors.ErrTransient)
	assert.Contains(t, err.Error(), "query failed")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestMessageOnlyError(t *testing.T) {
	err := apperrors.Fatal(nil, "snapshot missing freshness stamp")
	assert.Equal(t, "snapshot missing freshness stamp", err.Error())
}
