package errors

import (
	goerrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Run("transient errors survive wrapping", func(t *testing.T) {
		err := fmt.Errorf("attempt 2: %w", NewTransientError(503, goerrors.New("service unavailable")))

		assert.True(t, IsTransient(err))
		assert.False(t, IsPermanent(err))
	})

	t.Run("transient errors unwrap to the cause", func(t *testing.T) {
		err := NewTransientError(0, io.ErrUnexpectedEOF)

		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.Equal(t, 0, err.StatusCode())
	})

	t.Run("delivery errors expose the last attempt error", func(t *testing.T) {
		err := NewDeliveryError("batch-1", 10, 3, NewTransientError(500, goerrors.New("boom")))

		assert.True(t, IsDelivery(err))
		assert.True(t, IsTransient(err))
		assert.Equal(t, 3, err.Attempts())
		assert.Contains(t, err.Error(), "10 events dropped after 3 attempt(s)")
	})

	t.Run("permanent errors keep the response body", func(t *testing.T) {
		err := NewPermanentError(401, "invalid api key")

		assert.True(t, IsPermanent(err))
		assert.Equal(t, "invalid api key", err.Body())
	})

	t.Run("configuration errors list fields", func(t *testing.T) {
		err := NewConfigurationError("are required", "backend url", "tenant id")

		assert.True(t, IsConfiguration(err))
		assert.Equal(t, "invalid configuration: fields [backend url, tenant id] are required", err.Error())
	})

	t.Run("unrelated errors are not classified", func(t *testing.T) {
		err := goerrors.New("plain")

		assert.False(t, IsOverflow(err))
		assert.False(t, IsStopped(err))
		assert.False(t, IsValidation(err))
	})
}
