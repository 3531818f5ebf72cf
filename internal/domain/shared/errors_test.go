package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDomainError_Kinds(t *testing.T) {
	t.Run("invalid state", func(t *testing.T) {
		err := NewInvalidStateError("NOT_CONFIRMED", "Only confirmed documents can be posted")
		assert.Equal(t, KindInvalidState, err.Kind)
		assert.Equal(t, "Only confirmed documents can be posted", err.Error())
		assert.False(t, err.Retryable())
	})

	t.Run("validation carries field", func(t *testing.T) {
		err := NewValidationError("OVERPAYMENT", "Allocation exceeds balance", "allocations[0].amount")
		assert.Equal(t, KindValidation, err.Kind)
		assert.Equal(t, "allocations[0].amount", err.Field)
	})

	t.Run("not found names the resource", func(t *testing.T) {
		id := uuid.New()
		err := NewNotFoundError("DOCUMENT", id)
		assert.Equal(t, "DOCUMENT_NOT_FOUND", err.Code)
		assert.Contains(t, err.Error(), id.String())
	})

	t.Run("only concurrency errors are retryable", func(t *testing.T) {
		assert.True(t, NewConcurrencyError("LOCK_TIMEOUT", "timeout").Retryable())
		assert.True(t, IsRetryable(fmt.Errorf("post: %w", ErrLockTimeout)))
		assert.False(t, IsRetryable(ErrInvalidState))
	})
}

func TestDomainError_IsAndWrap(t *testing.T) {
	wrapped := fmt.Errorf("apply payment: %w", ErrConcurrencyConflict)

	assert.True(t, errors.Is(wrapped, ErrConcurrencyConflict))
	assert.True(t, IsKind(wrapped, KindConcurrency))
	assert.False(t, IsKind(errors.New("plain"), KindConcurrency))

	withField := ErrInvalidInput.WithField("amount")
	assert.Equal(t, "amount", withField.Field)
	assert.Empty(t, ErrInvalidInput.Field, "WithField must not mutate the sentinel")
	assert.True(t, errors.Is(withField, ErrInvalidInput))
}
