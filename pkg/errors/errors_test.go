package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrInsufficientStock(t *testing.T) {
	err := ErrInsufficientStock("sku-1", "loc-main", 5, 2)

	assert.Equal(t, CodeInsufficientStock, err.Code)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
	assert.Equal(t, "3", err.Details["shortfall"])
	assert.Equal(t, "5", err.Details["requested"])
	assert.Equal(t, "2", err.Details["available"])
	assert.False(t, err.IsRetryable())
}

func TestErrInvalidStateTransition(t *testing.T) {
	err := ErrInvalidStateTransition("transaction", "txn-1", "COMPLETED", "CANCELLED")
	assert.Equal(t, CodeInvalidStateTransition, err.Code)
	assert.Equal(t, "COMPLETED", err.Details["from"])
	assert.Equal(t, "CANCELLED", err.Details["to"])
	assert.Contains(t, err.Message, "cannot move from COMPLETED to CANCELLED")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, ErrConcurrentModification("stock level", "sl-1").IsRetryable())
	assert.True(t, ErrServiceUnavailable("mongodb").IsRetryable())
	assert.True(t, ErrTimeout("save").IsRetryable())
	assert.False(t, ErrInvariantViolation("negative on hand").IsRetryable())
	assert.False(t, ErrValidation("bad").IsRetryable())
}

func TestAsAppError_ThroughWrapping(t *testing.T) {
	base := ErrNotFoundWithID("transaction", "txn-9")
	wrapped := fmt.Errorf("loading: %w", base)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Same(t, base, appErr)
	assert.True(t, IsNotFound(wrapped))
	assert.True(t, HasCode(wrapped, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeNotFound))
}

func TestAppError_WrapAndUnwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := ErrInternal("").Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "an internal error occurred", err.Message)
	assert.Contains(t, err.Error(), "socket closed")
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	conflict := ErrConflict("dup")
	assert.Same(t, conflict, FromError(conflict))

	internal := FromError(errors.New("boom"))
	assert.Equal(t, CodeInternalError, internal.Code)
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		msg  string
		code string
	}{
		{"customer not found", CodeNotFound},
		{"sku code already exists", CodeConflict},
		{"quantity is required", CodeValidationError},
		{"invalid rental period", CodeValidationError},
		{"context timeout", CodeTimeout},
		{"disk on fire", CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.code, MapDomainError(errors.New(tt.msg)).Code)
		})
	}
	assert.Nil(t, MapDomainError(nil))
}
