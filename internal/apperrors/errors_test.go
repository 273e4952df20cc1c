package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	err := ErrValidation("length must be positive")
	assert.Equal(t, "VALIDATION_ERROR: length must be positive", err.Error())

	wrapped := ErrTimeout("genetic").Wrap(context.DeadlineExceeded)
	assert.Contains(t, wrapped.Error(), "genetic timed out")
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}

func TestHasCodeThroughWrapping(t *testing.T) {
	base := ErrSolverFailure("fallback failed")
	err := fmt.Errorf("optimize: %w", base)

	assert.True(t, IsSolverFailure(err))
	assert.False(t, IsValidation(err))

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeSolverFailure, appErr.Code)
}

func TestAccountingViolationDetails(t *testing.T) {
	err := ErrAccountingViolation("cut-1", 5998, 5990.5)
	assert.Equal(t, CodeAccountingViolation, err.Code)
	assert.Equal(t, "cut-1", err.Details["cut_id"])
	assert.Equal(t, "5998.0000", err.Details["expected"])
	assert.Equal(t, "5990.5000", err.Details["actual"])
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	plain := errors.New("boom")
	appErr := FromError(plain)
	assert.Equal(t, CodeInternalError, appErr.Code)
	assert.ErrorIs(t, appErr, plain)

	v := ErrValidationWithFields("bad input", map[string]string{"length": "must be > 0"})
	assert.Same(t, v, FromError(v))
}
