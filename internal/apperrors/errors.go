// Package apperrors defines the error kinds surfaced by the optimization engine.
// Callers use the code to tell malformed input apart from solver failures.
package apperrors

import (
	"errors"
	"fmt"
)

// Standard error codes
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeAccountingViolation = "ACCOUNTING_VIOLATION"
	CodeSolverFailure       = "SOLVER_FAILURE"
	CodeTimeout             = "TIMEOUT"
	CodeMemoryBudget        = "MEMORY_BUDGET"
	CodeInternalError       = "INTERNAL_ERROR"
)

// AppError represents an engine error with a stable code
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return New(CodeValidationError, message)
}

// ErrValidationWithFields creates a validation error with field details
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	return ErrValidation(message).WithDetails(fields)
}

// ErrAccountingViolation reports a cut whose lengths do not add up.
func ErrAccountingViolation(cutID string, expected, actual float64) *AppError {
	return New(CodeAccountingViolation, fmt.Sprintf("cut %s does not balance", cutID)).
		WithDetail("cut_id", cutID).
		WithDetail("expected", fmt.Sprintf("%.4f", expected)).
		WithDetail("actual", fmt.Sprintf("%.4f", actual))
}

// ErrSolverFailure creates an error for a run that produced no usable result
func ErrSolverFailure(message string) *AppError {
	if message == "" {
		message = "optimization failed"
	}
	return New(CodeSolverFailure, message)
}

// ErrTimeout creates a timeout error
func ErrTimeout(operation string) *AppError {
	return New(CodeTimeout, fmt.Sprintf("%s timed out", operation))
}

// ErrMemoryBudget creates an error for runs whose working set exceeds the budget
func ErrMemoryBudget(operation string, estimate, budget uint64) *AppError {
	return New(CodeMemoryBudget, fmt.Sprintf("%s exceeds memory budget", operation)).
		WithDetail("estimate_bytes", fmt.Sprintf("%d", estimate)).
		WithDetail("budget_bytes", fmt.Sprintf("%d", budget))
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return New(CodeInternalError, message)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError with the given code
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return HasCode(err, CodeValidationError)
}

// IsSolverFailure reports whether err is a solver failure
func IsSolverFailure(err error) bool {
	return HasCode(err, CodeSolverFailure)
}

// FromError converts a standard error to an AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return ErrInternal("").Wrap(err)
}
