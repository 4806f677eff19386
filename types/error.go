package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Workflow error codes
const (
	ErrDefinitionLoad         ErrorCode = "DEFINITION_LOAD"
	ErrCircularDependency     ErrorCode = "CIRCULAR_DEPENDENCY"
	ErrDependencyNotCompleted ErrorCode = "DEPENDENCY_NOT_COMPLETED"
	ErrValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrRunCancelled           ErrorCode = "RUN_CANCELLED"
	ErrRunNotFound            ErrorCode = "RUN_NOT_FOUND"
)

// Dispatch error codes
const (
	ErrDispatchExhausted ErrorCode = "DISPATCH_EXHAUSTED"
	ErrBackendNotFound   ErrorCode = "BACKEND_NOT_FOUND"
	ErrBackendTimeout    ErrorCode = "BACKEND_TIMEOUT"
)

// Plan error codes
const (
	ErrPlanStalled       ErrorCode = "PLAN_STALLED"
	ErrTaskNotFound      ErrorCode = "TASK_NOT_FOUND"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Store error codes
const (
	ErrStoreClosed  ErrorCode = "STORE_CLOSED"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Step      string    `json:"step,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStep attaches the name of the step the error occurred in.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err is a *Error carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
