package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error type surfaced by the webhook pipeline.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates the webhook signature did not verify.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeStoreFailed indicates the message store could not be read or written.
	ErrCodeStoreFailed ErrorCode = "STORE_FAILED"
	// ErrCodeEngineFailed indicates the summarization engine returned an error.
	ErrCodeEngineFailed ErrorCode = "ENGINE_FAILED"
	// ErrCodeTimeout indicates the summarization engine did not answer in time.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeProfileUnavailable indicates the sender's display name could not be fetched.
	ErrCodeProfileUnavailable ErrorCode = "PROFILE_UNAVAILABLE"
	// ErrCodeDispatchFailed indicates a reply could not be delivered.
	ErrCodeDispatchFailed ErrorCode = "DISPATCH_FAILED"
	// ErrCodeInternal labels an error that carries no code of its own.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// AppError represents a structured error carrying a taxonomy code.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
	Context map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *AppError) GetCode() ErrorCode {
	return e.Code
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *AppError {
	return &AppError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AppError {
	return &AppError{Code: ErrCodeInvalidArgument, Message: msg}
}

func StoreFailed(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeStoreFailed, Message: msg, Cause: cause}
}

func EngineFailed(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeEngineFailed, Message: msg, Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeTimeout, Message: msg, Cause: cause}
}

func ProfileUnavailable(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeProfileUnavailable, Message: msg, Cause: cause}
}

func DispatchFailed(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeDispatchFailed, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether any AppError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AppError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return defaultCode
}
