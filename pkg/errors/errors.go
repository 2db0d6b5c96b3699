package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown        ErrorCode = "UNKNOWN"
	ErrInternal       ErrorCode = "INTERNAL"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// Configuration errors
	ErrConfig     ErrorCode = "CONFIG_INVALID"
	ErrBadMode    ErrorCode = "BAD_MODE"
	ErrMissingPSF ErrorCode = "MISSING_PSF"

	// Observation and shape errors
	ErrShapeMismatch ErrorCode = "SHAPE_MISMATCH"
	ErrShapeRange    ErrorCode = "SHAPE_RANGE"
	ErrEmptyImage    ErrorCode = "EMPTY_IMAGE"

	// Numerical errors
	ErrSingular ErrorCode = "SINGULAR_MATRIX"
	ErrNumeric  ErrorCode = "NUMERIC"

	// Resampling engine errors
	ErrEngine ErrorCode = "ENGINE"
	ErrDraw   ErrorCode = "DRAW"
)

// MetacalError represents a structured error with code and details
type MetacalError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *MetacalError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *MetacalError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *MetacalError) Is(target error) bool {
	var targetErr *MetacalError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new MetacalError with the given code and message
func New(code ErrorCode, message string) *MetacalError {
	return &MetacalError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new MetacalError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *MetacalError {
	return &MetacalError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a MetacalError
func Wrap(err error, code ErrorCode, message string) *MetacalError {
	if err == nil {
		return nil
	}
	return &MetacalError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *MetacalError {
	if err == nil {
		return nil
	}
	return &MetacalError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *MetacalError) WithDetail(key string, value interface{}) *MetacalError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *MetacalError) WithDetails(details map[string]interface{}) *MetacalError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var mErr *MetacalError
	if errors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a MetacalError
func GetErrorCode(err error) ErrorCode {
	var mErr *MetacalError
	if errors.As(err, &mErr) {
		return mErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a MetacalError
func GetErrorDetails(err error) map[string]interface{} {
	var mErr *MetacalError
	if errors.As(err, &mErr) {
		return mErr.Details
	}
	return nil
}
