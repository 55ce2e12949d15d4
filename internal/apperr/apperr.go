// Package apperr provides coded application errors shared by the engine, loaders and API.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class.
type Code string

const (
	CodeUnknown       Code = "UNKNOWN"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeNotFound      Code = "NOT_FOUND"
	CodeTimeout       Code = "TIMEOUT"
	CodeDatabaseError Code = "DATABASE_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"

	// routing model
	CodeInvalidRouteBoundary Code = "INVALID_ROUTE_BOUNDARY"
	CodeMissingMatrixAxis    Code = "MISSING_MATRIX_AXIS"
	CodeDimensionMismatch    Code = "DIMENSION_MISMATCH"
	CodePartitionViolation   Code = "PARTITION_VIOLATION"
)

// AppError is an error carrying a code, an HTTP status and optional structured fields.
type AppError struct {
	Code       Code           `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Cause      error          `json:"-"`
	Fields     map[string]any `json:"fields,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithDetails sets Details and returns e.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithField attaches a structured field.
func (e *AppError) WithField(key string, value any) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// New creates an AppError with the status derived from code.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: codeToHTTPStatus(code)}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err under code.
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: codeToHTTPStatus(code), Cause: err}
}

func codeToHTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidInput, CodeInvalidRouteBoundary, CodeMissingMatrixAxis, CodeDimensionMismatch:
		return http.StatusBadRequest
	case CodePartitionViolation:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err (or anything it wraps) is an AppError with code.
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode returns the code of err, or CodeUnknown.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetHTTPStatus returns the HTTP status for err; non-AppErrors map to 500.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// InvalidInput creates an input validation error for field.
func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason)).WithField("field", field)
}

// NotFound creates a not-found error for a resource id.
func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s %q not found", resource, id))
}
