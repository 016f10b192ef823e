package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
// Code is drawn from a closed taxonomy; Internal carries the underlying cause
// for logging and is never serialised.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so sentinel comparisons survive WithInternal copies.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a caller-facing message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// The closed error taxonomy. Every error leaving the execution engine or the
// dispatcher is one of these; storage-driver detail stays in Internal.
var (
	ErrUnauthorized = &AppError{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrNotFound = &AppError{
		Code:       "not_found",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrPermissionDenied = &AppError{
		Code:       "permission_denied",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrValidation = &AppError{
		Code:       "validation_error",
		Message:    "Validation failed",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrDuplicateEntry = &AppError{
		Code:       "duplicate_entry",
		Message:    "A record with the same unique value already exists",
		StatusCode: http.StatusConflict,
	}

	ErrInvalidReference = &AppError{
		Code:       "invalid_reference",
		Message:    "A referenced record does not exist",
		StatusCode: http.StatusBadRequest,
	}

	ErrConstraint = &AppError{
		Code:       "constraint_error",
		Message:    "A database constraint was violated",
		StatusCode: http.StatusConflict,
	}

	ErrDatabaseUnavailable = &AppError{
		Code:       "database_unavailable",
		Message:    "A database error occurred",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrInvalidInput = &AppError{
		Code:       "invalid_input",
		Message:    "Invalid input provided",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidField = &AppError{
		Code:       "invalid_field",
		Message:    "Invalid field specified",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "internal_error",
		Message:    "An unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an internal AppError while keeping the original for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       ErrInternalServer.Code,
		Message:    message,
		StatusCode: ErrInternalServer.StatusCode,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewValidation wraps a field-level validation failure with a helpful message.
func NewValidation(message string) *AppError {
	return ErrValidation.WithMessage(message)
}

// NewInvalidInput reports a malformed request payload.
func NewInvalidInput(message string) *AppError {
	return ErrInvalidInput.WithMessage(message)
}
