// Package apperr defines the typed errors exchanged between components.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeAuthExpired  = "AUTH_EXPIRED"

	// Validation errors
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidInput = "INVALID_INPUT"
	CodeMissingField = "MISSING_FIELD"

	// Resource errors
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// Domain errors
	CodeQuotaDenied   = "QUOTA_DENIED"
	CodeLowConfidence = "LOW_CONFIDENCE"
	CodeInvariant     = "INVARIANT"

	// External errors
	CodeExternalUnavailable = "EXTERNAL_UNAVAILABLE"
	CodeDatabaseError       = "DATABASE_ERROR"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// NotFound reports a missing entity.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

// Conflict reports a uniqueness or optimistic-concurrency violation. The
// caller may retry after re-reading.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// AuthExpired reports mailbox or portal credentials that are no longer valid.
// The stored credential is flushed by the caller and the user is notified.
func AuthExpired(provider string, err error) *AppError {
	return &AppError{
		Code:    CodeAuthExpired,
		Message: fmt.Sprintf("%s credentials expired, re-authentication required", provider),
		Status:  http.StatusUnauthorized,
		Details: map[string]any{"provider": provider},
		Err:     err,
	}
}

// QuotaDenied reports a usage limit hit. Carries (current, limit) and has no
// side effects.
func QuotaDenied(event string, current, limit int) *AppError {
	return &AppError{
		Code:    CodeQuotaDenied,
		Message: fmt.Sprintf("usage limit reached for %s", event),
		Status:  http.StatusPaymentRequired,
		Details: map[string]any{"event": event, "current": current, "limit": limit},
	}
}

// ExternalUnavailable reports a downstream service (LLM, mail, browser worker)
// failure that is worth retrying.
func ExternalUnavailable(service string, err error) *AppError {
	return &AppError{
		Code:    CodeExternalUnavailable,
		Message: fmt.Sprintf("external service unavailable: %s", service),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// LowConfidence reports a classification below the transition gate. The
// message is stored but no transition is applied.
func LowConfidence(category string, confidence float64) *AppError {
	return &AppError{
		Code:    CodeLowConfidence,
		Message: fmt.Sprintf("classification %s below confidence gate", category),
		Status:  http.StatusUnprocessableEntity,
		Details: map[string]any{"category": category, "confidence": confidence},
	}
}

// Invariant reports a violated precondition that should be impossible.
// Logged, dead-lettered, human required.
func Invariant(message string) *AppError {
	return &AppError{
		Code:    CodeInvariant,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool    { return IsCode(err, CodeNotFound) }
func IsConflict(err error) bool    { return IsCode(err, CodeConflict) }
func IsAuthExpired(err error) bool { return IsCode(err, CodeAuthExpired) }
func IsQuotaDenied(err error) bool { return IsCode(err, CodeQuotaDenied) }

// IsRetryable reports whether the error is transient and the job runtime
// should retry it.
func IsRetryable(err error) bool {
	return IsCode(err, CodeExternalUnavailable) || IsCode(err, CodeTimeout)
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
