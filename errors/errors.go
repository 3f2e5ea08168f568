package errors

import (
	"fmt"
	"net/http"
)

// AppError is a classified failure that can cross process boundaries: it
// carries a stable code, the HTTP status to answer with and whether a
// caller may try again.
type AppError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Retryable  bool           `json:"retryable"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

// Unwrap returns the cause.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause records cause and returns e.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets one detail and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// New creates an AppError whose Retryable flag follows code.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  code.Retryable(),
	}
}

func newFor(code ErrorCode, status int, peer, message string) *AppError {
	return New(code, message, status).WithDetail("peer", peer)
}

// ServiceUnavailable means peer refused or dropped the call and may recover.
func ServiceUnavailable(peer string) *AppError {
	return newFor(ErrCodeServiceUnavailable, http.StatusServiceUnavailable, peer, peer+" is unavailable")
}

// ConnectionFailed means no connection to peer could be made.
func ConnectionFailed(peer string) *AppError {
	return newFor(ErrCodeConnectionFailed, http.StatusServiceUnavailable, peer, "cannot connect to "+peer)
}

// Timeout means a call to peer ran out of time.
func Timeout(peer string) *AppError {
	return newFor(ErrCodeTimeout, http.StatusGatewayTimeout, peer, "call to "+peer+" timed out")
}

// NotFound means peer does not know the named resource.
func NotFound(resource, name string) *AppError {
	e := New(ErrCodeNotFound, resource+" not found", http.StatusNotFound)
	if name != "" {
		e.WithDetail(resource, name)
	}
	return e
}

// InvalidInput rejects one field of a request.
func InvalidInput(field, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason), http.StatusBadRequest).
		WithDetail("field", field)
}

// MissingField rejects a request that lacks field.
func MissingField(field string) *AppError {
	return New(ErrCodeInvalidInput, "Missing "+field, http.StatusBadRequest).WithDetail("field", field)
}

// Validation rejects a request with a ready-made message.
func Validation(message string) *AppError {
	return New(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

// Protocol means peer answered, but not in a usable way.
func Protocol(peer, reason string) *AppError {
	return newFor(ErrCodeProtocol, http.StatusBadGateway, peer, reason)
}

// ExternalServiceError wraps an answer from peer that signals failure.
func ExternalServiceError(peer string, cause error) *AppError {
	return newFor(ErrCodeExternalService, http.StatusBadGateway, peer, peer+" failed").WithCause(cause)
}

// Internal wraps an unexpected local failure.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "internal error", http.StatusInternalServerError).WithCause(cause)
}
