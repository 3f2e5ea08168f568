package httpclient

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/Michael--/modular-runtime/errors"
)

// ErrorCode classifies a failed request.
type ErrorCode int

const (
	ErrCodeTimeout ErrorCode = iota
	ErrCodeConnection
	ErrCodeNotFound
	// ErrCodeValidation is a 4xx answer or a request that could not be built.
	ErrCodeValidation
	// ErrCodeServer is a 5xx or 429 answer.
	ErrCodeServer
	// ErrCodeDecode is a 2xx answer whose body was not the expected JSON.
	ErrCodeDecode
)

var codeNames = [...]string{"timeout", "connection", "not_found", "validation", "server", "decode"}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return "unknown"
	}
	return codeNames[c]
}

// Error is a classified request failure.
type Error struct {
	// StatusCode is 0 when no answer arrived.
	StatusCode int
	Code       ErrorCode
	Message    string
	Retryable  bool
	Body       []byte
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("httpclient: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("httpclient: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Reachable reports whether the peer answered at all.
func (e *Error) Reachable() bool {
	return e.Code != ErrCodeTimeout && e.Code != ErrCodeConnection
}

// ToAppError converts e, naming peer in the result.
func (e *Error) ToAppError(peer string) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch e.Code {
	case ErrCodeTimeout:
		appErr = apperrors.Timeout(peer)
	case ErrCodeConnection:
		appErr = apperrors.ConnectionFailed(peer)
	case ErrCodeNotFound:
		appErr = apperrors.NotFound(peer+" resource", "")
	case ErrCodeValidation:
		appErr = apperrors.Validation(e.Message)
	case ErrCodeDecode:
		appErr = apperrors.Protocol(peer, e.Message)
	default:
		return apperrors.ExternalServiceError(peer, e)
	}
	return appErr.WithCause(e)
}

// NewTimeoutError records a request that ran out of time.
func NewTimeoutError(err error) *Error {
	return &Error{Code: ErrCodeTimeout, Message: err.Error(), Retryable: true, Err: err}
}

// NewConnectionError records a request that never reached the peer.
func NewConnectionError(err error) *Error {
	return &Error{Code: ErrCodeConnection, Message: err.Error(), Retryable: true, Err: err}
}

// NewValidationError records a request rejected before or by the peer.
func NewValidationError(msg string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg}
}

// NewServerError records a 5xx answer.
func NewServerError(status int, body []byte) *Error {
	return &Error{StatusCode: status, Code: ErrCodeServer, Message: fmt.Sprintf("HTTP %d", status), Retryable: true, Body: body}
}

// NewDecodeError records an undecodable answer.
func NewDecodeError(status int, body []byte, err error) *Error {
	return &Error{StatusCode: status, Code: ErrCodeDecode, Message: err.Error(), Body: body, Err: err}
}

// ClassifyStatusCode returns nil for 2xx and a classified *Error
// otherwise. The message is the peer's {"error": ...} text when present.
func ClassifyStatusCode(status int, body []byte) *Error {
	if status >= 200 && status < 300 {
		return nil
	}
	e := &Error{StatusCode: status, Message: errorText(status, body), Body: body}
	switch {
	case status == http.StatusNotFound:
		e.Code = ErrCodeNotFound
	case status == http.StatusTooManyRequests, status >= 500:
		e.Code = ErrCodeServer
		e.Retryable = true
	case status >= 400:
		e.Code = ErrCodeValidation
	default:
		e.Code = ErrCodeServer
	}
	return e
}

func errorText(status int, body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if len(body) > 0 && jsonAPI.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return fmt.Sprintf("HTTP %d", status)
}

func is(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool { return is(err, ErrCodeTimeout) }

// IsConnection reports whether err is a connection failure.
func IsConnection(err error) bool { return is(err, ErrCodeConnection) }

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool { return is(err, ErrCodeNotFound) }

// IsServerError reports whether err is a 5xx or 429.
func IsServerError(err error) bool { return is(err, ErrCodeServer) }

// IsRetryable reports whether err is worth repeating.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
