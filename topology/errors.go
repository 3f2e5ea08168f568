package topology

import (
	"errors"
	"fmt"

	apperrors "github.com/Michael--/modular-runtime/errors"
)

// ErrorKind classifies registry failures.
type ErrorKind int

const (
	// KindTransport means the registry could not be reached: connection,
	// timeout or stream failure.
	KindTransport ErrorKind = iota + 1
	// KindProtocol means the registry answered, but not with success, or
	// without the expected handle.
	KindProtocol
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is a classified registry failure.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("topology %s %s: %s", e.Op, e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// ToAppError returns e as an AppError: transport failures are
// SERVICE_UNAVAILABLE and protocol failures PROTOCOL_ERROR. Both are
// retryable.
func (e *Error) ToAppError() *apperrors.AppError {
	if e.Kind == KindTransport {
		return apperrors.ServiceUnavailable("topology registry").WithCause(e)
	}
	return apperrors.Protocol("topology registry", e.Op+" rejected").WithCause(e)
}

// NewTransportError wraps err as an unreachable-registry failure of op.
func NewTransportError(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// NewProtocolError records a non-success answer to op.
func NewProtocolError(op, msg string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Message: msg, Err: err}
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTransport
}

// IsProtocol reports whether err is a protocol failure.
func IsProtocol(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindProtocol
}

// classify makes sure every failure the session stores is an *Error.
// Transports normally return *Error already; anything else is treated as
// a transport failure.
func classify(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewTransportError(op, err)
}
