package errors

// ErrorCode is the machine-readable part of an AppError.
type ErrorCode string

// The peer could not be reached or did not answer in time.
const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeConnectionFailed   ErrorCode = "CONNECTION_FAILED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
)

// The peer answered with a failure.
const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeProtocol        ErrorCode = "PROTOCOL_ERROR"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// Retryable reports whether a call failing with c is worth repeating.
// A protocol error is retryable: a registry that answered badly once may
// answer properly after a restart.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeServiceUnavailable, ErrCodeConnectionFailed, ErrCodeTimeout,
		ErrCodeExternalService, ErrCodeProtocol:
		return true
	default:
		return false
	}
}
