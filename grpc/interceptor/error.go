package interceptor

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type callFailure struct {
	reason    string
	retryable bool
	// detail appends the status message to reason.
	detail bool
}

var callFailures = map[codes.Code]callFailure{
	codes.Unavailable:       {reason: "peer unavailable", retryable: true},
	codes.DeadlineExceeded:  {reason: "call timed out", retryable: true},
	codes.ResourceExhausted: {reason: "peer overloaded", retryable: true},
	codes.Aborted:           {reason: "call aborted", retryable: true},
	codes.Canceled:          {reason: "call canceled"},
	codes.NotFound:          {reason: "not found"},
	codes.Unimplemented:     {reason: "method not implemented by peer"},
	codes.InvalidArgument:   {reason: "invalid request", detail: true},
}

// ErrorMapper turns a failed call into a short reason for logs and says
// whether repeating the call could succeed. Errors without a gRPC status
// never reached the peer and are retryable.
func ErrorMapper(err error) (reason string, retryable bool) {
	if err == nil {
		return "", false
	}
	st, ok := status.FromError(err)
	if !ok {
		return "unexpected transport error", true
	}
	f, known := callFailures[st.Code()]
	if !known {
		f = callFailure{reason: "peer error", detail: true}
	}
	if f.detail && st.Message() != "" {
		return f.reason + ": " + st.Message(), f.retryable
	}
	return f.reason, f.retryable
}

// IsRetryable reports whether err carries a gRPC status worth retrying.
// It fits resilience.RetryConfig.RetryIf.
func IsRetryable(err error) bool {
	st, ok := status.FromError(err)
	if err == nil || !ok {
		return false
	}
	return callFailures[st.Code()].retryable
}
