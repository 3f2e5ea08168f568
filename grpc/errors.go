package grpc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/Michael--/modular-runtime/errors"
)

// FromGRPC classifies a failed call to peer. Errors without a status are
// classified by their text: deadlines, refused or reset connections, and
// everything else as internal.
func FromGRPC(err error, peer string) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}

	st, ok := status.FromError(err)
	if !ok {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return apperrors.Timeout(peer).WithCause(err)
		case IsConnectionError(err):
			return apperrors.ConnectionFailed(peer).WithCause(err)
		default:
			return apperrors.Internal(err)
		}
	}

	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return apperrors.ServiceUnavailable(peer).WithCause(err)
	case codes.DeadlineExceeded:
		return apperrors.Timeout(peer).WithCause(err)
	case codes.NotFound:
		return apperrors.New(apperrors.ErrCodeNotFound, nonEmpty(st.Message(), "not found"), http.StatusNotFound).WithCause(err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.AlreadyExists:
		return apperrors.Validation(nonEmpty(st.Message(), "rejected by "+peer)).WithCause(err)
	case codes.Unimplemented:
		return apperrors.Protocol(peer, st.Message()).WithCause(err)
	default:
		return apperrors.ExternalServiceError(peer, err)
	}
}

// ToGRPCStatus turns appErr into the status a handler returns.
func ToGRPCStatus(appErr *apperrors.AppError) error {
	if appErr == nil {
		return nil
	}
	code := codes.Internal
	switch appErr.Code {
	case apperrors.ErrCodeNotFound:
		code = codes.NotFound
	case apperrors.ErrCodeInvalidInput:
		code = codes.InvalidArgument
	case apperrors.ErrCodeTimeout:
		code = codes.DeadlineExceeded
	case apperrors.ErrCodeServiceUnavailable, apperrors.ErrCodeConnectionFailed:
		code = codes.Unavailable
	case apperrors.ErrCodeProtocol:
		code = codes.Unimplemented
	}
	return status.Error(code, appErr.Message)
}

var connectionFailures = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"transport is closing",
	"connection closed",
	"broken pipe",
}

// IsConnectionError reports whether err means the connection itself
// failed, as opposed to the peer answering.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if status.Code(err) == codes.Unavailable {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range connectionFailures {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
