package errors

import (
	stderrors "errors"
)

// ErrorResponse is the JSON body written for an AppError.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the public part of an AppError.
type ErrorBody struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToResponse returns the body to send for e. The cause stays private.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: ErrorBody{
		Code:      e.Code,
		Message:   e.Message,
		Retryable: e.Retryable,
		Details:   e.Details,
	}}
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsAppError reports whether err's chain holds an AppError.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}
