package logger

import (
	"time"

	apperrors "github.com/Michael--/modular-runtime/errors"
)

// Standard field keys.
const (
	FieldComponent = "component"
	FieldService   = "service"
	FieldServiceID = "service_id"
	FieldTarget    = "target"
	FieldOperation = "operation"
	FieldStatus    = "status"
	FieldError     = "error"
	FieldErrorCode = "error_code"
	FieldRetryable = "retryable"
	FieldDuration  = "duration_ms"
	FieldAttempt   = "attempt"
	FieldSequence  = "sequence"
	FieldDelay     = "retry_in"
	FieldRequestID = "request_id"
	FieldTraceID   = "trace_id"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("registered", logger.Fields("service_id", id, "interval", d))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldDuration:  d.Milliseconds(),
	}
}

// MergeWithError adds err to fields, allocating them when nil. An
// AppError in err's chain also contributes its code and retryability.
func MergeWithError(fields map[string]interface{}, err error) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields[FieldError] = err.Error()
	if appErr, ok := apperrors.AsAppError(err); ok {
		fields[FieldErrorCode] = string(appErr.Code)
		fields[FieldRetryable] = appErr.Retryable
	}
	return fields
}
