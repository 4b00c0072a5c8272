package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so wrapped sentinels
// compare equal with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrValidation  = &AppError{Code: "VALIDATION_001", Message: "missing required field"}
	ErrInvalidTime = &AppError{Code: "VALIDATION_002", Message: "invalid time of day"}

	ErrMedicationNotFound = &AppError{Code: "MED_001", Message: "medication not found"}

	ErrGatewayUnavailable = &AppError{Code: "GATEWAY_001", Message: "notification gateway unavailable"}
	ErrPermissionDenied   = &AppError{Code: "GATEWAY_002", Message: "notification permission denied"}
	ErrInvalidEvent       = &AppError{Code: "GATEWAY_003", Message: "invalid gateway event"}

	ErrPersistence = &AppError{Code: "STORE_001", Message: "could not save data"}

	ErrNoActiveAlarm = &AppError{Code: "ALARM_001", Message: "no active alarm for medication"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Validation builds a validation error naming the offending field.
func Validation(field string) *AppError {
	return &AppError{Code: ErrValidation.Code, Message: field + " is required"}
}

// NotFound builds a not-found error for a medication id.
func NotFound(id string) *AppError {
	return &AppError{Code: ErrMedicationNotFound.Code, Message: "medication not found: " + id}
}
