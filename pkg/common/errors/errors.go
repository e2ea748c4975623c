package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common sentinel errors
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrDatasetUnavailable = errors.New("dataset unavailable")
	ErrInternal           = errors.New("internal error")
)

// Machine-readable error kinds carried in error payloads.
const (
	KindInvalidInput       = "invalid_input"
	KindNotFound           = "not_found"
	KindDatasetUnavailable = "dataset_unavailable"
	KindInternal           = "internal"
)

// AppError represents an application-specific error with an HTTP status code.
type AppError struct {
	Code    int
	Kind    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError.
func NewAppError(code int, kind, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// MapError maps a common error to an AppError with an appropriate HTTP status code.
// The message keeps the wrapped detail so callers always get a readable explanation.
func MapError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return NewAppError(http.StatusBadRequest, KindInvalidInput, err.Error(), err)
	case errors.Is(err, ErrNotFound):
		return NewAppError(http.StatusNotFound, KindNotFound, err.Error(), err)
	case errors.Is(err, ErrDatasetUnavailable):
		return NewAppError(http.StatusServiceUnavailable, KindDatasetUnavailable, err.Error(), err)
	}

	return NewAppError(http.StatusInternalServerError, KindInternal, "internal error: "+err.Error(), err)
}

// ErrorPayload is the structured body returned to callers on failure.
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Payload converts err into the structured failure body shared by all transports.
func Payload(err error) ErrorPayload {
	appErr := MapError(err)
	if appErr == nil {
		return ErrorPayload{Error: KindInternal, Message: "unknown error"}
	}
	return ErrorPayload{Error: appErr.Kind, Message: appErr.Message}
}
