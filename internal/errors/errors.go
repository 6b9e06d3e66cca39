package errors

import "fmt"

// ErrorCode represents a shotpipe error code.
type ErrorCode string

const (
	ErrNotConnected   ErrorCode = "NOT_CONNECTED"   // 401
	ErrAuthFailed     ErrorCode = "AUTH_FAILED"     // 401
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrRemote         ErrorCode = "REMOTE_ERROR"    // 502
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// PipeError represents a structured error with code, status, and details.
// Remote failures are not split into transient vs permanent; both surface
// identically and the host renders Message as-is.
type PipeError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *PipeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotConnected creates a 401 error for operations that need a live session.
func NewNotConnected() *PipeError {
	return &PipeError{
		Code:    ErrNotConnected,
		Status:  401,
		Message: "no Flow session; run login first",
	}
}

// NewAuthFailed creates a 401 error for missing or rejected credentials.
func NewAuthFailed(msg string) *PipeError {
	if msg == "" {
		msg = "Invalid credentials"
	}
	return &PipeError{
		Code:    ErrAuthFailed,
		Status:  401,
		Message: msg,
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *PipeError {
	return &PipeError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a remote entity cannot be found.
func NewNotFound(entity, filter string) *PipeError {
	msg := fmt.Sprintf("no %s found", entity)
	if filter != "" {
		msg = fmt.Sprintf("no %s matching %q found", entity, filter)
	}
	return &PipeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: msg,
		Details: map[string]any{"entity": entity, "filter": filter},
	}
}

// NewRemote creates a 502 error wrapping a failure reported by the
// production-tracking service.
func NewRemote(err error) *PipeError {
	msg := "remote call failed"
	if err != nil {
		msg = err.Error()
	}
	return &PipeError{
		Code:    ErrRemote,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *PipeError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &PipeError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a PipeError with the given code.
func Is(err error, code ErrorCode) bool {
	if pErr, ok := err.(*PipeError); ok {
		return pErr.Code == code
	}
	return false
}
