package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Banter error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrFileNotFound       ErrorCode = "FILE_NOT_FOUND"      // 404
	ErrInFlight           ErrorCode = "IN_FLIGHT"           // 409
	ErrStorageCorrupt     ErrorCode = "STORAGE_CORRUPT"     // 500
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE" // 502
)

// BanterError represents a structured error with code, status, and details.
type BanterError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *BanterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *BanterError {
	return &BanterError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnknownCategory creates a 404 error for a category id that is not defined.
func NewUnknownCategory(id string) *BanterError {
	return &BanterError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("unknown category: %s", id),
		Details: map[string]any{"category": id},
	}
}

// NewUnknownPersonality creates a 404 error for a personality id that is not configured.
func NewUnknownPersonality(id string) *BanterError {
	return &BanterError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("unknown personality: %s", id),
		Details: map[string]any{"personality": id},
	}
}

// NewFileNotFound creates a 404 error for a missing file.
func NewFileNotFound(path string) *BanterError {
	return &BanterError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewInFlight creates a 409 error when a send is attempted while another is outstanding.
func NewInFlight() *BanterError {
	return &BanterError{
		Code:    ErrInFlight,
		Status:  409,
		Message: "a message is already being sent; wait for the reply",
	}
}

// NewStorageCorrupt creates a 500 error describing an unreadable stored value.
// It is reported as a warning; callers fall back to defaults.
func NewStorageCorrupt(key string, err error) *BanterError {
	msg := fmt.Sprintf("stored value %q is unreadable", key)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &BanterError{
		Code:    ErrStorageCorrupt,
		Status:  500,
		Message: msg,
		Details: map[string]any{"key": key},
	}
}

// NewBackendUnavailable creates a 502 error for a failed backend exchange.
func NewBackendUnavailable(err error) *BanterError {
	msg := "backend unavailable"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &BanterError{
		Code:    ErrBackendUnavailable,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *BanterError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &BanterError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) a BanterError with the given code.
func Is(err error, code ErrorCode) bool {
	var bErr *BanterError
	if stderrors.As(err, &bErr) {
		return bErr.Code == code
	}
	return false
}
