package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
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

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details interface{}) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Err:     e.Err,
	}
}

// Common errors. The five lifecycle categories map onto HTTP codes:
// validation 400, forbidden 403, not found 404, conflict 409, gone 410.
var (
	// 400 Bad Request
	ErrBadRequest  = New(http.StatusBadRequest, "malformed request")
	ErrValidation  = New(http.StatusBadRequest, "validation failed")
	ErrInvalidMode = New(http.StatusBadRequest, "unknown persistence mode")

	// 403 Forbidden
	ErrForbidden     = New(http.StatusForbidden, "forbidden")
	ErrWrongPassword = New(http.StatusForbidden, "wrong room password")
	ErrHostOnly      = New(http.StatusForbidden, "only the room host may do that")

	// 404 Not Found
	ErrNotFound        = New(http.StatusNotFound, "resource not found")
	ErrRoomNotFound    = New(http.StatusNotFound, "room not found")
	ErrMessageNotFound = New(http.StatusNotFound, "message not found")
	// The room exists, but in the other persistence partition. Reported
	// distinctly so clients can suggest switching modes.
	ErrRoomOtherMode = New(http.StatusNotFound, "room exists in the other mode")

	// 409 Conflict
	ErrConflict   = New(http.StatusConflict, "resource conflict")
	ErrRoomExists = New(http.StatusConflict, "room id already in use")

	// 410 Gone
	ErrRoomExpired = New(http.StatusGone, "room has expired")

	// 401 Unauthorized
	ErrUnauthorized = New(http.StatusUnauthorized, "unauthorized")
	ErrInvalidToken = New(http.StatusUnauthorized, "invalid token")

	// 429 Too Many Requests
	ErrTooManyRequests = New(http.StatusTooManyRequests, "too many requests, slow down")

	// 500 Internal Server Error
	ErrInternal = New(http.StatusInternalServerError, "internal server error")
)

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// GetMessage returns the error message
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
