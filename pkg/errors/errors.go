package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with a stable code and the HTTP status the API
// renders it with. Internal is logged but never sent to clients.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap exposes the internal error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches any AppError with the same code, so copies made by WithInternal
// or NewBadRequest still match their sentinel.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if e == nil || !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy carrying err.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Sentinels rendered by the notification API.
var (
	ErrUnauthorized   = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrForbidden      = New("FORBIDDEN", "Permission denied", http.StatusForbidden)
	ErrNotFound       = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrBadRequest     = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrRateLimited    = New("RATE_LIMITED", "Too many requests", http.StatusTooManyRequests)
	ErrUnavailable    = New("SERVICE_UNAVAILABLE", "Service unavailable", http.StatusServiceUnavailable)
	ErrInternalServer = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
)

// New builds an application error.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

// FromError returns the AppError in err's chain, or ErrInternalServer
// wrapping err.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest is ErrBadRequest with a specific message.
func NewBadRequest(message string) *AppError {
	return New(ErrBadRequest.Code, message, ErrBadRequest.StatusCode)
}
