package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of expected failure. Callers branch on the
// code; Message is already safe to show to a user.
type ErrorCode int

const (
	// ErrAuthRequired means no credential is present; the request was never sent.
	ErrAuthRequired ErrorCode = iota + 1000
	// ErrNetwork is a transport-level failure with no server response.
	ErrNetwork
	// ErrSessionExpired maps HTTP 401; the stored credential is no longer valid.
	ErrSessionExpired
	// ErrForbidden maps HTTP 403.
	ErrForbidden
	// ErrNotFound maps HTTP 404.
	ErrNotFound
	// ErrInvalid is a validation failure, client-side or HTTP 400.
	ErrInvalid
	// ErrServerRejected is any other non-2xx response.
	ErrServerRejected
)

// AppError represents an expected application failure. REST client methods
// return it in place of raw transport or HTTP errors so callers never need
// to interpret status codes themselves.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
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

// Is reports code equality so errors.Is works across distinct instances.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if errors.As(target, &appErr) {
		return appErr.Code == e.Code
	}
	return false
}

// Error constructors
func AuthRequired() *AppError {
	return &AppError{
		Code:    ErrAuthRequired,
		Message: "sign in to view notifications",
	}
}

func Network(err error) *AppError {
	return &AppError{
		Code:    ErrNetwork,
		Message: "could not reach the server, check your connection",
		Err:     err,
	}
}

func SessionExpired() *AppError {
	return &AppError{
		Code:    ErrSessionExpired,
		Message: "your session has expired, please sign in again",
	}
}

func Forbidden() *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: "you do not have permission to do this",
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func Invalid(message string) *AppError {
	return &AppError{
		Code:    ErrInvalid,
		Message: message,
	}
}

func ServerRejected(message string) *AppError {
	if message == "" {
		message = "the server rejected the request"
	}
	return &AppError{
		Code:    ErrServerRejected,
		Message: message,
	}
}

// FromStatus maps a non-2xx HTTP status to the taxonomy. serverMsg is the
// server's own error text when the response carried one; it is only used
// where the class has no fixed wording of its own.
func FromStatus(status int, serverMsg string) *AppError {
	switch status {
	case http.StatusBadRequest:
		if serverMsg == "" {
			serverMsg = "the request was invalid"
		}
		return Invalid(serverMsg)
	case http.StatusUnauthorized:
		return SessionExpired()
	case http.StatusForbidden:
		return Forbidden()
	case http.StatusNotFound:
		return NotFound("item")
	default:
		return ServerRejected(serverMsg)
	}
}

// CodeOf extracts the ErrorCode from err, or ErrServerRejected if err is not
// an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrServerRejected
}
