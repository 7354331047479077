// Package apperror defines the error taxonomy shared by the store, services
// and HTTP handlers.
//
// Every domain failure is an *AppError wrapping one of the sentinel errors
// below. Lower layers add context with fmt.Errorf("...: %w", err) and the HTTP
// layer walks the chain with errors.Is to pick a status code. Anything that is
// not an *AppError is treated as an internal error.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation error")
	ErrForbidden             = errors.New("forbidden")
	ErrDuplicateIdentity     = errors.New("duplicate identity")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountDeactivated    = errors.New("account deactivated")
	ErrNoToken               = errors.New("no token")
	ErrTokenInvalid          = errors.New("token invalid")
	ErrNotAdmin              = errors.New("not admin")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInternal              = errors.New("internal error")
)

type AppError struct {
	Err     error  // sentinel from the list above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundMessage is NotFound with a caller-supplied message, for lookups
// that are not keyed by id (e.g. "User not found" for an email).
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// DuplicateIdentity reports that a unique identity (email or external
// provider id) is already registered.
func DuplicateIdentity(field string) *AppError {
	return &AppError{
		Err:     ErrDuplicateIdentity,
		Message: "User already exists",
		Field:   field,
	}
}

// InvalidCredentials is deliberately vague: it is returned both for an
// unknown email and for a wrong password.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Invalid credentials",
	}
}

func AccountDeactivated() *AppError {
	return &AppError{
		Err:     ErrAccountDeactivated,
		Message: "Account is deactivated",
	}
}

func NoToken(message string) *AppError {
	return &AppError{
		Err:     ErrNoToken,
		Message: message,
	}
}

func TokenInvalid(message string) *AppError {
	return &AppError{
		Err:     ErrTokenInvalid,
		Message: message,
	}
}

func NotAdmin() *AppError {
	return &AppError{
		Err:     ErrNotAdmin,
		Message: "Not authorized as an admin",
	}
}

func InvalidOrExpiredToken() *AppError {
	return &AppError{
		Err:     ErrInvalidOrExpiredToken,
		Message: "Invalid or expired token",
	}
}

// Internal is a server-side failure whose message is safe to show the client.
// Errors that are not *AppError also map to 500, but with a generic message.
func Internal(message string) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: message,
	}
}
