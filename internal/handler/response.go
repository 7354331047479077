package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "invalid_credentials", "message": "Invalid credentials"}
//
// Validation errors also name the offending input:
//   {"error": "validation_error", "message": "Please provide a valid email", "field": "email"}
//
// The frontend can switch on "error" (stable, machine-readable) and show
// "message" (human-readable) without caring which endpoint failed.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/danigit7/E-commerce/internal/apperror"
)

// maxBodyBytes caps JSON request bodies. Every body this API accepts is a
// handful of short strings.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set for validation and duplicate errors
}

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be written BEFORE the body. Once Encode writes,
// the headers are on the wire and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a domain error to its HTTP status and machine code.
//
// ORDER:
// errors.Is walks the whole chain, so a wrapped AppError still matches its
// sentinel. Each AppError wraps exactly one sentinel, so the order of the
// cases only matters for readability.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrDuplicateIdentity):
		return http.StatusBadRequest, "duplicate_identity"
	case errors.Is(err, apperror.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, "invalid_or_expired_token"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apperror.ErrNoToken):
		return http.StatusUnauthorized, "no_token"
	case errors.Is(err, apperror.ErrTokenInvalid):
		return http.StatusUnauthorized, "token_invalid"
	case errors.Is(err, apperror.ErrAccountDeactivated):
		return http.StatusForbidden, "account_deactivated"
	case errors.Is(err, apperror.ErrNotAdmin):
		return http.StatusForbidden, "not_admin"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer should not know about HTTP status codes. It returns
// apperror values; this function is the single place they become 4xx/5xx.
//
// Anything that is not an *AppError is an unexpected failure (a database
// error, a signing error). It is logged with its full chain and the client
// gets a generic message: raw errors can carry SQL, file paths or hostnames.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, code := statusFor(err)
		writeJSON(w, status, ErrorResponse{
			Error:   code,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a single JSON object from the request body into dst.
// A malformed or oversized body is a validation error. An empty body decodes
// as {} so that "missing field" errors come from the service's validation
// with their usual messages.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperror.ValidationFailed("", "Invalid JSON body")
	}
	return nil
}
