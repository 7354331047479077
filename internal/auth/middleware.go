package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A plain string key could be read
// or shadowed by any package that knows the string. Only THIS package can
// create a key of type contextKey, so only this package can read or write the
// authenticated user.
type contextKey string

const userKey contextKey = "user"

// UserLoader is the slice of the credential store the middleware needs.
type UserLoader interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// RequireAuth is a middleware that enforces bearer authentication.
//
// It reads "Authorization: Bearer <access token>", validates the token, loads
// the user it names and stores that user in the request context. Failures stop
// the chain with a JSON error:
//
//	no header / not "Bearer …"        → 401 no_token
//	bad signature / expired / refresh → 401 token_invalid
//	user no longer exists             → 401 token_invalid
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new http.Handler that
// wraps it. Chi applies them in a chain: req → M1 → M2 → Handler → M2 → M1.
//
// WHY LOAD THE USER HERE?
// The token only proves who the caller was when it was issued. Reading the
// store on every request means a deleted account stops working immediately.
// The cached repository decorator keeps that read cheap.
func RequireAuth(tokens *TokenService, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, apperror.NoToken("Not authorized, no token"))
				return
			}

			claims, err := tokens.ValidateAccess(raw)
			if err != nil {
				writeAuthError(w, apperror.TokenInvalid("Not authorized, token failed"))
				return
			}

			user, err := users.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					writeAuthError(w, apperror.TokenInvalid("Not authorized, user not found"))
					return
				}
				writeAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAdmin must be layered after RequireAuth.
//
// The switch is exhaustive over model.Role: adding a role without deciding
// whether it is an admin falls into the default branch and is refused.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeAuthError(w, apperror.NoToken("Not authorized, no token"))
			return
		}

		switch user.Role {
		case model.RoleAdmin:
			next.ServeHTTP(w, r)
		case model.RoleUser:
			writeAuthError(w, apperror.NotAdmin())
		default:
			writeAuthError(w, apperror.NotAdmin())
		}
	})
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user stored by RequireAuth.
//
// Usage in handlers:
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // route was not wrapped in RequireAuth
//	}
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeAuthError writes the same {"error","message"} body the handlers use.
// It lives here because handler imports auth, not the other way round.
func writeAuthError(w http.ResponseWriter, err error) {
	status, code, message := http.StatusInternalServerError, "internal_error", "an unexpected error occurred"

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
		switch {
		case errors.Is(err, apperror.ErrNoToken):
			status, code = http.StatusUnauthorized, "no_token"
		case errors.Is(err, apperror.ErrTokenInvalid):
			status, code = http.StatusUnauthorized, "token_invalid"
		case errors.Is(err, apperror.ErrNotAdmin):
			status, code = http.StatusForbidden, "not_admin"
		default:
			status, code, message = http.StatusInternalServerError, "internal_error", "an unexpected error occurred"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
