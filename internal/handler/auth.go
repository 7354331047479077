package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/auth"
	"github.com/danigit7/E-commerce/internal/model"
	"github.com/danigit7/E-commerce/internal/service"
)

// AuthHandler exposes the local-account session endpoints under /api/auth.
//
// HANDLER RESPONSIBILITIES:
//   - decode the request body
//   - call AuthService (which owns every business rule)
//   - set or clear the refresh cookie
//   - encode the response, or map the error with writeError
//
// TWO TOKENS, TWO CHANNELS:
// The access token goes in the JSON body; the SPA keeps it in memory and sends
// it as "Authorization: Bearer …". The refresh token goes ONLY in an HttpOnly
// cookie, so page scripts can never read it. It is never in a response body.
type AuthHandler struct {
	svc     *service.AuthService
	cookies *auth.CookieWriter
	logger  *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, cookies *auth.CookieWriter, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, cookies: cookies, logger: logger}
}

// authResponse is the user's public fields with the access token alongside:
//
//	{"id":"…","name":"…","email":"…","role":"user",…,"accessToken":"eyJ…"}
//
// Embedding *model.User flattens its fields into the object. model.User
// never serialises the password hash or reset fields.
type authResponse struct {
	*model.User
	AccessToken string `json:"accessToken"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// verifyResponse is deliberately smaller than the full user.
type verifyResponse struct {
	Valid bool       `json:"valid"`
	User  verifyUser `json:"user"`
}

type verifyUser struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

// HandleRegister creates a local account.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"name": "Ada", "email": "ada@example.com", "password": "secret1"}
// RESPONSE: 201 authResponse + Set-Cookie: refreshToken=…
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.Set(w, res.RefreshToken)
	writeJSON(w, http.StatusCreated, authResponse{User: res.User, AccessToken: res.AccessToken})
}

// HandleLogin authenticates with email and password.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"email": "ada@example.com", "password": "secret1"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.Set(w, res.RefreshToken)
	writeJSON(w, http.StatusOK, authResponse{User: res.User, AccessToken: res.AccessToken})
}

// HandleLogout clears the refresh cookie.
//
// HTTP: POST /api/auth/logout
// Auth: Required
//
// The access token stays valid until it expires (15 minutes by default); the
// SPA drops it from memory. The refresh token is revoked server side when a
// revocation list is configured, otherwise clearing the cookie is all there is.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.NoToken("Not authorized, no token"))
		return
	}

	refresh, _ := auth.RefreshTokenFrom(r)
	h.svc.Logout(r.Context(), user.ID, refresh)

	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// HandleRefresh issues a new access token from the refresh cookie.
//
// HTTP: POST /api/auth/refresh
// RESPONSE: {"accessToken": "eyJ…"}
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh, _ := auth.RefreshTokenFrom(r)

	access, err := h.svc.Refresh(r.Context(), refresh)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access})
}

// HandleMe returns the current user, read fresh from the store.
//
// HTTP: GET /api/auth/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	current, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.NoToken("Not authorized, no token"))
		return
	}

	user, err := h.svc.Me(r.Context(), current.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleVerify lets the SPA check an access token on page load.
//
// HTTP: GET /api/auth/verify
// Auth: Required
//
// Reaching this handler already means RequireAuth accepted the token, so the
// answer is always valid=true; failures are the middleware's 401s.
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.NoToken("Not authorized, no token"))
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Valid: true,
		User: verifyUser{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Role:  user.Role,
		},
	})
}

// HandleForgotPassword emails a reset link.
//
// HTTP: POST /api/auth/forgot-password
// REQUEST BODY: {"email": "ada@example.com"}
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset email sent"})
}

// HandleResetPassword sets a new password using the emailed token.
//
// HTTP: POST /api/auth/reset-password/{token}
// REQUEST BODY: {"password": "brand-new"}
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successful"})
}
