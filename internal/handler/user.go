package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/auth"
	"github.com/danigit7/E-commerce/internal/service"
)

// UserHandler serves the caller's own profile and, behind the admin guard,
// user management.
type UserHandler struct {
	svc    *service.UserService
	logger *slog.Logger
}

func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// profileRequest uses pointers so "field absent" and "field empty" differ:
// {"name": ""} is a validation error, {} changes nothing.
type profileRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

type statusResponse struct {
	ID       string `json:"id"`
	IsActive bool   `json:"isActive"`
}

// HandleGetProfile returns the current user.
//
// HTTP: GET /api/users/profile
func (h *UserHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	current, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.NoToken("Not authorized, no token"))
		return
	}

	user, err := h.svc.Profile(r.Context(), current.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateProfile applies a partial update.
//
// HTTP: PUT /api/users/profile
// REQUEST BODY: {"name"?: "…", "email"?: "…", "password"?: "…"}
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	current, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.NoToken("Not authorized, no token"))
		return
	}

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), current.ID, service.ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleList pages through every account.
//
// HTTP: GET /api/admin/users?page=1&limit=20
// RESPONSE: {"users": [...], "page": 1, "pages": 3, "total": 42}
//
// Non-numeric page/limit values fall back to the defaults.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.svc.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleToggleStatus activates or deactivates a non-admin account.
//
// HTTP: PUT /api/admin/users/{id}/toggle-status
func (h *UserHandler) HandleToggleStatus(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.ToggleStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{ID: user.ID, IsActive: user.IsActive})
}

// HandleDelete removes a non-admin account.
//
// HTTP: DELETE /api/admin/users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}
