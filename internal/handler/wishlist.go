package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/auth"
	"github.com/danigit7/E-commerce/internal/service"
)

// WishlistHandler serves /api/wishlist. Every route requires a bearer token.
type WishlistHandler struct {
	svc *service.WishlistService
}

func NewWishlistHandler(svc *service.WishlistService) *WishlistHandler {
	return &WishlistHandler{svc: svc}
}

type wishlistResponse struct {
	Items []string `json:"items"`
}

// HTTP: GET /api/wishlist
func (h *WishlistHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(userID string) ([]string, error) {
		return h.svc.Items(r.Context(), userID)
	})
}

// HTTP: POST /api/wishlist/{productId}
func (h *WishlistHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(userID string) ([]string, error) {
		return h.svc.Add(r.Context(), userID, chi.URLParam(r, "productId"))
	})
}

// HTTP: DELETE /api/wishlist/{productId}
func (h *WishlistHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(userID string) ([]string, error) {
		return h.svc.Remove(r.Context(), userID, chi.URLParam(r, "productId"))
	})
}

// HTTP: DELETE /api/wishlist
func (h *WishlistHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(userID string) ([]string, error) {
		if err := h.svc.Clear(r.Context(), userID); err != nil {
			return nil, err
		}
		return []string{}, nil
	})
}

// respond runs op for the authenticated user and writes {"items": [...]}.
func (h *WishlistHandler) respond(w http.ResponseWriter, r *http.Request, op func(userID string) ([]string, error)) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.NoToken("Not authorized, no token"))
		return
	}

	items, err := op(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wishlistResponse{Items: items})
}
