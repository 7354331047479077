package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/repository"
)

// WishlistService manages the product ids a user has saved. Product ids are
// opaque here: the catalog lives elsewhere and is not consulted.
type WishlistService struct {
	users repository.UserRepository
}

func NewWishlistService(users repository.UserRepository) *WishlistService {
	return &WishlistService{users: users}
}

func (s *WishlistService) Items(ctx context.Context, userID string) ([]string, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: loading %s: %w", userID, err)
	}
	if user.Wishlist == nil {
		return []string{}, nil
	}
	return user.Wishlist, nil
}

// Add is idempotent: adding an id twice keeps its first position.
func (s *WishlistService) Add(ctx context.Context, userID, productID string) ([]string, error) {
	productID, err := validateProductID(productID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: loading %s: %w", userID, err)
	}
	if user.HasWishlistItem(productID) {
		return user.Wishlist, nil
	}
	if err := s.users.AddToWishlist(ctx, userID, productID); err != nil {
		return nil, fmt.Errorf("service/wishlist: adding %s: %w", productID, err)
	}
	return s.Items(ctx, userID)
}

// Remove is idempotent: removing an absent id succeeds.
func (s *WishlistService) Remove(ctx context.Context, userID, productID string) ([]string, error) {
	productID, err := validateProductID(productID)
	if err != nil {
		return nil, err
	}
	if err := s.users.RemoveFromWishlist(ctx, userID, productID); err != nil {
		return nil, fmt.Errorf("service/wishlist: removing %s: %w", productID, err)
	}
	return s.Items(ctx, userID)
}

// Clear empties the wishlist.
func (s *WishlistService) Clear(ctx context.Context, userID string) error {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return err
	}
	// Copy first: a store may hand back the slice it mutates.
	for _, id := range append([]string(nil), items...) {
		if err := s.users.RemoveFromWishlist(ctx, userID, id); err != nil {
			return fmt.Errorf("service/wishlist: clearing %s: %w", userID, err)
		}
	}
	return nil
}

func validateProductID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperror.ValidationFailed("productId", "Product id is required")
	}
	return id, nil
}
