// Package repository declares the storage contracts used by the service layer.
// Implementations live in sub-packages (sqlite, mongo) and can be wrapped by
// decorators (cached).
package repository

import (
	"context"
	"time"

	"github.com/danigit7/E-commerce/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository is the credential store.
//
// Implementations must:
//   - normalise emails with model.NormalizeEmail before reading or writing,
//   - return apperror.DuplicateIdentity when a unique index rejects a write,
//   - return apperror.NotFound (wrapped or not) for missing rows,
//   - persist PasswordHash verbatim. Hashing is the caller's job.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	// GetByResetTokenHash finds the user holding hash whose expiry is after now.
	GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*model.User, error)
	Save(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
	Count(ctx context.Context) (int, error)

	AddToWishlist(ctx context.Context, userID, productID string) error
	RemoveFromWishlist(ctx context.Context, userID, productID string) error
}
