package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/auth"
	"github.com/danigit7/E-commerce/internal/model"
	"github.com/danigit7/E-commerce/internal/repository"
)

// Pagination limits for the admin user listing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// maxPage keeps (page-1)*limit from overflowing.
	maxPage = math.MaxInt / MaxPageSize
)

// UserService covers everything about an account that is not logging in:
// the caller's own profile and the admin user-management screens.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewUserService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *UserService {
	return &UserService{users: users, passwords: passwords, logger: logger}
}

// ProfileUpdate is a partial update. A nil field is left unchanged.
type ProfileUpdate struct {
	Name     *string
	Email    *string
	Password *string
}

// Profile returns the stored user.
func (s *UserService) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching profile %s: %w", userID, err)
	}
	return user, nil
}

// UpdateProfile validates and applies upd.
//
// An email change is not pre-checked: Save hits the unique index and a
// collision comes back as DuplicateIdentity. A new password is hashed here,
// the only place besides registration and reset where plaintext exists.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: loading user %s: %w", userID, err)
	}

	if upd.Name != nil {
		name, err := validateName(*upd.Name)
		if err != nil {
			return nil, err
		}
		user.Name = name
	}
	if upd.Email != nil {
		email, err := validateEmail(*upd.Email)
		if err != nil {
			return nil, err
		}
		user.Email = email
	}
	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(*upd.Password)
		if err != nil {
			return nil, fmt.Errorf("service/user: hashing password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, fmt.Errorf("service/user: saving profile %s: %w", userID, err)
	}

	s.logger.Info("profile updated", slog.String("userID", userID))
	return user, nil
}

// UserPage is one page of the admin listing.
type UserPage struct {
	Users []model.User `json:"users"`
	Page  int          `json:"page"`
	Pages int          `json:"pages"`
	Total int          `json:"total"`
}

// List returns page (1-based) of all users, newest first. Out-of-range
// arguments are clamped rather than rejected.
func (s *UserService) List(ctx context.Context, page, limit int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/user: counting users: %w", err)
	}
	users, err := s.users.List(ctx, repository.ListOptions{Limit: limit, Offset: (page - 1) * limit})
	if err != nil {
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}

	return &UserPage{
		Users: users,
		Page:  page,
		Pages: (total + limit - 1) / limit,
		Total: total,
	}, nil
}

// ToggleStatus flips IsActive on a non-admin account and returns the result.
func (s *UserService) ToggleStatus(ctx context.Context, targetID string) (*model.User, error) {
	user, err := s.loadManageable(ctx, targetID, "Cannot modify admin users")
	if err != nil {
		return nil, err
	}

	user.IsActive = !user.IsActive
	if err := s.users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: toggling %s: %w", targetID, err)
	}

	s.logger.Info("user status changed",
		slog.String("userID", targetID),
		slog.Bool("isActive", user.IsActive),
	)
	return user, nil
}

// Delete removes a non-admin account together with its wishlist.
func (s *UserService) Delete(ctx context.Context, targetID string) error {
	if _, err := s.loadManageable(ctx, targetID, "Cannot delete admin users"); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, targetID); err != nil {
		return fmt.Errorf("service/user: deleting %s: %w", targetID, err)
	}
	s.logger.Info("user deleted", slog.String("userID", targetID))
	return nil
}

// loadManageable loads a user an admin may act on. Admin accounts are off
// limits, including the caller's own.
func (s *UserService) loadManageable(ctx context.Context, id, adminMessage string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("User not found")
		}
		return nil, fmt.Errorf("service/user: loading %s: %w", id, err)
	}

	switch user.Role {
	case model.RoleAdmin:
		return nil, apperror.Forbidden(adminMessage)
	default:
		return user, nil
	}
}
