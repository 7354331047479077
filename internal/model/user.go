// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Role is the closed set of authorization roles. New roles must be added here
// and to every switch over Role (see auth.RequireAdmin).
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents a storefront account.
//
// An account is either LOCAL (PasswordHash set, created through /register)
// or BRIDGED (GoogleID set, created through the Google OAuth callback).
// A local account may later be linked to Google, in which case both are set.
//
// SECRETS NEVER LEAVE THE SERVER:
// PasswordHash and the reset-token fields are tagged `json:"-"`, so encoding a
// User to a response body can never expose them, whichever handler does it.
// The reset token itself is never stored, only its sha256 hex digest.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	GoogleID     string `json:"-"`
	Avatar       string `json:"avatar,omitempty"`
	Role         Role   `json:"role"`
	IsActive     bool   `json:"isActive"`

	ResetTokenHash   string     `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`

	// Wishlist holds product ids in the order they were added.
	Wishlist []string `json:"wishlist"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeEmail lower-cases and trims an email address. Every store lookup
// and write goes through it so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasPassword reports whether the account can authenticate with a local
// password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// ClearResetToken drops any in-flight password reset.
func (u *User) ClearResetToken() {
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
}

// HasWishlistItem reports whether productID is already in the wishlist.
func (u *User) HasWishlistItem(productID string) bool {
	for _, id := range u.Wishlist {
		if id == productID {
			return true
		}
	}
	return false
}
