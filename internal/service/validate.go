package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/auth"
)

// Validation limits shared by register, reset and profile update.
const (
	MinPasswordLength = 6
	MaxNameLength     = 100
)

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "Name is required")
	}
	if len(name) > MaxNameLength {
		return "", apperror.ValidationFailed("name", "Name is too long")
	}
	return name, nil
}

// validateEmail accepts a bare address only ("a@b.c"), not a display-name
// form like "Ada <a@b.c>", and returns it normalised.
func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	invalid := apperror.ValidationFailed("email", "Please provide a valid email")

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid
	}
	// The domain needs a dot: "shopper@localhost" is not a deliverable address.
	domain := email[strings.LastIndex(email, "@")+1:]
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", invalid
	}
	return strings.ToLower(email), nil
}

// validatePassword counts characters for the minimum and bytes for the
// maximum, which is a bcrypt limit.
func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperror.ValidationFailed("password", "Password must be at least 6 characters")
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}
	return nil
}
