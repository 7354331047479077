// Package service holds the authentication and account business logic.
//
// AuthService is the business logic layer for authentication. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt),
//	                     revocation.List (Redis), mail.Sender (SMTP)
//
// WHAT THIS LAYER DOES NOT DO:
//   - It does NOT set or read cookies (the handler does, via auth.CookieWriter)
//   - It does NOT know about HTTP status codes; it returns apperror values
//   - It is NOT tied to Chi or any routing framework
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/danigit7/E-commerce/internal/apperror"
	"github.com/danigit7/E-commerce/internal/auth"
	"github.com/danigit7/E-commerce/internal/mail"
	"github.com/danigit7/E-commerce/internal/model"
	"github.com/danigit7/E-commerce/internal/repository"
	"github.com/danigit7/E-commerce/internal/revocation"
)

// AuthDeps lists AuthService's collaborators. Revoked and Mailer are
// optional: nil means "no revocation list" and "mail disabled".
type AuthDeps struct {
	Users     repository.UserRepository
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Revoked   revocation.List
	Mailer    mail.Sender
	// ClientURL is the storefront frontend origin, used to build reset links.
	ClientURL string
	Logger    *slog.Logger
}

// AuthService handles the authentication business logic.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	revoked   revocation.List
	mailer    mail.Sender
	clientURL string
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuthService creates an AuthService. Call this in server.go when wiring
// the dependency graph.
func NewAuthService(deps AuthDeps) *AuthService {
	s := &AuthService{
		users:     deps.Users,
		tokens:    deps.Tokens,
		passwords: deps.Passwords,
		revoked:   deps.Revoked,
		mailer:    deps.Mailer,
		clientURL: strings.TrimRight(deps.ClientURL, "/"),
		logger:    deps.Logger,
		now:       time.Now,
	}
	if s.revoked == nil {
		s.revoked = revocation.Noop{}
	}
	if s.mailer == nil {
		s.mailer = mail.Disabled{}
	}
	return s
}

// AuthResult is returned by the operations that log a user in. The handler
// puts AccessToken in the body and RefreshToken in the cookie.
type AuthResult struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

// TokenIssueError reports that the account checks passed but the JWTs could
// not be signed. The OAuth callback uses it to pick its redirect reason.
type TokenIssueError struct {
	UserID string
	Err    error
}

func (e *TokenIssueError) Error() string {
	return fmt.Sprintf("service/auth: issuing tokens for %s: %v", e.UserID, e.Err)
}

func (e *TokenIssueError) Unwrap() error { return e.Err }

// issue signs both tokens for user.
func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	access, err := s.tokens.GenerateAccess(user.ID)
	if err != nil {
		return nil, &TokenIssueError{UserID: user.ID, Err: err}
	}
	refresh, err := s.tokens.GenerateRefresh(user.ID)
	if err != nil {
		return nil, &TokenIssueError{UserID: user.ID, Err: err}
	}
	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Register validates the input, creates a local account and logs it in.
//
// The password is hashed HERE, before the store sees it. There is no
// "check then insert": the store's unique index decides races, and a
// duplicate comes back as apperror.DuplicateIdentity.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	email, err = validateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return s.issue(user)
}

// Login checks credentials.
//
// ORDER OF CHECKS:
//  1. unknown email           → InvalidCredentials
//  2. account deactivated     → AccountDeactivated (before the password, so a
//                               deactivated user learns why even with a typo)
//  3. no local password       → InvalidCredentials (Google-only account)
//  4. password mismatch       → InvalidCredentials
//
// Unknown email and wrong password return the same error so the response
// does not reveal which emails are registered.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "Password is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: loading user for login: %w", err)
	}

	if !user.IsActive {
		return nil, apperror.AccountDeactivated()
	}
	if !user.HasPassword() {
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unusable", slog.String("userID", user.ID), slog.String("error", err.Error()))
		}
		return nil, apperror.InvalidCredentials()
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// Refresh trades a valid refresh token for a new access token. The refresh
// token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperror.NoToken("No refresh token provided")
	}

	invalid := apperror.TokenInvalid("Invalid refresh token")

	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return "", invalid
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", fmt.Errorf("service/auth: checking revocation: %w", err)
	}
	if revoked {
		return "", invalid
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", invalid
		}
		return "", fmt.Errorf("service/auth: loading user for refresh: %w", err)
	}
	if !user.IsActive {
		return "", invalid
	}

	access, err := s.tokens.GenerateAccess(user.ID)
	if err != nil {
		return "", fmt.Errorf("service/auth: generating access token: %w", err)
	}
	return access, nil
}

// Logout revokes the presented refresh token when a revocation list is
// configured. An absent or already invalid token has nothing to revoke, and a
// failing list is logged rather than failing the logout: the handler clears
// the cookie either way.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) {
	if refreshToken == "" {
		return
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return
	}
	if claims.UserID != userID {
		// Someone else's refresh cookie; not ours to revoke.
		return
	}

	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt); err != nil {
		s.logger.Warn("could not revoke refresh token",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("user logged out", slog.String("userID", userID))
}

// Me returns a fresh copy of the user from the store.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.NoToken("Not authorized, no token")
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// ForgotPassword starts a password reset.
//
// RESET TOKEN LIFECYCLE:
//  1. A random token is generated; only its sha256 digest and an expiry one
//     hour out are saved on the user (replacing any earlier reset).
//  2. The raw token is emailed as CLIENT_URL/reset-password/<token>.
//  3. If the email cannot be sent, the digest and expiry are cleared again,
//     so no usable token exists that the user never received.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email, err := validateEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFoundMessage("User not found")
		}
		return fmt.Errorf("service/auth: loading user for reset: %w", err)
	}

	raw, hash, err := auth.NewResetToken()
	if err != nil {
		return err
	}
	expiry := s.now().Add(auth.ResetTokenTTL)
	user.ResetTokenHash = hash
	user.ResetTokenExpiry = &expiry

	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("service/auth: saving reset token: %w", err)
	}

	resetURL := s.clientURL + "/reset-password/" + raw
	if err := s.mailer.SendPasswordReset(ctx, user.Email, resetURL); err != nil {
		s.logger.Error("password reset email failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)

		// Roll back. A detached context: the request context may be the
		// very thing that expired.
		user.ClearResetToken()
		rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rbErr := s.users.Save(rollbackCtx, user); rbErr != nil {
			s.logger.Error("rolling back reset token failed",
				slog.String("userID", user.ID),
				slog.String("error", rbErr.Error()),
			)
		}
		return apperror.Internal("Email could not be sent")
	}

	s.logger.Info("password reset requested", slog.String("userID", user.ID))
	return nil
}

// ResetPassword completes a reset. The token must match a stored digest whose
// expiry is still in the future; on success the new password is hashed and
// the reset fields are cleared, so the token works exactly once.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if rawToken == "" {
		return apperror.InvalidOrExpiredToken()
	}

	user, err := s.users.GetByResetTokenHash(ctx, auth.HashResetToken(rawToken), s.now())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrInvalidOrExpiredToken) {
			return apperror.InvalidOrExpiredToken()
		}
		return fmt.Errorf("service/auth: looking up reset token: %w", err)
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("service/auth: hashing password: %w", err)
	}
	user.PasswordHash = hash
	user.ClearResetToken()

	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("service/auth: saving new password: %w", err)
	}

	s.logger.Info("password reset completed", slog.String("userID", user.ID))
	return nil
}

// LoginWithGoogle resolves a Google profile to a local account and logs it in.
//
// RESOLUTION ORDER:
//  1. An account already bridged to this Google id.
//  2. An account with the same email. It gets linked (GoogleID set), but only
//     when Google says the email is verified; otherwise whoever controls an
//     unverified Google address could take over the local account.
//  3. Otherwise a new bridged account with no password.
func (s *AuthService) LoginWithGoogle(ctx context.Context, g *auth.GoogleUser) (*AuthResult, error) {
	if g == nil || g.ID == "" {
		return nil, errors.New("service/auth: Google profile must have a subject")
	}

	user, err := s.users.GetByGoogleID(ctx, g.ID)
	switch {
	case err == nil:
		// already bridged
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.linkOrCreateGoogleUser(ctx, g)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service/auth: loading user by Google id: %w", err)
	}

	if !user.IsActive {
		return nil, apperror.AccountDeactivated()
	}

	s.logger.Info("user authenticated via Google", slog.String("userID", user.ID))
	return s.issue(user)
}

func (s *AuthService) linkOrCreateGoogleUser(ctx context.Context, g *auth.GoogleUser) (*model.User, error) {
	if !g.EmailVerified {
		return nil, apperror.Forbidden("Google account email is not verified")
	}

	existing, err := s.users.GetByEmail(ctx, g.Email)
	switch {
	case err == nil:
		existing.GoogleID = g.ID
		if existing.Avatar == "" {
			existing.Avatar = g.Picture
		}
		if err := s.users.Save(ctx, existing); err != nil {
			return nil, fmt.Errorf("service/auth: linking Google id: %w", err)
		}
		s.logger.Info("linked Google identity to existing account", slog.String("userID", existing.ID))
		return existing, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: loading user by email: %w", err)
	}

	name := strings.TrimSpace(g.Name)
	if name == "" {
		name, _, _ = strings.Cut(g.Email, "@")
	}
	user := &model.User{
		Name:     name,
		Email:    g.Email,
		GoogleID: g.ID,
		Avatar:   g.Picture,
		Role:     model.RoleUser,
		IsActive: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating Google user: %w", err)
	}
	s.logger.Info("user registered via Google", slog.String("userID", user.ID))
	return user, nil
}
