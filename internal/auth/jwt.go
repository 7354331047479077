// Package auth holds the storefront's credential primitives: JWT issuing and
// validation, password hashing, reset tokens, the refresh cookie, the Google
// OAuth bridge and the bearer/admin middleware.
//
// TOKEN MODEL:
//
//	access token:  15 min, returned in the JSON body, sent back by the client
//	                as "Authorization: Bearer <token>"
//	refresh token: 7 days, only ever travels in the HttpOnly "refreshToken"
//	                cookie, used by POST /api/auth/refresh to mint a new
//	                access token
//
// The two kinds are signed with DIFFERENT secrets and carry a "typ" claim.
// Either is enough on its own to stop a refresh token being used as a bearer
// token (or the reverse); together they survive a misconfiguration where
// both secrets end up equal.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"userID","jti":"…","typ":"access","exp":…}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "storefront"

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenKind distinguishes access from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// ErrTokenExpired is wrapped by Validate* when the token is past its expiry.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenConfig configures a TokenService. Zero TTLs take the defaults.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenService handles JWT creation and validation for both token kinds.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenService validates the secrets and returns a TokenService.
// Generate secrets with e.g. `openssl rand -hex 32`.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.AccessSecret) < 16 || len(cfg.RefreshSecret) < 16 {
		return nil, errors.New("auth: JWT secrets must be at least 16 characters")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}, nil
}

// RefreshTTL is the refresh token lifetime, which is also the cookie max-age.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Claims is what a validated token tells the caller.
type Claims struct {
	UserID    string
	ID        string // jti, used by the revocation list
	Kind      TokenKind
	ExpiresAt time.Time
}

// claims is the JWT payload. RegisteredClaims carries sub, jti, iss, iat and
// exp; Type is our own "typ" claim.
type claims struct {
	jwt.RegisteredClaims
	Type TokenKind `json:"typ"`
}

// GenerateAccess signs a short-lived access token for userID.
func (s *TokenService) GenerateAccess(userID string) (string, error) {
	return s.generate(KindAccess, userID, s.accessTTL)
}

// GenerateRefresh signs a long-lived refresh token for userID.
func (s *TokenService) GenerateRefresh(userID string) (string, error) {
	return s.generate(KindRefresh, userID, s.refreshTTL)
}

// ValidateAccess verifies an access token and returns its claims.
func (s *TokenService) ValidateAccess(tokenStr string) (*Claims, error) {
	return s.validate(KindAccess, tokenStr)
}

// ValidateRefresh verifies a refresh token and returns its claims.
func (s *TokenService) ValidateRefresh(tokenStr string) (*Claims, error) {
	return s.validate(KindRefresh, tokenStr)
}

func (s *TokenService) secretFor(kind TokenKind) []byte {
	if kind == KindRefresh {
		return s.refreshSecret
	}
	return s.accessSecret
}

// generate builds and signs a token. Every token gets a random jti, so two
// tokens for the same user issued in the same second are still distinct.
func (s *TokenService) generate(kind TokenKind, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		Type: kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secretFor(kind))
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", kind, err)
	}

	return signed, nil
}

// validate parses and verifies tokenStr as a token of the given kind.
//
// VALIDATION CHECKS:
//   - Signature is valid under the secret for this kind
//   - Algorithm is HS256 (prevents algorithm confusion attacks, e.g. "none")
//   - Issuer is "storefront"
//   - exp is present and in the future
//   - typ matches the expected kind
//   - sub is non-empty
func (s *TokenService) validate(kind TokenKind, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secretFor(kind), nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	if c.Type != kind {
		return nil, fmt.Errorf("auth: expected %s token, got %q", kind, c.Type)
	}
	if c.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}

	return &Claims{
		UserID:    c.Subject,
		ID:        c.ID,
		Kind:      c.Type,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
