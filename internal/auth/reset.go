package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ResetTokenTTL is how long a password reset link stays valid.
const ResetTokenTTL = time.Hour

// NewResetToken returns a fresh password reset token and the digest to store.
//
// The raw token (32 random bytes, hex encoded) goes into the emailed link and
// nowhere else. The store keeps only HashResetToken(raw), so a leaked
// database cannot be used to reset anyone's password.
func NewResetToken() (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("auth: generating reset token: %w", err)
	}
	raw = hex.EncodeToString(b)
	return raw, HashResetToken(raw), nil
}

// HashResetToken is the lowercase hex sha256 of raw.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
