package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// LifecycleTokenTTL is how long a setup or reset token stays valid.
const LifecycleTokenTTL = 24 * time.Hour

// NewLifecycleToken returns a fresh random token (32 bytes, 64 hex
// characters) and its expiry. The plain value goes to the delivery
// channel; only the hash is stored.
func NewLifecycleToken() (string, time.Time, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, err
	}
	return hex.EncodeToString(buf), time.Now().UTC().Add(LifecycleTokenTTL), nil
}

// HashLifecycleToken returns the SHA-256 hex digest of a plain token.
// Storing only the hash keeps a leaked database from yielding usable
// setup tokens.
func HashLifecycleToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
