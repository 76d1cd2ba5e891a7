package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Memory-hard on purpose; tuned per install via
// HashParams rather than hardcoded call sites.
type HashParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultHashParams matches the work factor the rest of the product
// was calibrated against: 2 passes over 64 MiB, single lane.
func DefaultHashParams() HashParams {
	return HashParams{Time: 2, Memory: 64 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
}

var errMalformedHash = errors.New("malformed password hash")

// HashPassword derives an argon2id hash of plain and returns it in
// PHC string format, salt included.
func HashPassword(plain string, p HashParams) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword re-derives the key with the parameters embedded in
// the encoded hash and compares in constant time.
func VerifyPassword(encoded, plain string) bool {
	p, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

// dummyHash is verified against whenever the looked-up account does
// not exist (or cannot hold a password yet), so a login attempt for
// an unknown email costs the same as one with a wrong password.
var dummyHash = mustDummyHash()

func mustDummyHash() string {
	h, err := HashPassword("dummy-timing-equalizer", DefaultHashParams())
	if err != nil {
		panic(err)
	}
	return h
}

// VerifyDummy burns a full hash computation and always fails.
func VerifyDummy(plain string) bool {
	VerifyPassword(dummyHash, plain)
	return false
}

func decodeHash(encoded string) (HashParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return HashParams{}, nil, nil, errMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return HashParams{}, nil, nil, errMalformedHash
	}
	var p HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return HashParams{}, nil, nil, errMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return HashParams{}, nil, nil, errMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return HashParams{}, nil, nil, errMalformedHash
	}
	return p, salt, key, nil
}
