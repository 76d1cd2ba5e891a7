package auth

import (
	"fmt"
	"strings"
	"unicode"
)

// commonPasswords are rejected outright regardless of composition.
var commonPasswords = map[string]struct{}{
	"password": {}, "password123": {}, "123456": {}, "12345678": {},
	"qwerty": {}, "abc123": {}, "monkey": {}, "letmein": {},
	"trustno1": {}, "dragon": {}, "baseball": {}, "iloveyou": {},
	"master": {}, "sunshine": {}, "ashley": {}, "bailey": {},
	"passw0rd": {}, "shadow": {}, "123123": {}, "654321": {},
	"superman": {}, "qazwsx": {}, "michael": {}, "football": {},
}

const specialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// CheckPasswordStrength validates a candidate password against the
// install-wide policy: at least 8 characters, all four character
// classes, not a known-common password, and no ascending or
// descending run of three sequential characters ("123", "cba").
// Returns nil when acceptable, otherwise an error wrapping
// ErrWeakPassword with the reason.
func CheckPasswordStrength(password string) error {
	if len(password) < 8 {
		return weak("must be at least 8 characters long")
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return weak("too common, choose a unique password")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		return weak("must contain an uppercase letter")
	}
	if !hasLower {
		return weak("must contain a lowercase letter")
	}
	if !hasDigit {
		return weak("must contain a digit")
	}
	if !hasSpecial {
		return weak("must contain a special character")
	}
	if hasSequentialRun(strings.ToLower(password)) {
		return weak("must not contain sequential characters like '123' or 'abc'")
	}
	return nil
}

func weak(reason string) error {
	return fmt.Errorf("%w: %s", ErrWeakPassword, reason)
}

// hasSequentialRun reports whether s contains three consecutive
// alphanumeric characters in ascending or descending order.
func hasSequentialRun(s string) bool {
	rs := []rune(s)
	for i := 0; i+2 < len(rs); i++ {
		a, b, c := rs[i], rs[i+1], rs[i+2]
		if !isAlnum(a) || !isAlnum(b) || !isAlnum(c) {
			continue
		}
		if (b == a+1 && c == b+1) || (b == a-1 && c == b-1) {
			return true
		}
	}
	return false
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
