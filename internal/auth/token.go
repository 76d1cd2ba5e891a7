package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/amirkhv/member-gate/internal/model"
)

// Token purposes. Every verifier checks the purpose before trusting
// any other claim, so an access token can never be replayed as a
// refresh token or vice versa.
const (
	PurposeAccess  = "access"
	PurposeRefresh = "refresh"
)

// Claims is the decoded, verified payload of a session token. Role is
// a snapshot taken at issuance; a role change becomes visible only
// when the user re-authenticates or refreshes.
type Claims struct {
	Role       string `json:"role"`
	Purpose    string `json:"purpose"`
	SetupScope bool   `json:"setup_scope,omitempty"` // restricts the token to the change-password operation
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c Claims) UserID() string { return c.Subject }

// TokenIssuer signs and verifies session tokens. Issuer and Audience
// pin tokens to one deployment so a token minted by a staging install
// never validates against production.
type TokenIssuer struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// IssueAccessToken signs a short-lived access token for the user.
// setupScope marks tokens issued while a password change is still
// mandated; middleware rejects them everywhere but the change-password
// route.
func (ti *TokenIssuer) IssueAccessToken(u model.User, setupScope bool) (string, time.Time, error) {
	return ti.issue(u, PurposeAccess, setupScope, ti.AccessTTL)
}

// IssueRefreshToken signs a longer-lived refresh token.
func (ti *TokenIssuer) IssueRefreshToken(u model.User) (string, time.Time, error) {
	return ti.issue(u, PurposeRefresh, false, ti.RefreshTTL)
}

func (ti *TokenIssuer) issue(u model.User, purpose string, setupScope bool, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role:       u.Role,
		Purpose:    purpose,
		SetupScope: setupScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    ti.Issuer,
			Audience:  jwt.ClaimStrings{ti.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(), // jti, reserved for a future revocation list
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses and validates a token and checks that its purpose
// matches the expected use. All failure modes collapse to
// ErrUnauthorized; the underlying reason is wrapped for logging only.
func (ti *TokenIssuer) Verify(raw, purpose string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return ti.Secret, nil
	},
		jwt.WithIssuer(ti.Issuer),
		jwt.WithAudience(ti.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Purpose != purpose {
		return Claims{}, fmt.Errorf("%w: unexpected token purpose", ErrUnauthorized)
	}
	return claims, nil
}
