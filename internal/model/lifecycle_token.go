package model

import "time"

// Lifecycle token kinds. A setup token is issued when an administrator
// creates an account; a reset token when an administrator initiates a
// password reset.
const (
	TokenKindSetup = "setup"
	TokenKindReset = "reset"
)

// LifecycleToken models an entry in the `lifecycle_tokens` table.
// The plain token is handed to the delivery channel exactly once at
// issuance; only its SHA-256 hash is stored.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  Kind      – "setup" or "reset".
//  ExpiresAt – expiration timestamp (issuance + 24h).
//  UsedAt    – when the token was consumed (null while unused).
//  IssuedBy  – admin who initiated a reset; null for setup at creation.
//  CreatedAt – timestamp of creation.
type LifecycleToken struct {
	ID        uint64     // lifecycle_tokens.id
	UserID    string     // lifecycle_tokens.user_id
	TokenHash string     // lifecycle_tokens.token_hash
	Kind      string     // lifecycle_tokens.kind
	ExpiresAt time.Time  // lifecycle_tokens.expires_at
	UsedAt    *time.Time // lifecycle_tokens.used_at (nullable)
	IssuedBy  *string    // lifecycle_tokens.issued_by (nullable)
	CreatedAt time.Time  // lifecycle_tokens.created_at
}
