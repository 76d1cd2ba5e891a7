package model

import "time"

// Roles recognised by the system. Exactly one role per user.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// User represents a staff account record as stored in the `users`
// table. The password hash is opaque to every layer above the
// repository and must never appear in logs or API responses.
//
// Fields:
//  ID                    – UUID primary key of the user.
//  Email                 – unique email address, stored lowercased.
//  PasswordHash          – argon2id encoded hash; empty until setup completes.
//  Role                  – "admin" or "staff".
//  IsActive              – whether the account may authenticate.
//  PasswordSetupRequired – true from creation (or an admin reset) until a
//                          lifecycle token is consumed or the password is
//                          changed by its owner.
//  CreatedAt             – timestamp of creation.
//  UpdatedAt             – timestamp of last update.
type User struct {
	ID                    string    // users.id
	Email                 string    // users.email
	PasswordHash          string    // users.password_hash
	Role                  string    // users.role
	IsActive              bool      // users.is_active
	PasswordSetupRequired bool      // users.password_setup_required
	CreatedAt             time.Time // users.created_at
	UpdatedAt             time.Time // users.updated_at
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
