package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/amirkhv/member-gate/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,role,is_active,password_setup_required,created_at,updated_at"

// Create inserts a user row. The password hash may be empty: accounts
// start without a usable password until a setup token is consumed.
func (r *UserRepo) Create(ctx context.Context, u model.User) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, role, is_active, password_setup_required) VALUES (?,?,?,?,?,?)",
		u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash, u.Role, u.IsActive, u.PasswordSetupRequired)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrEmailExists
		}
		return err
	}
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// List returns all users, newest first.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive,
			&u.PasswordSetupRequired, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateProfile persists email, role and is_active for an existing user.
func (r *UserRepo) UpdateProfile(ctx context.Context, u model.User) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET email=?, role=?, is_active=?, updated_at=NOW() WHERE id=?",
		strings.ToLower(strings.TrimSpace(u.Email)), u.Role, u.IsActive, u.ID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrEmailExists
		}
		return err
	}
	return requireRow(res)
}

// SetPassword stores a new password hash and the setup-required flag
// in one statement so the two can never diverge.
func (r *UserRepo) SetPassword(ctx context.Context, id, hash string, setupRequired bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, password_setup_required=?, updated_at=NOW() WHERE id=?",
		hash, setupRequired, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetSetupRequired flips the forced-change flag without touching the hash.
func (r *UserRepo) SetSetupRequired(ctx context.Context, id string, required bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_setup_required=?, updated_at=NOW() WHERE id=?",
		required, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Deactivate soft-deletes a user. Rows are never hard-deleted so
// historical audit data keeps a valid reference.
func (r *UserRepo) Deactivate(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=0, updated_at=NOW() WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive,
		&u.PasswordSetupRequired, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
