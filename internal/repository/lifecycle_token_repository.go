package repository

import (
	"context"
	"database/sql"

	"github.com/amirkhv/member-gate/internal/model"
)

// LifecycleTokenRepo persists single-use setup/reset tokens (single
// 'token_hash' column; the plain token never reaches storage).
type LifecycleTokenRepo struct{ DB *sql.DB }

func NewLifecycleTokenRepo(db *sql.DB) *LifecycleTokenRepo { return &LifecycleTokenRepo{DB: db} }

// Store inserts a lifecycle token row.
func (r *LifecycleTokenRepo) Store(ctx context.Context, t model.LifecycleToken) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO lifecycle_tokens (user_id, token_hash, kind, expires_at, issued_by) VALUES (?,?,?,?,?)",
		t.UserID, t.TokenHash, t.Kind, t.ExpiresAt, t.IssuedBy)
	return err
}

// Lookup returns the token row for a hash regardless of state. The
// caller decides whether it is still usable.
func (r *LifecycleTokenRepo) Lookup(ctx context.Context, tokenHash string) (model.LifecycleToken, error) {
	var t model.LifecycleToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, kind, expires_at, used_at, issued_by, created_at FROM lifecycle_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Kind, &t.ExpiresAt, &t.UsedAt, &t.IssuedBy, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// Consume marks an unused, unexpired token as used and installs the
// new password hash in a single transaction. The conditional UPDATE is
// the single-use guarantee: under concurrent submission of the same
// token exactly one caller sees consumed=true. Claiming and installing
// commit together, so a burned token always leaves a working
// credential behind.
func (r *LifecycleTokenRepo) Consume(ctx context.Context, tokenHash, userID, passwordHash string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE lifecycle_tokens SET used_at=NOW() WHERE token_hash=? AND used_at IS NULL AND expires_at > NOW()",
		tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET password_hash=?, password_setup_required=FALSE, updated_at=NOW() WHERE id=?",
		passwordHash, userID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// InvalidateOutstanding marks all of a user's unused tokens as used,
// so issuing a fresh reset token leaves no older token valid.
func (r *LifecycleTokenRepo) InvalidateOutstanding(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE lifecycle_tokens SET used_at=NOW() WHERE user_id=? AND used_at IS NULL",
		userID)
	return err
}
