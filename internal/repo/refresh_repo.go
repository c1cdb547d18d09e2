package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/intellitest/server/internal/model"
)

// RefreshRepo defines the interface for the refresh token store.
//
// Replace and Consume are the two critical sections of the session
// lifecycle: Replace enforces the at-most-one-record-per-user invariant
// on issuance, and Consume makes find-and-delete a single atomic
// operation so that concurrent redemptions of the same token resolve to
// at most one winner.
type RefreshRepo interface {
	// Replace deletes all of the user's refresh records and inserts rec,
	// atomically with respect to concurrent Replace/Consume calls.
	Replace(ctx context.Context, rec model.RefreshToken) error
	// FindByID returns the record keyed by jti, or ErrNotFound.
	FindByID(ctx context.Context, jti uuid.UUID) (model.RefreshToken, error)
	// Consume deletes and returns the record keyed by jti. ErrNotFound
	// means the token was already rotated away, logged out, or superseded.
	Consume(ctx context.Context, jti uuid.UUID) (model.RefreshToken, error)
	// Delete removes the record keyed by jti; ErrNotFound if absent.
	Delete(ctx context.Context, jti uuid.UUID) error
}

type refreshRepo struct {
	db *sql.DB
}

// NewRefreshRepo creates a Postgres-backed RefreshRepo
func NewRefreshRepo(db *sql.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

// Replace runs delete-all-then-insert in one transaction. An advisory
// xact lock keyed by the user id serializes concurrent issuance for the
// same user; the lock is released on COMMIT/ROLLBACK.
func (r *refreshRepo) Replace(ctx context.Context, rec model.RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, rec.UserID.String())
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE user_id = $1
	`, rec.UserID)
	if err != nil {
		return fmt.Errorf("delete prior refresh tokens: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, token, user_id, expires_at)
		VALUES ($1, $2, $3, $4)
	`, rec.ID, rec.Token, rec.UserID, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FindByID returns the record keyed by jti
func (r *refreshRepo) FindByID(ctx context.Context, jti uuid.UUID) (model.RefreshToken, error) {
	var rec model.RefreshToken
	var idStr, userIDStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at
		FROM refresh_tokens
		WHERE id = $1
	`, jti).Scan(&idStr, &userIDStr, &rec.Token, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("query refresh token: %w", err)
	}
	rec.ID, _ = uuid.Parse(idStr)
	rec.UserID, _ = uuid.Parse(userIDStr)
	return rec, nil
}

// Consume is a single DELETE ... RETURNING, so only one of two
// concurrent callers can observe the row as present.
func (r *refreshRepo) Consume(ctx context.Context, jti uuid.UUID) (model.RefreshToken, error) {
	var rec model.RefreshToken
	var idStr, userIDStr string
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE id = $1
		RETURNING id, user_id, token, expires_at
	`, jti).Scan(&idStr, &userIDStr, &rec.Token, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("consume refresh token: %w", err)
	}
	rec.ID, _ = uuid.Parse(idStr)
	rec.UserID, _ = uuid.Parse(userIDStr)
	return rec, nil
}

// Delete removes the record keyed by jti
func (r *refreshRepo) Delete(ctx context.Context, jti uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE id = $1
	`, jti)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
