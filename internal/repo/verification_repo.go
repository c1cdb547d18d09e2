package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/intellitest/server/internal/model"
)

// VerificationRepo defines the interface for verification code store operations.
// Several codes may coexist per user; FindLatestByUserAndCode always selects the
// most recently created match.
type VerificationRepo interface {
	Create(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) (uuid.UUID, error)
	FindLatestByUserAndCode(ctx context.Context, userID uuid.UUID, code string) (model.VerificationCode, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type verificationRepo struct {
	db *sql.DB
}

// NewVerificationRepo creates a new VerificationRepo instance
func NewVerificationRepo(db *sql.DB) VerificationRepo {
	return &verificationRepo{db: db}
}

// Create inserts a new verification code
func (r *verificationRepo) Create(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) (uuid.UUID, error) {
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO email_verifications (user_id, code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, userID, code, expiresAt).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert verification code: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse verification ID: %w", err)
	}
	return id, nil
}

// FindLatestByUserAndCode returns the most recently created code record
// matching the user and code, regardless of expiry. Expiry is the caller's
// check so that "expired" stays distinguishable from "no such code".
func (r *verificationRepo) FindLatestByUserAndCode(ctx context.Context, userID uuid.UUID, code string) (model.VerificationCode, error) {
	var rec model.VerificationCode
	var idStr, userIDStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, code, created_at, expires_at
		FROM email_verifications
		WHERE user_id = $1 AND code = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, code).Scan(
		&idStr,
		&userIDStr,
		&rec.Code,
		&rec.CreatedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.VerificationCode{}, ErrNotFound
		}
		return model.VerificationCode{}, fmt.Errorf("query verification code: %w", err)
	}
	rec.ID, _ = uuid.Parse(idStr)
	rec.UserID, _ = uuid.Parse(userIDStr)
	return rec, nil
}

// Delete removes a verification code (single use)
func (r *verificationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM email_verifications WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete verification code: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
