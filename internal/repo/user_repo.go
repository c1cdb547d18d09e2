package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/intellitest/server/internal/model"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint is violated
var ErrDuplicate = errors.New("duplicate record")

// UserRepo defines the interface for credential store operations
type UserRepo interface {
	Create(ctx context.Context, email, fullName, passwordHash string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	MarkEmailConfirmed(ctx context.Context, id uuid.UUID) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

// Create inserts a new unconfirmed user
func (r *userRepo) Create(ctx context.Context, email, fullName, passwordHash string) (model.User, error) {
	var user model.User
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, full_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, full_name, password_hash, is_email_confirmed, created_at
	`, email, fullName, passwordHash).Scan(
		&idStr,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.IsEmailConfirmed,
		&user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-sensitive, as stored)
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.get(ctx, `
		SELECT id, email, full_name, password_hash, is_email_confirmed, created_at
		FROM users
		WHERE email = $1
	`, email)
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.get(ctx, `
		SELECT id, email, full_name, password_hash, is_email_confirmed, created_at
		FROM users
		WHERE id = $1
	`, id)
}

func (r *userRepo) get(ctx context.Context, query string, arg interface{}) (model.User, error) {
	var user model.User
	var idStr string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&idStr,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.IsEmailConfirmed,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	return user, nil
}

// MarkEmailConfirmed sets is_email_confirmed=true for the user
func (r *userRepo) MarkEmailConfirmed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_email_confirmed = true WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("confirm user email: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
