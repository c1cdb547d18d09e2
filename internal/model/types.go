package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account
type User struct {
	ID               uuid.UUID
	Email            string
	FullName         string
	PasswordHash     string
	IsEmailConfirmed bool
	CreatedAt        time.Time
}

// VerificationCode is a one-time 6-digit email confirmation code.
// More than one may exist per user; lookups always take the most
// recently created.
type VerificationCode struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// RefreshToken is the server-side record of an issued refresh token,
// keyed by the jti embedded in the signed token. At most one valid
// record exists per user at any time.
type RefreshToken struct {
	ID        uuid.UUID // jti
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
}

// TokenPair is the result of a successful session issuance
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // access token TTL in seconds
}
