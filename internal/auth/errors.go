package auth

import (
	"errors"
	"fmt"
)

// Contract-surface errors. Every authentication failure callers can
// observe collapses to ErrUnauthorized; register on a taken email is
// the only ErrConflict. Infrastructure failures (store, SMTP) are
// never mapped to either.
var (
	ErrConflict     = errors.New("email already registered")
	ErrUnauthorized = errors.New("unauthorized")
)

// Internal variants stay distinguishable for logging but all satisfy
// errors.Is(err, ErrUnauthorized).
var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrEmailUnconfirmed   = fmt.Errorf("%w: email not confirmed", ErrUnauthorized)
	ErrCodeInvalid        = fmt.Errorf("%w: verification code invalid", ErrUnauthorized)
	ErrCodeExpired        = fmt.Errorf("%w: verification code expired", ErrUnauthorized)
	ErrTokenInvalid       = fmt.Errorf("%w: refresh token invalid", ErrUnauthorized)
	ErrTokenExpired       = fmt.Errorf("%w: refresh token expired", ErrUnauthorized)
	ErrTokenRevoked       = fmt.Errorf("%w: refresh token revoked or already used", ErrUnauthorized)
)
