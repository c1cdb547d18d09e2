package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	// CodeLength is the number of digits in a verification code
	CodeLength = 6
	// CodeTTL is how long a verification code stays valid
	CodeTTL = 15 * time.Minute
)

var codeSpace = big.NewInt(1000000)

// GenerateVerificationCode returns a uniformly random 6-digit code as
// text, leading zeros preserved ("042137" is a valid code).
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// CodeExpired reports whether a code is past its expiry. The check is
// strict: a code expiring at exactly now is still valid.
func CodeExpired(expiresAt, now time.Time) bool {
	return now.After(expiresAt)
}
