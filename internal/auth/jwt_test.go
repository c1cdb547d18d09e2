package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return NewJWTService("access-secret", "refresh-secret", 900*time.Second, 14*24*time.Hour)
}

func TestJWT_accessTokenRoundTrip(t *testing.T) {
	svc := newTestJWTService()
	userID := uuid.New()

	token, err := svc.SignAccessToken(userID, "a@x.com")
	require.NoError(t, err)

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Empty(t, claims.ID, "access tokens carry no jti")

	parsed, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestJWT_refreshTokenCarriesJTI(t *testing.T) {
	svc := newTestJWTService()
	jti := uuid.New()

	token, err := svc.SignRefreshToken(uuid.New(), "a@x.com", jti)
	require.NoError(t, err)

	claims, err := svc.VerifyRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, jti.String(), claims.ID)
}

func TestJWT_secretsAreNotInterchangeable(t *testing.T) {
	svc := newTestJWTService()
	userID := uuid.New()

	access, err := svc.SignAccessToken(userID, "a@x.com")
	require.NoError(t, err)
	refresh, err := svc.SignRefreshToken(userID, "a@x.com", uuid.New())
	require.NoError(t, err)

	_, err = svc.VerifyRefreshToken(access)
	assert.Error(t, err, "an access token must never verify as a refresh token")
	_, err = svc.VerifyAccessToken(refresh)
	assert.Error(t, err, "a refresh token must never verify as an access token")
}

func TestJWT_expiredTokenRejected(t *testing.T) {
	svc := NewJWTService("access-secret", "refresh-secret", -time.Minute, -time.Minute)

	token, err := svc.SignAccessToken(uuid.New(), "a@x.com")
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestJWT_tamperedTokenRejected(t *testing.T) {
	svc := newTestJWTService()

	token, err := svc.SignAccessToken(uuid.New(), "a@x.com")
	require.NoError(t, err)

	// Flip a character in the middle of the signature segment. A middle
	// base64url character carries six significant bits, so the decoded
	// signature bytes are guaranteed to change (the final character has
	// padding bits the decoder ignores).
	dot := strings.LastIndexByte(token, '.')
	require.Greater(t, dot, 0)
	i := dot + 1 + (len(token)-dot-1)/2
	flip := byte('A')
	if token[i] == flip {
		flip = 'B'
	}
	tampered := token[:i] + string(flip) + token[i+1:]
	require.NotEqual(t, token, tampered)

	_, err = svc.VerifyAccessToken(tampered)
	assert.Error(t, err)
}
