package auth

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intellitest/server/internal/mail"
	"github.com/intellitest/server/internal/model"
	"github.com/intellitest/server/internal/repo"
)

// Input validation errors. These surface as 400s at the HTTP layer and
// are distinct from the Conflict/Unauthorized contract errors.
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrWeakPassword = errors.New("password must be at least 6 characters")
)

const minPasswordLength = 6

const mailSendTimeout = 15 * time.Second

// AuthService orchestrates the credential and session lifecycle:
// register, confirm, login, refresh, logout.
type AuthService struct {
	users  repo.UserRepo
	codes  repo.VerificationRepo
	tokens repo.RefreshRepo
	jwt    *JWTService
	hasher *PasswordHasher
	mailer mail.Mailer
	log    zerolog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	users repo.UserRepo,
	codes repo.VerificationRepo,
	tokens repo.RefreshRepo,
	jwt *JWTService,
	hasher *PasswordHasher,
	mailer mail.Mailer,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		codes:  codes,
		tokens: tokens,
		jwt:    jwt,
		hasher: hasher,
		mailer: mailer,
		log:    log,
	}
}

// Register creates an unconfirmed account, stores a one-time 6-digit
// verification code, and dispatches the confirmation email. The account
// is not usable until confirmed; no tokens are issued here.
//
// Mail delivery is fire-and-forget: a failure is logged but never rolls
// back the created user.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (string, error) {
	if _, err := netmail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return "", ErrConflict
	} else if !errors.Is(err, repo.ErrNotFound) {
		return "", fmt.Errorf("check existing user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", err
	}

	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		fullName = defaultNameFromEmail(email)
	}

	user, err := s.users.Create(ctx, email, fullName, hash)
	if err != nil {
		// Concurrent register on the same email loses the insert race.
		if errors.Is(err, repo.ErrDuplicate) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	code, err := GenerateVerificationCode()
	if err != nil {
		return "", err
	}
	if _, err := s.codes.Create(ctx, user.ID, code, time.Now().Add(CodeTTL)); err != nil {
		return "", fmt.Errorf("store verification code: %w", err)
	}

	go s.sendVerificationMail(user.Email, code)

	s.log.Info().Str("user_id", user.ID.String()).Msg("user registered, verification pending")
	return "verification_sent", nil
}

func (s *AuthService) sendVerificationMail(email, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
	defer cancel()

	body, err := mail.RenderVerification(code)
	if err != nil {
		s.log.Error().Err(err).Msg("render verification mail")
		return
	}
	if err := s.mailer.Send(ctx, email, mail.VerificationSubject, body); err != nil {
		s.log.Error().Err(err).Msg("deliver verification mail")
	}
}

// Confirm activates an account with a one-time verification code and
// issues the first token pair. The matched code is deleted, so a replay
// of the same code fails.
func (s *AuthService) Confirm(ctx context.Context, email, code string) (model.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logDenied("confirm", ErrInvalidCredentials)
			return model.TokenPair{}, ErrInvalidCredentials
		}
		return model.TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	rec, err := s.codes.FindLatestByUserAndCode(ctx, user.ID, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logDenied("confirm", ErrCodeInvalid)
			return model.TokenPair{}, ErrCodeInvalid
		}
		return model.TokenPair{}, fmt.Errorf("find verification code: %w", err)
	}
	if CodeExpired(rec.ExpiresAt, time.Now()) {
		s.logDenied("confirm", ErrCodeExpired)
		return model.TokenPair{}, ErrCodeExpired
	}

	if err := s.users.MarkEmailConfirmed(ctx, user.ID); err != nil {
		return model.TokenPair{}, fmt.Errorf("confirm user: %w", err)
	}
	if err := s.codes.Delete(ctx, rec.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return model.TokenPair{}, fmt.Errorf("delete verification code: %w", err)
	}

	s.log.Info().Str("user_id", user.ID.String()).Msg("email confirmed")
	return s.issueTokenPair(ctx, user.ID, user.Email)
}

// Login authenticates with email and password. Unknown email, wrong
// password and unconfirmed account all collapse to the same error, so
// an unauthenticated caller cannot enumerate accounts.
func (s *AuthService) Login(ctx context.Context, email, password string) (model.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logDenied("login", ErrInvalidCredentials)
			return model.TokenPair{}, ErrInvalidCredentials
		}
		return model.TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logDenied("login", ErrInvalidCredentials)
		return model.TokenPair{}, ErrInvalidCredentials
	}
	if !user.IsEmailConfirmed {
		s.logDenied("login", ErrEmailUnconfirmed)
		return model.TokenPair{}, ErrEmailUnconfirmed
	}

	return s.issueTokenPair(ctx, user.ID, user.Email)
}

// Refresh rotates a refresh token: verifies it against the refresh
// secret, atomically consumes its server-side record (the reuse and
// revocation detector), and issues a fresh pair. A token can be
// redeemed at most once; the second of two concurrent redemptions
// observes the record as absent and fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.jwt.VerifyRefreshToken(refreshToken)
	if err != nil {
		s.logDenied("refresh", fmt.Errorf("%w: %v", ErrTokenInvalid, err))
		return model.TokenPair{}, ErrTokenInvalid
	}
	userID, jti, err := refreshIdentity(claims)
	if err != nil {
		s.logDenied("refresh", err)
		return model.TokenPair{}, ErrTokenInvalid
	}

	rec, err := s.tokens.Consume(ctx, jti)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logDenied("refresh", ErrTokenRevoked)
			return model.TokenPair{}, ErrTokenRevoked
		}
		return model.TokenPair{}, fmt.Errorf("consume refresh token: %w", err)
	}
	if time.Now().After(rec.ExpiresAt) {
		s.logDenied("refresh", ErrTokenExpired)
		return model.TokenPair{}, ErrTokenExpired
	}

	// The verified token's subject is authoritative; the user record is
	// not re-fetched on refresh.
	return s.issueTokenPair(ctx, userID, claims.Email)
}

// Logout revokes the session behind a refresh token. Logging out twice
// with the same token fails the second time: the store delete signals
// absence.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.jwt.VerifyRefreshToken(refreshToken)
	if err != nil {
		s.logDenied("logout", fmt.Errorf("%w: %v", ErrTokenInvalid, err))
		return ErrTokenInvalid
	}
	_, jti, err := refreshIdentity(claims)
	if err != nil {
		s.logDenied("logout", err)
		return ErrTokenInvalid
	}

	if err := s.tokens.Delete(ctx, jti); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logDenied("logout", ErrTokenRevoked)
			return ErrTokenRevoked
		}
		return fmt.Errorf("delete refresh token: %w", err)
	}

	s.log.Info().Str("user_id", claims.Subject).Msg("logged out")
	return nil
}

// issueTokenPair is the single choke point for granting a session.
// Every path that enters has-session state passes through here: it
// signs both tokens, then atomically replaces all of the user's refresh
// records with the one new record keyed by jti.
func (s *AuthService) issueTokenPair(ctx context.Context, userID uuid.UUID, email string) (model.TokenPair, error) {
	jti := uuid.New()

	accessToken, err := s.jwt.SignAccessToken(userID, email)
	if err != nil {
		return model.TokenPair{}, err
	}
	refreshToken, err := s.jwt.SignRefreshToken(userID, email, jti)
	if err != nil {
		return model.TokenPair{}, err
	}

	err = s.tokens.Replace(ctx, model.RefreshToken{
		ID:        jti,
		UserID:    userID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(s.jwt.RefreshTTL()),
	})
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwt.AccessTTL().Seconds()),
	}, nil
}

// refreshIdentity extracts the subject id and jti from verified refresh claims
func refreshIdentity(claims *Claims) (uuid.UUID, uuid.UUID, error) {
	userID, err := claims.UserID()
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}
	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: bad jti", ErrTokenInvalid)
	}
	return userID, jti, nil
}

// logDenied records the precise internal cause of an Unauthorized
// outcome; callers only ever see the collapsed error.
func (s *AuthService) logDenied(op string, cause error) {
	s.log.Debug().Str("op", op).Str("reason", cause.Error()).Msg("authentication denied")
}

func defaultNameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return "Anonymous"
}
