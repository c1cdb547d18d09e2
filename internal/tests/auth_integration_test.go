package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellitest/server/internal/auth"
	"github.com/intellitest/server/internal/config"
	"github.com/intellitest/server/internal/db"
	httphandler "github.com/intellitest/server/internal/http"
	"github.com/intellitest/server/internal/http/handlers"
	"github.com/intellitest/server/internal/mail"
	"github.com/intellitest/server/internal/repo"
)

func TestMain(m *testing.M) {
	// Set secrets if unset. DATABASE_URL is deliberately not defaulted;
	// integration tests skip when it is missing.
	if os.Getenv("JWT_ACCESS_SECRET") == "" {
		os.Setenv("JWT_ACCESS_SECRET", "test-access-secret-at-least-32-chars-long")
	}
	if os.Getenv("JWT_REFRESH_SECRET") == "" {
		os.Setenv("JWT_REFRESH_SECRET", "test-refresh-secret-at-least-32-chars-xx")
	}
	os.Exit(m.Run())
}

type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DatabaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that the test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database), "migrations must run successfully")
	require.NoError(t, TruncateAuthTables(ctx, database), "truncate auth tables")

	logger := zerolog.Nop()
	userRepo := repo.NewUserRepo(database)
	verificationRepo := repo.NewVerificationRepo(database)
	refreshRepo := repo.NewRefreshRepo(database)

	jwtService := auth.NewJWTService(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	hasher := auth.NewPasswordHasher(4)
	authService := auth.NewAuthService(userRepo, verificationRepo, refreshRepo, jwtService, hasher, mail.NewLogMailer(logger), logger)
	authHandler := handlers.NewAuthHandler(authService, cfg.RefreshTTL, logger)

	router := httphandler.NewRouter(authHandler, jwtService, userRepo)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database}
}

func (s *testServer) postJSON(t *testing.T, path string, payload interface{}) (*http.Response, []byte) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(s.Server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

// latestCode fetches the newest verification code for an email straight
// from the store (the dev mailer does not deliver anything)
func (s *testServer) latestCode(t *testing.T, email string) string {
	t.Helper()
	var code string
	err := s.DB.QueryRow(`
		SELECT v.code
		FROM email_verifications v
		JOIN users u ON u.id = v.user_id
		WHERE u.email = $1
		ORDER BY v.created_at DESC
		LIMIT 1
	`, email).Scan(&code)
	require.NoError(t, err, "a verification code must exist after register")
	return code
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func TestAuthLifecycle(t *testing.T) {
	s := newTestServer(t)

	// Register.
	resp, body := s.postJSON(t, "/auth/register", map[string]string{
		"email":    "a@x.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "verification_sent")

	// Duplicate register conflicts.
	resp, _ = s.postJSON(t, "/auth/register", map[string]string{
		"email":    "a@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Login before confirmation is unauthorized.
	resp, _ = s.postJSON(t, "/auth/login", map[string]string{
		"email":    "a@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	realCode := s.latestCode(t, "a@x.com")
	wrongCode := "000000"
	if realCode == wrongCode {
		wrongCode = "999999"
	}

	// Wrong code is unauthorized.
	resp, _ = s.postJSON(t, "/auth/confirm", map[string]string{
		"email": "a@x.com",
		"code":  wrongCode,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Right code yields T1.
	resp, body = s.postJSON(t, "/auth/confirm", map[string]string{
		"email": "a@x.com",
		"code":  realCode,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var t1 tokenResponse
	require.NoError(t, json.Unmarshal(body, &t1))
	require.NotEmpty(t, t1.AccessToken)
	require.NotEmpty(t, t1.RefreshToken)
	assert.Equal(t, "bearer", t1.TokenType)

	// Replaying the code is unauthorized.
	resp, _ = s.postJSON(t, "/auth/confirm", map[string]string{
		"email": "a@x.com",
		"code":  realCode,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// T1 refreshes into T2 exactly once.
	resp, body = s.postJSON(t, "/auth/refresh", map[string]string{"refresh_token": t1.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var t2 tokenResponse
	require.NoError(t, json.Unmarshal(body, &t2))
	assert.NotEqual(t, t1.RefreshToken, t2.RefreshToken)

	resp, _ = s.postJSON(t, "/auth/refresh", map[string]string{"refresh_token": t1.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// /me works with the fresh access token.
	req, err := http.NewRequest(http.MethodGet, s.Server.URL+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+t2.AccessToken)
	meResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer meResp.Body.Close()
	assert.Equal(t, http.StatusOK, meResp.StatusCode)

	// Logout T2, then T2 no longer refreshes, second logout fails.
	resp, body = s.postJSON(t, "/auth/logout", map[string]string{"refresh_token": t2.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "true")

	resp, _ = s.postJSON(t, "/auth/refresh", map[string]string{"refresh_token": t2.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.postJSON(t, "/auth/logout", map[string]string{"refresh_token": t2.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNewLoginSupersedesPriorSession(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.postJSON(t, "/auth/register", map[string]string{
		"email":    "b@x.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	code := s.latestCode(t, "b@x.com")
	resp, body := s.postJSON(t, "/auth/confirm", map[string]string{"email": "b@x.com", "code": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var first tokenResponse
	require.NoError(t, json.Unmarshal(body, &first))

	resp, body = s.postJSON(t, "/auth/login", map[string]string{"email": "b@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second tokenResponse
	require.NoError(t, json.Unmarshal(body, &second))

	// The confirm-issued session has been superseded by the login.
	resp, _ = s.postJSON(t, "/auth/refresh", map[string]string{"refresh_token": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.postJSON(t, "/auth/refresh", map[string]string{"refresh_token": second.RefreshToken})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The at-most-one-record invariant holds in the store.
	var n int
	require.NoError(t, s.DB.QueryRow(`
		SELECT count(*) FROM refresh_tokens r JOIN users u ON u.id = r.user_id WHERE u.email = 'b@x.com'
	`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.Server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
