package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/intellitest/server/internal/auth"
	"github.com/intellitest/server/internal/config"
	"github.com/intellitest/server/internal/db"
	httphandler "github.com/intellitest/server/internal/http"
	"github.com/intellitest/server/internal/http/handlers"
	"github.com/intellitest/server/internal/mail"
	"github.com/intellitest/server/internal/repo"
)

func main() {
	_ = godotenv.Load(".env")

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("DEV_MODE") == "true" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load configuration")
	}

	ctx := context.Background()

	logger.Info().Str("dsn", db.RedactDSN(cfg.DatabaseURL)).Msg("connecting to database")
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	if err := runMigrations(database, logger); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	userRepo := repo.NewUserRepo(database)
	verificationRepo := repo.NewVerificationRepo(database)

	var refreshRepo repo.RefreshRepo
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		refreshRepo = repo.NewRedisRefreshRepo(client)
		logger.Info().Msg("refresh token store: redis")
	} else {
		refreshRepo = repo.NewRefreshRepo(database)
		logger.Info().Msg("refresh token store: postgres")
	}

	var mailer mail.Mailer
	if cfg.DevMode || cfg.SMTP.Host == "" {
		mailer = mail.NewLogMailer(logger)
	} else {
		mailer = mail.NewSMTPMailer(cfg.SMTP, logger)
	}

	jwtService := auth.NewJWTService(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	authService := auth.NewAuthService(userRepo, verificationRepo, refreshRepo, jwtService, hasher, mailer, logger)

	authHandler := handlers.NewAuthHandler(authService, cfg.RefreshTTL, logger)
	router := httphandler.NewRouter(authHandler, jwtService, userRepo)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}

	logger.Info().Msg("server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB, logger zerolog.Logger) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	absDir, _ := filepath.Abs(migrationDir)
	logger.Info().Str("dir", absDir).Msg("running migrations")

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
