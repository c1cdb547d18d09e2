package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/intellitest/server/internal/auth"
	"github.com/intellitest/server/internal/model"
	"github.com/intellitest/server/internal/repo"
)

type contextKey string

const userKey contextKey = "user"

// AuthMiddleware validates Bearer access tokens, loads the user, and
// attaches it to the request context
func AuthMiddleware(jwtService *auth.JWTService, userRepo repo.UserRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondUnauthorized(w, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondUnauthorized(w, "missing token")
				return
			}

			claims, err := jwtService.VerifyAccessToken(tokenString)
			if err != nil {
				respondUnauthorized(w, "invalid or expired token")
				return
			}

			userID, err := claims.UserID()
			if err != nil {
				respondUnauthorized(w, "invalid token subject")
				return
			}

			user, err := userRepo.GetByID(r.Context(), userID)
			if err != nil {
				respondUnauthorized(w, "unknown user")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser retrieves the authenticated user from the request context
func GetUser(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(userKey).(model.User)
	return user, ok
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
