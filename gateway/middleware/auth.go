// Package middleware carries the HTTP cross-cutting concerns: bearer
// authentication and per-client rate limiting.
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"darkgrid/core/models"
)

type ctxKey int

const playerContextKey ctxKey = iota

// HashToken derives the stored lookup hash for a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Authenticate resolves the bearer token to a player row and stores it on
// the request context. Requests without a valid token get 401.
func Authenticate(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			var player models.Player
			err := db.WithContext(r.Context()).
				First(&player, "token_hash = ?", HashToken(token)).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				http.Error(w, "unknown bearer token", http.StatusUnauthorized)
				return
			}
			if err != nil {
				http.Error(w, "authentication unavailable", http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), playerContextKey, &player)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PlayerFrom returns the authenticated player stored by Authenticate.
func PlayerFrom(ctx context.Context) (*models.Player, bool) {
	player, ok := ctx.Value(playerContextKey).(*models.Player)
	return player, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
