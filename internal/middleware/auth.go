package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dataground/dataground-go/internal/crypto"
	"github.com/dataground/dataground-go/internal/model"
)

type contextKey string

const userIDKey contextKey = "userID"

// authFailedMsg is the single body returned for every authentication
// failure. Missing header, bad scheme, forged/expired token and unknown user
// must stay indistinguishable to the caller.
const authFailedMsg = "not authenticated"

// UserResolver resolves a decoded user ID to a stored user.
// *repository.UserRepository satisfies it.
type UserResolver interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// Auth returns middleware that validates a Bearer token from the
// Authorization header and resolves it to a stored user. The resolved user ID
// placed in the request context is the only identity downstream handlers may
// use for ownership checks.
func Auth(secret string, users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found || token == "" {
				writeJSONError(w, http.StatusUnauthorized, authFailedMsg)
				return
			}

			claims, err := crypto.ValidateToken(token, secret)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, authFailedMsg)
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, authFailedMsg)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
