package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tutorhub/server/internal/auth"
	"github.com/tutorhub/server/internal/logutil"
	"github.com/tutorhub/server/internal/model"
)

type contextKey string

const accountKey contextKey = "account"

// AccessTokenCookie is the cookie the access token is read from before the Authorization header.
const AccessTokenCookie = "accessToken"

// Authenticator resolves an access token to an account of the given role.
type Authenticator interface {
	Authenticate(ctx context.Context, role model.Role, accessToken string) (*model.Account, error)
}

// AuthMiddleware validates the access token, loads the account and attaches it to the context.
// Requests for a route group of another role are rejected like any other bad token.
func AuthMiddleware(authenticator Authenticator, role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokens := AccessTokens(r)
			if len(tokens) == 0 {
				respondWithError(w, http.StatusUnauthorized, "unauthorized request")
				return
			}

			var account *model.Account
			var err error
			for _, token := range tokens {
				account, err = authenticator.Authenticate(r.Context(), role, token)
				if !errors.Is(err, auth.ErrUnauthorized) {
					break
				}
			}
			if err != nil {
				if errors.Is(err, auth.ErrUnauthorized) {
					respondWithError(w, http.StatusUnauthorized, "invalid access token")
					return
				}
				logger := logutil.GetOrDefault(r.Context())
				logger.Error().Err(err).Msg("authenticate request")
				respondWithError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			logger := logutil.GetOrDefault(r.Context()).With().Str("account_id", account.ID.String()).Logger()
			ctx := logutil.WithLogger(r.Context(), logger)
			ctx = context.WithValue(ctx, accountKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessTokens returns the candidate access tokens in the order they are tried:
// the cookie first, then the bearer Authorization header. A stale cookie does
// not hide a valid header.
func AccessTokens(r *http.Request) []string {
	var tokens []string
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		tokens = append(tokens, c.Value)
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		if token := strings.TrimSpace(parts[1]); token != "" && (len(tokens) == 0 || tokens[0] != token) {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// GetAccount returns the account attached to the request context (set by AuthMiddleware)
func GetAccount(ctx context.Context) (*model.Account, bool) {
	a, ok := ctx.Value(accountKey).(*model.Account)
	return a, ok && a != nil
}

// respondWithError sends a JSON error envelope
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  statusCode,
		"message": message,
		"success": false,
	})
}
