package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/transport-university/chatbot/backend/internal/model/user"
	"github.com/transport-university/chatbot/backend/pkg/utils"
)

// NotAuthenticated is the message of every 401 answered by this package.
const NotAuthenticated = "Not authenticated"

// Authenticator resolves an access token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (user.User, error)
}

type ctxKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(user.User)
	return u, ok
}

// RequireAuth rejects requests without a valid bearer token. Browsers cannot
// set headers on websocket upgrades, so a token query parameter is accepted
// as well.
func RequireAuth(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				utils.RespondError(w, http.StatusUnauthorized, NotAuthenticated)
				return
			}

			u, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				logger.Debug("token rejected", "path", r.URL.Path, "err", err)
				w.Header().Set("WWW-Authenticate", "Bearer")
				utils.RespondError(w, http.StatusUnauthorized, NotAuthenticated)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, NotAuthenticated)
			return
		}
		if !u.IsAdmin {
			utils.RespondError(w, http.StatusForbidden, "Not enough permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from the Authorization header or the token
// query parameter.
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
