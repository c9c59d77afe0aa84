package middleware

import (
	"context"
	"log/slog"
	"net/http"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "atelier_session"

// SessionVerifier validates a signed session token and returns the account
// identity it was issued for.
type SessionVerifier interface {
	Verify(token string) (identity string, ok bool)
}

type contextKeyAccountID struct{}

// ContextKeyAccountID is exported so handler tests can seed authenticated
// requests directly.
var ContextKeyAccountID = contextKeyAccountID{}

// GetAccountID retrieves the authenticated account id from the context.
func GetAccountID(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyAccountID).(string)
	return id
}

// RequireSession authenticates requests via the session cookie (or a Bearer
// token as a fallback for non-browser clients) and stores the account id in
// the context. Unauthenticated requests get 401 with no detail.
func RequireSession(verifier SessionVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				unauthorized(w)
				return
			}

			identity, ok := verifier.Verify(token)
			if !ok {
				logger.Debug("rejected session token",
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyAccountID, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
