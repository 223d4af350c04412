package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/trackhive/user-services/internal/authn"
	"github.com/trackhive/user-services/internal/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string
type tokenKey string

const ClaimsKey contextKey = "claims"
const TokenKey tokenKey = "token"

// SessionMiddleware validates the bearer token and adds session claims to
// the request context. Requests without an Authorization header pass
// through anonymously: parts of the read path are open to logged-out
// callers, and whoami can still verify an unrecognized token against the
// external identity service, so an unusable token is not rejected here.
func SessionMiddleware(auth *authn.Authenticator, sessions session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				logger := zerolog.Ctx(r.Context()).With().
					Str("handler", "SessionMiddleware").Logger()

				// Get the Authorization header
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					next.ServeHTTP(w, r)
					return
				}

				// Check the Authorization header format
				token := strings.TrimPrefix(authHeader, "Bearer ")
				if token == authHeader {
					logger.Error().Msg("invalid token format")
					http.Error(w, "invalid token format", http.StatusUnauthorized)
					return
				}

				// Keep the raw token around for the identity-verifier path
				ctx := context.WithValue(r.Context(), TokenKey, token)

				// Attach claims only when the token maps to a live session
				claims, err := auth.ParseClaims(token)
				if err == nil {
					sess, serr := sessions.Get(ctx, claims.SessionID)
					if serr != nil {
						logger.Error().Err(serr).Msg("session store lookup failed")
						http.Error(w, "session store unavailable", http.StatusInternalServerError)
						return
					}
					if sess != nil && sess.UserID == claims.UserID {
						ctx = context.WithValue(ctx, ClaimsKey, claims)
					} else {
						logger.Debug().Msg("bearer token has no active session")
					}
				} else {
					logger.Debug().Msg("bearer token is not a session token")
				}

				next.ServeHTTP(w, r.WithContext(ctx))
			},
		)
	}
}

// WithLogger adds a logger to the context and logs request information.
func WithLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			logger := log.With().
				Str("host", r.Host).
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Str("remote_addr", r.RemoteAddr).
				Time("timestamp", time.Now()).
				Logger()

			// Add the logger to the context
			ctx := logger.WithContext(r.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		},
	)
}
