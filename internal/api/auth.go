package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sswtrack/sswtrack/internal/auth"
)

// Authenticator resolves bearer credentials. *auth.Authenticator
// implements it.
type Authenticator interface {
	Authenticate(token string) (auth.Identity, error)
	Subject(token string) (string, error)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// BearerAuth rejects requests without a valid credential and stores the
// caller's identity in the request context.
func BearerAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(bearerToken(r))
			switch {
			case errors.Is(err, auth.ErrUnknownUser), errors.Is(err, auth.ErrInactive):
				httpError(w, http.StatusForbidden, "permission_error", "%v", err)
				return
			case errors.Is(err, auth.ErrUnauthenticated):
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			case err != nil:
				slog.Error("authenticating request", "error", err)
				httpError(w, http.StatusInternalServerError, "api_error", "internal error")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
