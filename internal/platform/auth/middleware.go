package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/animus-labs/runledger/internal/platform/httpserver"
)

type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	SkipPrefixes  []string
}

// Wrap authenticates every request outside SkipPrefixes and checks the role
// its method requires. A nil Authenticator lets everything through.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	if m.Authenticator == nil {
		return next
	}
	if m.Logger == nil {
		m.Logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		identity, err := m.Authenticator.Authenticate(r.Context(), r)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, ErrUnauthenticated) {
				reason = "unauthorized"
			}
			m.logDeny(r, http.StatusUnauthorized, reason, "", err)
			httpserver.WriteError(w, r, http.StatusUnauthorized, reason)
			return
		}

		required := RequiredRoleForRequest(r)
		if !HasAtLeast(identity.Roles, required) {
			m.logDeny(r, http.StatusForbidden, "forbidden", identity.Subject, errors.New("requires role "+required))
			httpserver.WriteError(w, r, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

func (m Middleware) logDeny(r *http.Request, status int, reason, subject string, err error) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	m.Logger.Warn("request denied",
		"request_id", requestID,
		"status", status,
		"reason", reason,
		"method", r.Method,
		"path", r.URL.Path,
		"subject", subject,
		"remote_addr", r.RemoteAddr,
		"error", err.Error(),
	)
}
