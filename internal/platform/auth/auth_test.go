package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHasAtLeast(t *testing.T) {
	if !HasAtLeast([]string{"viewer"}, RoleViewer) {
		t.Fatalf("viewer should satisfy viewer")
	}
	if HasAtLeast([]string{"viewer"}, RoleOperator) {
		t.Fatalf("viewer should not satisfy operator")
	}
	if !HasAtLeast([]string{"admin"}, RoleOperator) {
		t.Fatalf("admin should satisfy operator")
	}
	if HasAtLeast([]string{"operator"}, "root") {
		t.Fatalf("unknown required role should never be satisfied")
	}
}

func TestRequiredRoleForRequest(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    RoleViewer,
		http.MethodHead:   RoleViewer,
		http.MethodPost:   RoleOperator,
		http.MethodDelete: RoleAdmin,
	}
	for method, want := range tests {
		req := httptest.NewRequest(method, "/runs", nil)
		if got := RequiredRoleForRequest(req); got != want {
			t.Fatalf("RequiredRoleForRequest(%s)=%q, want %q", method, got, want)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RUNLEDGER_AUTH_MODE", "token")
	t.Setenv("RUNLEDGER_AUTH_TOKENS", "ops:operator:s3cret, dash:viewer:peek")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if got := cfg.Tokens["s3cret"]; got.Subject != "ops" || got.Roles[0] != RoleOperator {
		t.Fatalf("unexpected identity %+v", got)
	}
	if cfg.Authenticator() == nil {
		t.Fatalf("expected token authenticator")
	}
}

func TestConfigFromEnvErrors(t *testing.T) {
	tests := []struct {
		mode, tokens, want string
	}{
		{mode: "token", tokens: "", want: "must be non-empty"},
		{mode: "token", tokens: "ops:root:x", want: "unknown role"},
		{mode: "token", tokens: "ops:viewer", want: "malformed entry"},
		{mode: "oidc", tokens: "", want: "RUNLEDGER_AUTH_MODE"},
	}
	for _, tc := range tests {
		t.Setenv("RUNLEDGER_AUTH_MODE", tc.mode)
		t.Setenv("RUNLEDGER_AUTH_TOKENS", tc.tokens)
		if _, err := ConfigFromEnv(); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("mode=%s tokens=%q: expected %q, got %v", tc.mode, tc.tokens, tc.want, err)
		}
	}
}

func TestMiddleware(t *testing.T) {
	cfg := Config{Mode: ModeToken, Tokens: map[string]Identity{
		"view": {Subject: "dash", Roles: []string{RoleViewer}},
		"ops":  {Subject: "ops", Roles: []string{RoleOperator}},
	}}
	var seen Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Authenticator: cfg.Authenticator(),
		SkipPrefixes:  []string{"/healthz"},
	}.Wrap(next)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{name: "health skips auth", method: http.MethodGet, path: "/healthz", status: http.StatusNoContent},
		{name: "missing token", method: http.MethodGet, path: "/runs", status: http.StatusUnauthorized},
		{name: "unknown token", method: http.MethodGet, path: "/runs", token: "nope", status: http.StatusUnauthorized},
		{name: "viewer reads", method: http.MethodGet, path: "/runs", token: "view", status: http.StatusNoContent},
		{name: "viewer cannot replan", method: http.MethodPost, path: "/runs/x/replan", token: "view", status: http.StatusForbidden},
		{name: "operator replans", method: http.MethodPost, path: "/runs/x/replan", token: "ops", status: http.StatusNoContent},
		{name: "operator cannot delete", method: http.MethodDelete, path: "/runs/x", token: "ops", status: http.StatusForbidden},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d body=%s", tc.name, tc.status, rec.Code, rec.Body.String())
		}
	}
	if seen.Subject != "ops" {
		t.Fatalf("expected identity in context, got %+v", seen)
	}
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := Middleware{Authenticator: Config{Mode: ModeDisabled}.Authenticator()}.Wrap(next)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/runs/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected passthrough, got %d", rec.Code)
	}
}
