// Package auth guards the HTTP surface with static bearer tokens mapped to
// roles.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/animus-labs/runledger/internal/platform/env"
)

type Mode string

const (
	ModeToken    Mode = "token"
	ModeDisabled Mode = "disabled"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Identity struct {
	Subject string
	Roles   []string
}

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

type Config struct {
	Mode Mode

	// Tokens maps a bearer token to the identity it grants.
	Tokens map[string]Identity
}

// ConfigFromEnv reads RUNLEDGER_AUTH_MODE and RUNLEDGER_AUTH_TOKENS, the
// latter as comma separated subject:role:token entries.
func ConfigFromEnv() (Config, error) {
	mode, err := env.OneOf("RUNLEDGER_AUTH_MODE", string(ModeDisabled), string(ModeToken), string(ModeDisabled))
	if err != nil {
		return Config{}, err
	}
	tokens, err := parseTokens(env.String("RUNLEDGER_AUTH_TOKENS", ""))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Mode: Mode(mode), Tokens: tokens}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeDisabled, "":
		return nil
	case ModeToken:
		if len(c.Tokens) == 0 {
			return errors.New("RUNLEDGER_AUTH_TOKENS must be non-empty when RUNLEDGER_AUTH_MODE=token")
		}
		return nil
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
}

// Authenticator returns nil when authentication is disabled.
func (c Config) Authenticator() Authenticator {
	if c.Mode != ModeToken {
		return nil
	}
	return &TokenAuthenticator{tokens: c.Tokens}
}

type TokenAuthenticator struct {
	tokens map[string]Identity
}

func (a *TokenAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Identity{}, ErrUnauthenticated
	}
	token = strings.TrimSpace(token)
	for known, identity := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return identity, nil
		}
	}
	return Identity{}, errors.New("unknown token")
}

func parseTokens(value string) (map[string]Identity, error) {
	out := map[string]Identity{}
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[2]) == "" {
			return nil, fmt.Errorf("parse RUNLEDGER_AUTH_TOKENS: malformed entry for %q", strings.TrimSpace(parts[0]))
		}
		role := strings.ToLower(strings.TrimSpace(parts[1]))
		if level(role) == 0 {
			return nil, fmt.Errorf("parse RUNLEDGER_AUTH_TOKENS: unknown role %q", role)
		}
		out[strings.TrimSpace(parts[2])] = Identity{Subject: strings.TrimSpace(parts[0]), Roles: []string{role}}
	}
	return out, nil
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}
