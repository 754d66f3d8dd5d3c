// Package auth authorizes vault requests: it resolves bearer tokens to
// identities through a pluggable provider, caches them, and checks that
// account and organization paths belong to the caller.
package auth

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

// Provider resolves a bearer token to the identity it was issued for.
type Provider interface {
	Validate(ctx context.Context, token string) (*models.Identity, error)
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	// Kind is one of "session", "jwt" or "oidc".
	Kind         string
	SessionURL   string
	JWTSecret    string
	OIDCIssuer   string
	OIDCClientID string
}

// NewProvider builds the provider named by cfg.Kind. An empty kind means
// the session endpoint.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case "", "session":
		return NewSessionProvider(cfg.SessionURL, 0), nil
	case "jwt":
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("jwt provider: secret is required")
		}
		return NewJWTProvider([]byte(cfg.JWTSecret)), nil
	case "oidc":
		return NewOIDCProvider(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	}
	return nil, fmt.Errorf("unknown auth provider %q", cfg.Kind)
}
