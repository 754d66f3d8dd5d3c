package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

const (
	discoveryAttempts = 5
	discoveryBackoff  = 2 * time.Second
)

// newOIDCProvider is swapped out in tests.
var newOIDCProvider = oidc.NewProvider

// OIDCProvider verifies ID tokens issued by an OpenID Connect provider. The
// subject becomes the user id and the org_id claim the organization.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider discovers issuer, retrying while it comes up.
func NewOIDCProvider(ctx context.Context, issuer, clientID string) (*OIDCProvider, error) {
	if issuer == "" {
		return nil, fmt.Errorf("oidc provider: issuer is required")
	}

	var (
		provider *oidc.Provider
		err      error
	)
	for i := 0; i < discoveryAttempts; i++ {
		provider, err = newOIDCProvider(ctx, issuer)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(discoveryBackoff):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("oidc discovery %s: %w", issuer, err)
	}

	return NewOIDCProviderFromVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewOIDCProviderFromVerifier wraps an already configured verifier.
func NewOIDCProviderFromVerifier(v *oidc.IDTokenVerifier) *OIDCProvider {
	return &OIDCProvider{verifier: v}
}

func (p *OIDCProvider) Validate(ctx context.Context, token string) (*models.Identity, error) {
	idToken, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	var claims struct {
		OrgID string `json:"org_id"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", common.ErrInvalidToken, err)
	}

	return &models.Identity{UserID: idToken.Subject, OrgID: claims.OrgID}, nil
}
