package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/netx"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

// DefaultSessionURL is the hosted session endpoint.
const DefaultSessionURL = "https://api.nanome.ai/user/session"

type sessionResponse struct {
	Success bool `json:"success"`
	Results struct {
		User struct {
			Unique string `json:"unique"`
			Org    string `json:"org"`
		} `json:"user"`
	} `json:"results"`
}

// SessionProvider asks a remote session endpoint who a token belongs to.
type SessionProvider struct {
	url    string
	client *http.Client
}

func NewSessionProvider(url string, timeout time.Duration) *SessionProvider {
	if url == "" {
		url = DefaultSessionURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SessionProvider{url: url, client: &http.Client{Timeout: timeout}}
}

func (p *SessionProvider) Validate(ctx context.Context, token string) (*models.Identity, error) {
	var resp sessionResponse
	status, err := netx.GetJSON(ctx, p.client, p.url, map[string]string{"Authorization": "Bearer " + token}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: session lookup: %v", common.ErrInvalidToken, err)
	}
	if status != http.StatusOK || !resp.Success || resp.Results.User.Unique == "" {
		return nil, common.ErrInvalidToken
	}
	return &models.Identity{
		UserID: resp.Results.User.Unique,
		OrgID:  resp.Results.User.Org,
	}, nil
}
