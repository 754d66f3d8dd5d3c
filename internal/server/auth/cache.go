package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/vault"
)

// APIKeyActor is the identity reported for requests carrying the static API key.
const APIKeyActor = "api-key"

// lookupTimeout bounds a provider call. It is detached from the request
// that started it because other requests may be waiting on the same token.
const lookupTimeout = 30 * time.Second

type entry struct {
	identity   models.Identity
	lastAccess time.Time
}

// Cache remembers which identity each bearer token resolved to and
// authorizes paths against it. Entries are refreshed on every hit and only
// leave through Evict or Sweep.
type Cache struct {
	provider  Provider
	apiKey    string
	mandatory bool
	logger    logging.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
}

type CacheOption func(*Cache)

// WithAPIKey sets the static key that bypasses identity checks.
func WithAPIKey(key string) CacheOption {
	return func(c *Cache) { c.apiKey = key }
}

// WithMandatory requires a token on every path, not just scoped ones.
func WithMandatory(mandatory bool) CacheOption {
	return func(c *Cache) { c.mandatory = mandatory }
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l logging.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

func NewCache(provider Provider, opts ...CacheOption) *Cache {
	c := &Cache{
		provider: provider,
		logger:   logging.Nop(),
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("module", "auth")
	return c
}

// Authorize decides whether a request for requestPath may proceed. It
// returns the caller's identity, or nil for anonymous access to unscoped
// paths.
func (c *Cache) Authorize(ctx context.Context, requestPath, authHeader, apiKey string) (*models.Identity, error) {
	if c.apiKey != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(c.apiKey)) == 1 {
		return &models.Identity{UserID: APIKeyActor}, nil
	}

	user, userScoped := vault.UserScope(requestPath)
	org, orgScoped := vault.OrgScope(requestPath)

	token := bearerToken(authHeader)
	if token == "" {
		if userScoped || orgScoped || c.mandatory {
			return nil, fmt.Errorf("%w: missing token", common.ErrUnauthenticated)
		}
		return nil, nil
	}

	id, err := c.lookup(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnauthenticated, err)
	}

	if userScoped && id.UserID != user {
		return nil, fmt.Errorf("%w: %s", common.ErrUnauthorized, user)
	}
	if orgScoped && (id.OrgID == "" || id.OrgID != org) {
		return nil, fmt.Errorf("%w: %s", common.ErrUnauthorized, org)
	}
	return id, nil
}

// lookup returns the cached identity for token, asking the provider on a
// miss. Concurrent misses for one token share a single provider call.
func (c *Cache) lookup(ctx context.Context, token string) (*models.Identity, error) {
	if id, ok := c.cached(token); ok {
		return &id, nil
	}

	ch := c.group.DoChan(token, func() (interface{}, error) {
		// a flight that finished between our miss and this call already cached it
		if id, ok := c.cached(token); ok {
			return id, nil
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		id, err := c.provider.Validate(fctx, token)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[token] = &entry{identity: *id, lastAccess: c.now()}
		c.mu.Unlock()

		c.logger.Debug(fctx, "token cached", "user", id.UserID)
		return *id, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		id := res.Val.(models.Identity)
		return &id, nil
	}
}

func (c *Cache) cached(token string) (models.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[token]
	if !ok {
		return models.Identity{}, false
	}
	e.lastAccess = c.now()
	return e.identity, true
}

// Evict drops token from the cache and reports whether it was there.
func (c *Cache) Evict(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[token]
	delete(c.entries, token)
	return ok
}

// Sweep drops entries idle for longer than maxIdle and returns how many
// were dropped.
func (c *Cache) Sweep(maxIdle time.Duration) int {
	cutoff := c.now().Add(-maxIdle)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for token, e := range c.entries {
		if e.lastAccess.Before(cutoff) {
			delete(c.entries, token)
			n++
		}
	}
	return n
}

// Len reports the number of cached tokens.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// bearerToken takes the last word of the Authorization header, so both
// "Bearer abc" and a bare "abc" work.
func bearerToken(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
