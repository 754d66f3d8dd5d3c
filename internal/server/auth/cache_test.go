package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

type fakeProvider struct {
	ids     map[string]models.Identity
	calls   atomic.Int32
	release chan struct{}
}

func (p *fakeProvider) Validate(ctx context.Context, token string) (*models.Identity, error) {
	p.calls.Add(1)
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	id, ok := p.ids[token]
	if !ok {
		return nil, common.ErrInvalidToken
	}
	return &id, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newFakes() (*fakeProvider, *fakeClock) {
	p := &fakeProvider{ids: map[string]models.Identity{
		"alice-token": {UserID: "user-aaaaaaaa", OrgID: "org-0000000f"},
		"bob-token":   {UserID: "user-bbbbbbbb"},
	}}
	return p, &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestAuthorize_APIKeyBypass(t *testing.T) {
	p, _ := newFakes()
	c := NewCache(p, WithAPIKey("s3cret"), WithMandatory(true))

	id, err := c.Authorize(context.Background(), "user-aaaaaaaa/x", "", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, APIKeyActor, id.UserID)
	assert.Zero(t, p.calls.Load())

	_, err = c.Authorize(context.Background(), "user-aaaaaaaa/x", "", "wrong")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestAuthorize_Anonymous(t *testing.T) {
	p, _ := newFakes()
	ctx := context.Background()

	c := NewCache(p)
	id, err := c.Authorize(ctx, "shared/a.pdb", "", "")
	require.NoError(t, err)
	assert.Nil(t, id)

	for _, path := range []string{"user-aaaaaaaa", "user-aaaaaaaa/docs", "org-0000000f/x"} {
		_, err = c.Authorize(ctx, path, "", "")
		assert.ErrorIs(t, err, common.ErrUnauthenticated, path)
	}

	mandatory := NewCache(p, WithMandatory(true))
	_, err = mandatory.Authorize(ctx, "shared/a.pdb", "", "")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)

	// with no API key configured an empty header value must not bypass
	_, err = c.Authorize(ctx, "user-aaaaaaaa", "", "")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestAuthorize_PathOwnership(t *testing.T) {
	p, _ := newFakes()
	c := NewCache(p)
	ctx := context.Background()

	tests := []struct {
		path, header string
		want         error
	}{
		{"user-aaaaaaaa/docs", "Bearer alice-token", nil},
		{"user-bbbbbbbb/docs", "Bearer alice-token", common.ErrUnauthorized},
		{"org-0000000f/x", "Bearer alice-token", nil},
		{"org-0000000e/x", "Bearer alice-token", common.ErrUnauthorized},
		{"org-0000000f/x", "Bearer bob-token", common.ErrUnauthorized},
		{"shared/x", "Bearer bob-token", nil},
		{"user-bbbbbbbb", "bob-token", nil},
		{"shared/x", "Bearer nobody", common.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.path+" "+tt.header, func(t *testing.T) {
			_, err := c.Authorize(ctx, tt.path, tt.header, "")
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthorize_CachesIdentity(t *testing.T) {
	p, clk := newFakes()
	c := NewCache(p, WithClock(clk.Now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id, err := c.Authorize(ctx, "user-aaaaaaaa", "Bearer alice-token", "")
		require.NoError(t, err)
		assert.Equal(t, "user-aaaaaaaa", id.UserID)
	}
	assert.EqualValues(t, 1, p.calls.Load())
	assert.Equal(t, 1, c.Len())

	_, err := c.Authorize(ctx, "shared", "Bearer nobody", "")
	require.Error(t, err)
	assert.Equal(t, 1, c.Len(), "failures are not cached")
}

func TestAuthorize_ConcurrentMissesCallProviderOnce(t *testing.T) {
	p, _ := newFakes()
	p.release = make(chan struct{})
	c := NewCache(p)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Authorize(context.Background(), "user-aaaaaaaa", "Bearer alice-token", "")
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestAuthorize_CancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	p, _ := newFakes()
	p.release = make(chan struct{})
	c := NewCache(p)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Authorize(ctx, "user-aaaaaaaa", "Bearer alice-token", "")
		first <- err
	}()

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.Error(t, <-first)

	close(p.release)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)

	id, err := c.Authorize(context.Background(), "user-aaaaaaaa", "Bearer alice-token", "")
	require.NoError(t, err)
	assert.Equal(t, "user-aaaaaaaa", id.UserID)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestSweep_DropsIdleEntries(t *testing.T) {
	p, clk := newFakes()
	c := NewCache(p, WithClock(clk.Now))
	ctx := context.Background()

	_, err := c.Authorize(ctx, "shared", "Bearer alice-token", "")
	require.NoError(t, err)
	_, err = c.Authorize(ctx, "shared", "Bearer bob-token", "")
	require.NoError(t, err)

	clk.Advance(50 * time.Minute)
	_, err = c.Authorize(ctx, "shared", "Bearer alice-token", "")
	require.NoError(t, err)

	clk.Advance(20 * time.Minute)
	assert.Equal(t, 1, c.Sweep(time.Hour))
	assert.Equal(t, 1, c.Len())
	assert.Zero(t, c.Sweep(time.Hour), "sweep is idempotent")

	_, err = c.Authorize(ctx, "shared", "Bearer bob-token", "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, p.calls.Load(), "bob was re-validated after eviction")
}

func TestEvict(t *testing.T) {
	p, _ := newFakes()
	c := NewCache(p)

	_, err := c.Authorize(context.Background(), "shared", "Bearer alice-token", "")
	require.NoError(t, err)

	assert.True(t, c.Evict("alice-token"))
	assert.False(t, c.Evict("alice-token"))
	assert.Zero(t, c.Len())
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "", bearerToken(""))
	assert.Equal(t, "", bearerToken("   "))
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("abc"))
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, ProviderConfig{})
	require.NoError(t, err)
	assert.IsType(t, &SessionProvider{}, p)

	p, err = NewProvider(ctx, ProviderConfig{Kind: "jwt", JWTSecret: "k"})
	require.NoError(t, err)
	assert.IsType(t, &JWTProvider{}, p)

	_, err = NewProvider(ctx, ProviderConfig{Kind: "jwt"})
	assert.Error(t, err)

	_, err = NewProvider(ctx, ProviderConfig{Kind: "ldap"})
	assert.Error(t, err)

	_, err = NewProvider(ctx, ProviderConfig{Kind: "oidc"})
	assert.Error(t, err)
}
