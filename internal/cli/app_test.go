package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	gs "github.com/dmitrijs2005/gophvault/internal/server/grpc"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

// stubKeys makes readPassword return keys in order.
func stubKeys(t *testing.T, keys ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	var mu sync.Mutex
	readPassword = func(int) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(keys) == 0 {
			return nil, errors.New("no more input")
		}
		k := keys[0]
		keys = keys[1:]
		return []byte(k), nil
	}
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "shared", "docs"), 0o770))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shared", "docs", "a.pdb"), []byte("ATOM"), 0o660))

	c := &config.Config{}
	c.LoadDefaults()
	c.VaultRoot = root

	out := &bytes.Buffer{}
	return NewApp(c, out), out, root
}

func TestLockVerifyUnlock(t *testing.T) {
	app, out, root := newTestApp(t)
	ctx := context.Background()

	stubKeys(t, "s3cret", "s3cret")
	require.NoError(t, app.Run(ctx, []string{"lock", "shared/docs"}))
	assert.Contains(t, out.String(), "locked shared/docs")

	raw, err := os.ReadFile(filepath.Join(root, "shared", "docs", "a.pdb"))
	require.NoError(t, err)
	assert.NotEqual(t, "ATOM", string(raw))

	stubKeys(t, "wrong")
	err = app.Run(ctx, []string{"verify", "shared/docs/a.pdb"})
	assert.ErrorIs(t, err, ErrInvalidKey)

	stubKeys(t, "s3cret")
	require.NoError(t, app.Run(ctx, []string{"verify", "shared/docs/a.pdb"}))
	assert.Contains(t, out.String(), "key is valid for shared/docs")

	stubKeys(t, "s3cret")
	require.NoError(t, app.Run(ctx, []string{"unlock", "shared/docs"}))

	raw, err = os.ReadFile(filepath.Join(root, "shared", "docs", "a.pdb"))
	require.NoError(t, err)
	assert.Equal(t, "ATOM", string(raw))
}

func TestLock_KeysMustMatch(t *testing.T) {
	app, _, _ := newTestApp(t)

	stubKeys(t, "one", "two")
	err := app.Run(context.Background(), []string{"lock", "shared/docs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")
}

func TestVerify_NotEncrypted(t *testing.T) {
	app, out, _ := newTestApp(t)

	require.NoError(t, app.Run(context.Background(), []string{"verify", "shared/docs"}))
	assert.Contains(t, out.String(), "not encrypted")
}

func TestUsage(t *testing.T) {
	app, out, root := newTestApp(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "user-0000000a", "x"), 0o770))
	require.NoError(t, os.WriteFile(filepath.Join(root, "user-0000000a", "x", "f.pdb"), make([]byte, 2048), 0o660))

	require.NoError(t, app.Run(context.Background(), []string{"usage", "user-0000000a/x"}))
	assert.Contains(t, out.String(), "user-0000000a: 2.0KB of unlimited")

	assert.Error(t, app.Run(context.Background(), []string{"usage", "shared"}))
}

func TestRun_BadInvocations(t *testing.T) {
	app, _, _ := newTestApp(t)
	ctx := context.Background()

	assert.Error(t, app.Run(ctx, nil), "missing command")
	assert.Error(t, app.Run(ctx, []string{"explode"}))
	assert.Error(t, app.Run(ctx, []string{"lock"}), "path required")
	assert.Error(t, app.Run(ctx, []string{"sweep-uploads", "soon"}))
	assert.NoError(t, app.Run(ctx, []string{"help"}))
}

type countingSweeper struct {
	maxAge time.Duration
}

func (c *countingSweeper) SweepAbandoned(_ context.Context, maxAge time.Duration) (int, error) {
	c.maxAge = maxAge
	return 4, nil
}

// serveMaintenance runs a maintenance server on an in-memory listener and
// points dialMaintenance at it.
func serveMaintenance(t *testing.T, deps gs.Deps, apiKey string) {
	t.Helper()
	srv, err := gs.NewGRPCServer("", nil, deps, apiKey)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	orig := dialMaintenance
	t.Cleanup(func() { dialMaintenance = orig })
	dialMaintenance = func(string) (*grpc.ClientConn, error) {
		return grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}
}

func TestSweepOverGRPC(t *testing.T) {
	sweeper := &countingSweeper{}
	serveMaintenance(t, gs.Deps{
		Uploads:  sweeper,
		Defaults: gs.Defaults{UploadAbandon: 10 * time.Minute},
	}, "operator-key")

	app, out, _ := newTestApp(t)

	err := app.Run(context.Background(), []string{"sweep-uploads"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err), "no api key")

	require.NoError(t, app.Run(context.Background(), []string{"-k", "operator-key", "sweep-uploads", "30m"}))
	assert.Contains(t, out.String(), "removed 4")
	assert.Equal(t, 30*time.Minute, sweeper.maxAge)

	err = app.Run(context.Background(), []string{"-k", "operator-key", "prune-journal"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	err = app.Run(context.Background(), []string{"-k", "operator-key", "history"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err), "no journal configured")
}

type stubJournal struct {
	prefix string
	limit  int
	events []models.Event
}

func (j *stubJournal) Recent(_ context.Context, prefix string, limit int) ([]models.Event, error) {
	j.prefix, j.limit = prefix, limit
	return j.events, nil
}

func (j *stubJournal) Prune(context.Context, time.Duration, time.Time) (int64, error) {
	return 0, nil
}

func TestHistoryOverGRPC(t *testing.T) {
	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	jr := &stubJournal{events: []models.Event{
		{ID: "2", Kind: models.EventRename, Path: "shared/a.pdb", Detail: "shared/b.pdb", Actor: "user-0000000a", CreatedAt: at},
		{ID: "1", Kind: models.EventLock, Path: "shared/box", Actor: Actor, CreatedAt: at.Add(-time.Minute)},
	}}
	serveMaintenance(t, gs.Deps{Journal: jr}, "")

	app, out, _ := newTestApp(t)
	require.NoError(t, app.Run(context.Background(), []string{"history", "/shared/", "5"}))

	assert.Equal(t, "shared", jr.prefix)
	assert.Equal(t, 5, jr.limit)
	assert.Contains(t, out.String(), "2026-05-06T07:08:09Z rename  shared/a.pdb -> shared/b.pdb (user-0000000a)")
	assert.Contains(t, out.String(), "lock    shared/box (vaultctl)")

	assert.Error(t, app.Run(context.Background(), []string{"history", "shared", "many"}))

	jr.events = nil
	out.Reset()
	require.NoError(t, app.Run(context.Background(), []string{"history"}))
	assert.Equal(t, "no events\n", out.String())
}

func TestToken(t *testing.T) {
	app, out, _ := newTestApp(t)
	ctx := context.Background()

	assert.Error(t, app.Run(ctx, []string{"token", "user-0000000a"}), "secret required")

	app.config.JWTSecret = "jwt-secret"
	require.NoError(t, app.Run(ctx, []string{"-ttl", "1h", "token", "user-0000000a", "org-0000000b"}))

	id, err := auth.ParseToken(strings.TrimSpace(out.String()), []byte("jwt-secret"))
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: "user-0000000a", OrgID: "org-0000000b"}, *id)

	assert.Error(t, app.Run(ctx, []string{"token", "bob"}))
	assert.Error(t, app.Run(ctx, []string{"token", "user-0000000a-extra"}))
	assert.Error(t, app.Run(ctx, []string{"token", "user-0000000a", "acme"}))
	assert.Error(t, app.Run(ctx, []string{"token"}))
}
