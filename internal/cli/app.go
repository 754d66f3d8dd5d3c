package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	gs "github.com/dmitrijs2005/gophvault/internal/server/grpc"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/vault"
)

// Actor is the identity vaultctl records in the journal.
const Actor = "vaultctl"

// ErrInvalidKey is returned by verify when the key does not open the folder.
var ErrInvalidKey = errors.New("key is not valid")

const callTimeout = 5 * time.Minute

// dialMaintenance is a test seam for the gRPC connection.
var dialMaintenance = func(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// defaultTokenTTL is how long tokens issued by "token" stay valid.
const defaultTokenTTL = 24 * time.Hour

type App struct {
	config   *config.Config
	out      io.Writer
	store    *vault.Store
	tokenTTL time.Duration
}

func NewApp(c *config.Config, out io.Writer) *App {
	return &App{config: c, out: out, tokenTTL: defaultTokenTTL}
}

const usage = `usage: vaultctl [-r root] [-a addr] [-k api-key] [-ttl duration] <command> [args]

commands:
  lock <path>                 encrypt a folder (prompts for the key twice)
  unlock <path>               decrypt a folder
  verify <path>               check a key against a folder
  usage <path>                show storage used by an account folder
  sweep-uploads [max-age]     remove abandoned upload sessions
  sweep-files [max-age]       remove files past the retention window
  sweep-tokens [max-idle]     drop idle auth cache entries
  prune-journal [max-age]     delete old journal events
  history [path] [limit]      show recent journal events under path
  token <user-id> [org-id]    issue a bearer token for the jwt provider
`

// Run parses global flags from args and executes the command that follows.
func (a *App) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("vaultctl", flag.ContinueOnError)
	fs.SetOutput(a.out)
	fs.Usage = func() { fmt.Fprint(a.out, usage) }
	fs.StringVar(&a.config.VaultRoot, "r", a.config.VaultRoot, "vault root directory")
	fs.StringVar(&a.config.GRPCAddr, "a", a.config.GRPCAddr, "maintenance service address")
	fs.StringVar(&a.config.APIKey, "k", a.config.APIKey, "API key")
	fs.DurationVar(&a.tokenTTL, "ttl", a.tokenTTL, "validity of issued tokens")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	cmd, params := rest[0], rest[1:]

	ctx = models.WithIdentity(ctx, &models.Identity{UserID: Actor})

	switch cmd {
	case "lock":
		return a.withPath(params, func(p string) error { return a.Lock(ctx, p) })
	case "unlock":
		return a.withPath(params, func(p string) error { return a.Unlock(ctx, p) })
	case "verify":
		return a.withPath(params, func(p string) error { return a.Verify(ctx, p) })
	case "usage":
		return a.withPath(params, func(p string) error { return a.Usage(ctx, p) })
	case "sweep-uploads":
		return a.Sweep(ctx, gs.MethodSweepUploads, "max_age", params)
	case "sweep-files":
		return a.Sweep(ctx, gs.MethodSweepExpiredFiles, "max_age", params)
	case "sweep-tokens":
		return a.Sweep(ctx, gs.MethodSweepAuthTokens, "max_idle", params)
	case "prune-journal":
		return a.Sweep(ctx, gs.MethodPruneJournal, "max_age", params)
	case "history":
		return a.History(ctx, params)
	case "token":
		return a.Token(params)
	case "help":
		fs.Usage()
		return nil
	}

	fs.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *App) withPath(params []string, fn func(string) error) error {
	if len(params) != 1 {
		return errors.New("expected exactly one vault path")
	}
	return fn(params[0])
}

func (a *App) openStore() (*vault.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	cipher := cryptox.New(cryptox.NewKeyDeriver(a.config.KDF, []byte(a.config.KDFSalt)))
	s, err := vault.Open(a.config.VaultRoot, cipher, a.config.UserStorage, a.config.UserStorageLabel, nil)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

func (a *App) Lock(ctx context.Context, p string) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	key, err := GetNewKey(a.out)
	if err != nil {
		return err
	}
	if err := s.Lock(ctx, p, key); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "locked %s\n", vault.Clean(p))
	return nil
}

func (a *App) Unlock(ctx context.Context, p string) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	key, err := GetKey(a.out, "Folder key: ")
	if err != nil {
		return err
	}
	if err := s.Unlock(ctx, p, key); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "unlocked %s\n", vault.Clean(p))
	return nil
}

func (a *App) Verify(ctx context.Context, p string) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	boundary, ok := s.Locks().LockedAncestor(p)
	if !ok {
		fmt.Fprintf(a.out, "%s is not encrypted\n", vault.Clean(p))
		return nil
	}
	key, err := GetKey(a.out, "Folder key: ")
	if err != nil {
		return err
	}
	if !s.Locks().IsKeyValid(p, key) {
		return fmt.Errorf("%w for %s", ErrInvalidKey, boundary)
	}
	fmt.Fprintf(a.out, "key is valid for %s\n", boundary)
	return nil
}

func (a *App) Usage(ctx context.Context, p string) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	account, ok := vault.UserScope(p)
	if !ok {
		return fmt.Errorf("%s is not an account folder", vault.Clean(p))
	}
	used, err := s.Quota().Usage(account)
	if err != nil {
		return err
	}

	limit := "unlimited"
	if l := s.Quota().Limit(); l > 0 {
		limit = vault.HumanSize(l)
	}
	fmt.Fprintf(a.out, "%s: %s of %s\n", account, vault.HumanSize(used), limit)
	return nil
}

// Sweep calls a maintenance method. An optional first param is sent as
// the age field; otherwise the server default applies.
func (a *App) Sweep(ctx context.Context, method, field string, params []string) error {
	fields := map[string]any{}
	if len(params) > 0 {
		if _, err := time.ParseDuration(params[0]); err != nil {
			return fmt.Errorf("invalid duration %q: %w", params[0], err)
		}
		fields[field] = params[0]
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}

	out, err := a.call(ctx, method, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %d\n", int64(out.GetFields()["removed"].GetNumberValue()))
	return nil
}

// History prints the newest journal events under an optional path prefix.
func (a *App) History(ctx context.Context, params []string) error {
	if len(params) > 2 {
		return errors.New("expected at most a path and a limit")
	}
	fields := map[string]any{}
	if len(params) > 0 {
		fields["path"] = vault.Clean(params[0])
	}
	if len(params) > 1 {
		n, err := strconv.Atoi(params[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", params[1])
		}
		fields["limit"] = n
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}

	out, err := a.call(ctx, gs.MethodJournalHistory, req)
	if err != nil {
		return err
	}
	events := out.GetFields()["events"].GetListValue().GetValues()
	if len(events) == 0 {
		fmt.Fprintln(a.out, "no events")
		return nil
	}
	for _, v := range events {
		e := v.GetStructValue().GetFields()
		line := fmt.Sprintf("%s %-7s %s", e["created_at"].GetStringValue(), e["kind"].GetStringValue(), e["path"].GetStringValue())
		if d := e["detail"].GetStringValue(); d != "" {
			line += " -> " + d
		}
		fmt.Fprintf(a.out, "%s (%s)\n", line, e["actor"].GetStringValue())
	}
	return nil
}

// Token signs a bearer token for an account, for deployments using the
// jwt identity provider.
func (a *App) Token(params []string) error {
	if len(params) < 1 || len(params) > 2 {
		return errors.New("expected a user id and an optional org id")
	}
	if a.config.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	id := models.Identity{UserID: params[0]}
	if account, ok := vault.UserScope(id.UserID); !ok || account != id.UserID {
		return fmt.Errorf("invalid user id %q", id.UserID)
	}
	if len(params) == 2 {
		id.OrgID = params[1]
		if org, ok := vault.OrgScope(id.OrgID); !ok || org != id.OrgID {
			return fmt.Errorf("invalid org id %q", id.OrgID)
		}
	}

	tok, err := auth.GenerateToken(id, []byte(a.config.JWTSecret), a.tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, tok)
	return nil
}

// call invokes a maintenance method with the configured API key.
func (a *App) call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	conn, err := dialMaintenance(a.config.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", a.config.GRPCAddr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if a.config.APIKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, gs.APIKeyMetadata, a.config.APIKey)
	}

	return gs.NewMaintenanceClient(conn).Call(ctx, method, req)
}
