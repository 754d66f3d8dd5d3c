// Package server wires the vault engine to its transports and runs them
// until the process is told to stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/archive"
	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/converter"
	"github.com/dmitrijs2005/gophvault/internal/server/httpapi"
	"github.com/dmitrijs2005/gophvault/internal/server/journal"
	"github.com/dmitrijs2005/gophvault/internal/server/uploads"
	"github.com/dmitrijs2005/gophvault/internal/server/vault"

	gs "github.com/dmitrijs2005/gophvault/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *vault.Store
	uploads *uploads.Manager
	auth    *auth.Cache
	journal *journal.Journal
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if _, err := filex.EnsureDir(filepath.Join(c.VaultRoot, common.SharedFolder)); err != nil {
		return nil, fmt.Errorf("vault root: %w", err)
	}

	var opts []vault.Option

	var jr *journal.Journal
	if c.DatabaseDSN != "" {
		var err error
		if jr, err = journal.Open(ctx, c.DatabaseDSN, logger); err != nil {
			return nil, fmt.Errorf("journal init error: %w", err)
		}
		opts = append(opts, vault.WithJournal(jr))
	}

	if c.S3Bucket != "" {
		arch, err := archive.New(ctx, archive.Config{
			Bucket:       c.S3Bucket,
			Prefix:       c.S3Prefix,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("archive init error: %w", err)
		}
		opts = append(opts, vault.WithArchiver(arch))
	}

	cipher := cryptox.New(cryptox.NewKeyDeriver(c.KDF, []byte(c.KDFSalt)))
	store, err := vault.Open(c.VaultRoot, cipher, c.UserStorage, c.UserStorageLabel, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("vault init error: %w", err)
	}

	var conv uploads.Converter
	if c.ConverterURL != "" {
		conv = converter.NewHTTPConverter(c.ConverterURL, c.ConverterTimeout)
	}
	up, err := uploads.NewManager(c.UploadsDir, store, conv, logger)
	if err != nil {
		return nil, fmt.Errorf("uploads init error: %w", err)
	}

	provider, err := auth.NewProvider(ctx, auth.ProviderConfig{
		Kind:         c.AuthProvider,
		SessionURL:   c.SessionURL,
		JWTSecret:    c.JWTSecret,
		OIDCIssuer:   c.OIDCIssuer,
		OIDCClientID: c.OIDCClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("auth init error: %w", err)
	}
	cache := auth.NewCache(provider,
		auth.WithAPIKey(c.APIKey),
		auth.WithMandatory(c.EnableAuth),
		auth.WithLogger(logger),
	)

	logger.Info(ctx, "vault ready",
		"root", store.Guard().Root(),
		"kdf", cipher.KDFName(),
		"user_storage", c.UserStorageLabel,
		"journal", jr != nil,
		"archive", c.S3Bucket != "",
	)

	return &App{config: c, logger: logger, store: store, uploads: up, auth: cache, journal: jr}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	deps := gs.Deps{
		Tokens:  app.auth,
		Uploads: app.uploads,
		Files:   app.store,
		Defaults: gs.Defaults{
			AuthIdle:         app.config.AuthIdleTimeout,
			UploadAbandon:    app.config.UploadAbandonAfter,
			KeepFiles:        app.config.KeepFiles(),
			JournalRetention: app.config.JournalRetention,
		},
	}
	if app.journal != nil {
		deps.Journal = app.journal
	}

	s, err := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, deps, app.config.APIKey)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	api := httpapi.NewServer(app.store, app.uploads, app.auth, app.config.UIMessage, app.logger)
	srv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if app.journal != nil {
		if err := app.journal.Close(); err != nil {
			app.logger.Error(context.Background(), "journal close", "error", err)
		}
	}
	app.logger.Info(context.Background(), "Stopped")
}
