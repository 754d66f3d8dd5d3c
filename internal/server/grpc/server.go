// Package grpc serves the maintenance API: idempotent sweeps for an
// external scheduler plus the standard health service.
package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

// TokenSweeper drops idle auth cache entries.
type TokenSweeper interface {
	Sweep(maxIdle time.Duration) int
	Len() int
}

// UploadSweeper removes abandoned upload sessions.
type UploadSweeper interface {
	SweepAbandoned(ctx context.Context, maxAge time.Duration) (int, error)
}

// FileSweeper removes files past the retention window.
type FileSweeper interface {
	SweepExpired(ctx context.Context, maxAge time.Duration) (int, error)
}

// Journal lists recent activity and deletes old events.
type Journal interface {
	Recent(ctx context.Context, prefix string, limit int) ([]models.Event, error)
	Prune(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error)
}

// Defaults are the ages used when a request does not carry its own.
type Defaults struct {
	AuthIdle         time.Duration
	UploadAbandon    time.Duration
	KeepFiles        time.Duration
	JournalRetention time.Duration
}

// Deps are the components the sweeps act on. Journal may be nil.
type Deps struct {
	Tokens   TokenSweeper
	Uploads  UploadSweeper
	Files    FileSweeper
	Journal  Journal
	Defaults Defaults
}

type GRPCServer struct {
	address string
	apiKey  string
	deps    Deps
	logger  logging.Logger
	now     func() time.Time
	health  *health.Server
}

func NewGRPCServer(a string, l logging.Logger, deps Deps, apiKey string) (*GRPCServer, error) {
	if l == nil {
		l = logging.Nop()
	}
	return &GRPCServer{
		address: a,
		apiKey:  apiKey,
		deps:    deps,
		logger:  l.With("module", "grpc_server"),
		now:     time.Now,
		health:  health.NewServer(),
	}, nil
}

// newGRPC builds the grpc.Server with every service registered.
func (s *GRPCServer) newGRPC() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.apiKeyInterceptor))
	srv.RegisterService(&MaintenanceServiceDesc, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve is Run on an existing listener.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newGRPC()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
