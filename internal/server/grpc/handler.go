package grpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "OK"})
}

func (s *GRPCServer) SweepAuthTokens(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	maxIdle, err := durationField(req, "max_idle", s.deps.Defaults.AuthIdle)
	if err != nil {
		return nil, err
	}
	if s.deps.Tokens == nil || maxIdle <= 0 {
		return nil, status.Error(codes.FailedPrecondition, "auth cache disabled")
	}

	removed := s.deps.Tokens.Sweep(maxIdle)
	s.logger.Info(ctx, "auth tokens swept", "removed", removed)
	return structpb.NewStruct(map[string]any{
		"removed":   removed,
		"remaining": s.deps.Tokens.Len(),
	})
}

func (s *GRPCServer) SweepUploads(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	maxAge, err := durationField(req, "max_age", s.deps.Defaults.UploadAbandon)
	if err != nil {
		return nil, err
	}
	if s.deps.Uploads == nil || maxAge <= 0 {
		return nil, status.Error(codes.FailedPrecondition, "upload sweep disabled")
	}

	removed, err := s.deps.Uploads.SweepAbandoned(ctx, maxAge)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "uploads swept", "removed", removed)
	return structpb.NewStruct(map[string]any{"removed": removed})
}

func (s *GRPCServer) SweepExpiredFiles(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	maxAge, err := durationField(req, "max_age", s.deps.Defaults.KeepFiles)
	if err != nil {
		return nil, err
	}
	if s.deps.Files == nil || maxAge <= 0 {
		return nil, status.Error(codes.FailedPrecondition, "file retention disabled")
	}

	removed, err := s.deps.Files.SweepExpired(ctx, maxAge)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "expired files swept", "removed", removed)
	return structpb.NewStruct(map[string]any{"removed": removed})
}

func (s *GRPCServer) PruneJournal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	maxAge, err := durationField(req, "max_age", s.deps.Defaults.JournalRetention)
	if err != nil {
		return nil, err
	}
	if s.deps.Journal == nil || maxAge <= 0 {
		return nil, status.Error(codes.FailedPrecondition, "journal disabled")
	}

	removed, err := s.deps.Journal.Prune(ctx, maxAge, s.now())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "journal pruned", "removed", removed)
	return structpb.NewStruct(map[string]any{"removed": removed})
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func (s *GRPCServer) JournalHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.deps.Journal == nil {
		return nil, status.Error(codes.FailedPrecondition, "journal disabled")
	}

	fields := req.GetFields()
	limit := defaultHistoryLimit
	if v, ok := fields["limit"]; ok {
		limit = int(v.GetNumberValue())
		if limit <= 0 {
			return nil, status.Error(codes.InvalidArgument, "limit: expected a positive number")
		}
		limit = min(limit, maxHistoryLimit)
	}
	prefix := strings.Trim(fields["path"].GetStringValue(), "/")

	events, err := s.deps.Journal.Recent(ctx, prefix, limit)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	list := make([]any, 0, len(events))
	for _, e := range events {
		list = append(list, map[string]any{
			"id":         e.ID,
			"kind":       string(e.Kind),
			"path":       e.Path,
			"detail":     e.Detail,
			"actor":      e.Actor,
			"created_at": e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return structpb.NewStruct(map[string]any{"events": list})
}

// durationField reads name from req as a duration string or a number of
// seconds, falling back to def when absent.
func durationField(req *structpb.Struct, name string, def time.Duration) (time.Duration, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return def, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := time.ParseDuration(k.StringValue)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s: %v", name, err)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return time.Duration(k.NumberValue * float64(time.Second)), nil
	}
	return 0, status.Errorf(codes.InvalidArgument, "%s: expected duration", name)
}

// toStatus maps vault errors onto gRPC codes.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidPath):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrConflict), errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrQuotaExceeded):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, common.ErrUnauthenticated), errors.Is(err, common.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	}
	s.logger.Error(ctx, "maintenance call failed", "error", err)
	return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
}
