package grpc

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

// APIKeyMetadata is the metadata key carrying the operator API key.
const APIKeyMetadata = common.APIKeyMetadataName

const healthPrefix = "/grpc.health.v1.Health/"

// apiKeyInterceptor requires the configured API key on maintenance calls.
// Health checks are open. Without a configured key every call is allowed;
// the listener is expected to be bound to a private address then.
func (s *GRPCServer) apiKeyInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if s.apiKey == "" || strings.HasPrefix(info.FullMethod, healthPrefix) {
		return handler(ctx, req)
	}

	var apiKey string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(APIKeyMetadata); len(values) > 0 {
			apiKey = values[0]
		}
	}
	if apiKey == "" {
		return nil, status.Error(codes.Unauthenticated, "missing api key")
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.apiKey)) != 1 {
		return nil, status.Error(codes.Unauthenticated, "invalid api key")
	}

	return handler(ctx, req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info(ctx, "grpc call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}
