package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the maintenance service.
const ServiceName = "gophvault.maintenance.Maintenance"

// Method names, as they appear in UnaryServerInfo.FullMethod.
const (
	MethodPing              = "/" + ServiceName + "/Ping"
	MethodSweepAuthTokens   = "/" + ServiceName + "/SweepAuthTokens"
	MethodSweepUploads      = "/" + ServiceName + "/SweepUploads"
	MethodSweepExpiredFiles = "/" + ServiceName + "/SweepExpiredFiles"
	MethodPruneJournal      = "/" + ServiceName + "/PruneJournal"
	MethodJournalHistory    = "/" + ServiceName + "/JournalHistory"
)

// MaintenanceServer is the server side of the maintenance service. Sweep
// requests carry an optional "max_age" (or "max_idle") field, either a
// duration string such as "10m" or a number of seconds; responses carry
// the number of removed items. JournalHistory takes an optional "path"
// prefix and "limit" and answers with an "events" list, newest first.
type MaintenanceServer interface {
	Ping(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SweepAuthTokens(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SweepUploads(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SweepExpiredFiles(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PruneJournal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	JournalHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structCall func(MaintenanceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structMethod(name string, call structCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MaintenanceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(MaintenanceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MaintenanceServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodPing}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(MaintenanceServer).Ping(ctx, req.(*emptypb.Empty))
	})
}

// MaintenanceServiceDesc describes the maintenance service for
// grpc.Server.RegisterService.
var MaintenanceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MaintenanceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
		structMethod("SweepAuthTokens", MaintenanceServer.SweepAuthTokens),
		structMethod("SweepUploads", MaintenanceServer.SweepUploads),
		structMethod("SweepExpiredFiles", MaintenanceServer.SweepExpiredFiles),
		structMethod("PruneJournal", MaintenanceServer.PruneJournal),
		structMethod("JournalHistory", MaintenanceServer.JournalHistory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "maintenance",
}

// MaintenanceClient calls the maintenance service over conn.
type MaintenanceClient struct {
	conn grpc.ClientConnInterface
}

func NewMaintenanceClient(conn grpc.ClientConnInterface) *MaintenanceClient {
	return &MaintenanceClient{conn: conn}
}

func (c *MaintenanceClient) Ping(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, MethodPing, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Call invokes one of the struct-typed maintenance methods by full name.
func (c *MaintenanceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
