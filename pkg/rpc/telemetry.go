package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/jalsense/jalsense/pkg/types"
)

const (
	ServiceName  = "jalsense.v1.Telemetry"
	IngestMethod = "/jalsense.v1.Telemetry/Ingest"
)

// TelemetryServer is implemented by the server-side receiver.
type TelemetryServer interface {
	Ingest(context.Context, *types.Telemetry) (*types.IngestAck, error)
}

// RegisterTelemetryServer registers srv on s.
func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&TelemetryServiceDesc, srv)
}

func ingestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.Telemetry)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).Ingest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IngestMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TelemetryServer).Ingest(ctx, req.(*types.Telemetry))
	}
	return interceptor(ctx, in, info, handler)
}

// TelemetryServiceDesc describes the Telemetry service for grpc.Server.
var TelemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ingest", Handler: ingestHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jalsense/v1/telemetry",
}

// TelemetryClient is the client API for the Telemetry service.
type TelemetryClient interface {
	Ingest(ctx context.Context, in *types.Telemetry, opts ...grpc.CallOption) (*types.IngestAck, error)
}

type telemetryClient struct {
	cc grpc.ClientConnInterface
}

// NewTelemetryClient returns a client that sends every call with the JSON codec.
func NewTelemetryClient(cc grpc.ClientConnInterface) TelemetryClient {
	return &telemetryClient{cc: cc}
}

func (c *telemetryClient) Ingest(ctx context.Context, in *types.Telemetry, opts ...grpc.CallOption) (*types.IngestAck, error) {
	out := new(types.IngestAck)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, IngestMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
