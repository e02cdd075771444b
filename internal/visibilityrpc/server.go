// Package visibilityrpc exposes a visibility.Source over gRPC and provides the
// matching client, itself a visibility.Source.
package visibilityrpc

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/internal/observability"
	"github.com/signalsfoundry/constellation-optimizer/visibility"
)

const (
	ServiceName             = "constellation.visibility.v1.VisibilityService"
	MethodComputeEvents     = "ComputeEvents"
	FullMethodComputeEvents = "/" + ServiceName + "/" + MethodComputeEvents
)

// VisibilityServer is the server API for the visibility service.
type VisibilityServer interface {
	ComputeEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the visibility service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VisibilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodComputeEvents, Handler: computeEventsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "constellation/visibility/v1/visibility.proto",
}

func computeEventsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VisibilityServer).ComputeEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethodComputeEvents}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VisibilityServer).ComputeEvents(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterVisibilityServer registers srv on s.
func RegisterVisibilityServer(s grpc.ServiceRegistrar, srv VisibilityServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server serves ComputeEvents from any visibility.Source.
type Server struct {
	source  visibility.Source
	log     logging.Logger
	metrics *observability.RPCCollector
}

// NewServer wraps source. metrics may be nil.
func NewServer(source visibility.Source, log logging.Logger, metrics *observability.RPCCollector) *Server {
	return &Server{source: source, log: logging.OrNoop(log), metrics: metrics}
}

// ComputeEvents decodes the request, queries the source and encodes the
// events.
func (s *Server) ComputeEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logging.FromContext(ctx, s.log)

	req, err := decodeRequest(in)
	if err != nil {
		log.Warn(ctx, "rejecting visibility request", logging.Err(err))
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "visibility.Events",
		attribute.String("satellite_id", req.Satellite.ID),
		attribute.Int("points", len(req.Points)),
	)
	defer span.End()

	events, err := s.source.Events(ctx, req.Satellite, req.Points, req.Window, req.Threshold)
	if err != nil {
		span.RecordError(err)
		log.Warn(ctx, "visibility computation failed",
			logging.String("satellite_id", req.Satellite.ID),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}

	out, err := encodeResponse(req.Points, events)
	if err != nil {
		log.Error(ctx, "encode visibility response", logging.Err(err))
		return nil, ToStatusError(err)
	}
	s.metrics.AddEventsServed(len(events))
	log.Debug(ctx, "visibility computed",
		logging.String("satellite_id", req.Satellite.ID),
		logging.Int("points", len(req.Points)),
		logging.Int("events", len(events)),
	)
	return out, nil
}

// NewGRPCServer returns a grpc.Server with the visibility service registered
// behind the request-ID, tracing and metrics interceptors.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(srv.log),
			TracingUnaryServerInterceptor(),
			srv.metrics.UnaryServerInterceptor(),
		),
	}
	gs := grpc.NewServer(append(base, opts...)...)
	RegisterVisibilityServer(gs, srv)
	return gs
}
