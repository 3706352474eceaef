package server

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"YieldVault/internal/observability"
)

// GRPCServer serves the standard gRPC health protocol for orchestrator
// probes. The JSON API lives on the HTTP server; this exists so load
// balancers and service meshes that speak grpc_health_v1 can probe the
// ledger directly.
type GRPCServer struct {
	addr         string
	grpcServer   *grpc.Server
	healthServer *health.Server
}

func NewGRPCServer(addr string) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		addr:         addr,
		grpcServer:   grpcServer,
		healthServer: healthServer,
	}
}

// SetServing flips the advertised health status.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)
}

// Start runs the gRPC server until the context is cancelled (blocking).
func (s *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	logger := observability.NewLogger("grpc")
	go func() {
		<-ctx.Done()
		logger.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	logger.Info().Str("addr", s.addr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}
