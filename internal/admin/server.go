// Package admin serves the gRPC health and reflection endpoints.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"uisync/internal/metrics"
)

// ServiceName is the health service name reported for the websocket transport.
const ServiceName = "uisync.Transport"

const requestTimeout = 5 * time.Second

type Server struct {
	addr     string
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
}

func NewServer(addr string) *Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			metrics.UnaryServerInterceptor(),
			timeoutInterceptor(requestTimeout),
		),
		grpc.ChainStreamInterceptor(metrics.StreamServerInterceptor()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		addr:   addr,
		grpc:   s,
		health: hs,
	}
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Serve starts serving on lis in the background.
func (s *Server) Serve(lis net.Listener) error {
	s.listener = lis
	slog.Info("admin server listening", "addr", lis.Addr().String())
	go func() {
		if err := s.grpc.Serve(lis); err != nil {
			slog.Error("admin server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// SetServing flips both the overall and the transport health status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	slog.Debug("health status changed", "status", status.String())
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	slog.Info("admin server stopped")
}

func timeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		return handler(ctx, req)
	}
}
