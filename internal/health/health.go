// Package health exposes the standard grpc.health.v1 service so the
// controller or an orchestrator can probe the gate without HTTP.
package health

import (
	"context"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported alongside the overall ("") status.
const ServiceName = "gate.v1.Access"

// Probe reports whether a dependency is usable, e.g. (*sql.DB).PingContext.
type Probe func(ctx context.Context) error

type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	logger *log.Logger
}

// New builds a gRPC server with the health service registered. Both the
// overall status and ServiceName start as NOT_SERVING.
func New(logger *log.Logger, opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: grpchealth.NewServer(),
		logger: logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the named service status.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Watch runs probe every interval and mirrors its result into the health
// status until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration, probe Probe) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		if err := probe(pctx); err != nil {
			if ctx.Err() == nil {
				s.logger.Printf("health probe failed: %v", err)
			}
			s.SetServing(false)
			return
		}
		s.SetServing(true)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// Serve blocks serving gRPC on lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Shutdown reports NOT_SERVING to watchers, then stops gracefully.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
