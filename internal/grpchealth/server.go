// Package grpchealth serves the standard gRPC health protocol for the edge, driven by the
// same readiness checks as GET /readyz.
package grpchealth

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"agentdesk.io/internal/obs"
)

// ServiceName is the service reported alongside the overall ("") status.
const ServiceName = "agentdesk.edge"

const defaultInterval = 5 * time.Second

// Checker reports readiness. A nil error means SERVING.
type Checker interface {
	Check(ctx context.Context) error
}

// Server wraps a grpc.Server exposing grpc.health.v1.Health.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	checker  Checker
	interval time.Duration
	timeout  time.Duration
}

// New builds a health server. interval <= 0 uses the default poll interval.
func New(checker Checker, interval time.Duration, opts ...grpc.ServerOption) *Server {
	if interval <= 0 {
		interval = defaultInterval
	}
	s := &Server{
		grpc:     grpc.NewServer(opts...),
		health:   health.NewServer(),
		checker:  checker,
		interval: interval,
		timeout:  interval / 2,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Refresh runs the readiness check once and publishes the result.
func (s *Server) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil {
		if err := s.checker.Check(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			obs.Logger().Debug().Err(err).Msg("grpc health not serving")
		}
	}
	s.setStatus(status)
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve polls readiness and serves on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Refresh(ctx)
	go s.watch(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
