package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"akwaba.app/internal/obs"
)

// GRPCServiceName is the service name reported by the gRPC health endpoint.
const GRPCServiceName = "akwaba.kyc.v1.KYC"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer serves grpc.health.v1.Health driven by the readiness probe.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
}

// NewGRPCServer starts in NOT_SERVING until the first successful Refresh.
func NewGRPCServer(r readinessChecker) *GRPCServer {
	s := &GRPCServer{health: health.NewServer(), readiness: r}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Refresh runs the readiness check once and publishes the result.
func (s *GRPCServer) Refresh(ctx context.Context) error {
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	obs.SetReady(true)
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Watch refreshes every interval until ctx is done.
func (s *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.Refresh(checkCtx); err != nil && ctx.Err() == nil {
			obs.Warn("readiness check failed", map[string]any{"error": err.Error()})
		}
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Shutdown reports NOT_SERVING to every watcher and ignores later updates.
func (s *GRPCServer) Shutdown() {
	obs.SetReady(false)
	s.health.Shutdown()
}

func (s *GRPCServer) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(GRPCServiceName, st)
}
