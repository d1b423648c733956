package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"qmark.app/internal/obs"
)

// GRPCServiceName is the service name reported by the health service besides
// the overall "" entry.
const GRPCServiceName = "qmark.api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer publishes store readiness through the standard grpc.health.v1 service.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
}

// NewGRPCServer creates the health service. Status starts as NOT_SERVING until
// the first Refresh.
func NewGRPCServer(r readinessChecker) *GRPCServer {
	s := &GRPCServer{
		health:    health.NewServer(),
		readiness: r,
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Refresh runs one readiness check and publishes the outcome.
func (s *GRPCServer) Refresh(ctx context.Context) bool {
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		obs.Logger().Warn("readiness check failed", zap.Error(err))
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	obs.SetReady(true)
	s.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run refreshes every interval until ctx is done, then marks the service as
// shutting down so watchers drain before the listener closes.
func (s *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *GRPCServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(GRPCServiceName, status)
}
