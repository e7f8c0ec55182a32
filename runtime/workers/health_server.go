package workers

import (
	"context"
	"log/slog"
	"net"
	"time"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes the standard gRPC health service for orchestrators.
// The overall status follows the supervised context: SERVING while running,
// NOT_SERVING once shutdown starts.
type HealthServer struct {
	log     *slog.Logger
	address string
	health  *health.Server
}

func NewHealthServer(log *slog.Logger, address string) *HealthServer {
	return &HealthServer{log: log, address: address, health: health.NewServer()}
}

// Checker exposes the health state, mostly for tests and in-process probes.
func (w *HealthServer) Checker() healthpb.HealthServer {
	return w.health
}

func (w *HealthServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return err
	}

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(w.log)))
	healthpb.RegisterHealthServer(s, w.health)
	w.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC health server", "address", w.address, "at", time.Now().UTC())
		errChan <- s.Serve(listener)
	}()

	select {
	case err := <-errChan:
		w.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	case <-ctx.Done():
	}

	w.health.Shutdown()
	s.GracefulStop()
	return nil
}
