package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// AppointmentsServiceName is the health service name reported for the
// scheduling API.
const AppointmentsServiceName = "deskbook.Appointments"

// ManagementServer is the operational gRPC listener. It serves the standard
// health service and server reflection; the scheduling API itself is HTTP.
type ManagementServer struct {
	srv    *grpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewManagementServer(log *slog.Logger, requestTimeout time.Duration) *ManagementServer {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc.management"))

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			DefaultRequestTimeoutInterceptor(requestTimeout),
			loggingInterceptor(log),
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	m := &ManagementServer{srv: srv, health: hs, log: log}
	m.SetServing(false)
	return m
}

func (m *ManagementServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	m.health.SetServingStatus("", st)
	m.health.SetServingStatus(AppointmentsServiceName, st)
}

// Probe runs check once and publishes the result as the serving status.
func (m *ManagementServer) Probe(ctx context.Context, check func(ctx context.Context) error) bool {
	if err := check(ctx); err != nil {
		m.log.Warn("readiness probe failed", slog.Any("err", err))
		m.SetServing(false)
		return false
	}
	m.SetServing(true)
	return true
}

// Watch probes check immediately and then every interval until ctx is done,
// so the serving status follows the dependency after startup.
func (m *ManagementServer) Watch(ctx context.Context, interval time.Duration, check func(ctx context.Context) error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	probe := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		m.Probe(pctx, check)
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

func (m *ManagementServer) Serve(lis net.Listener) error {
	return m.srv.Serve(lis)
}

// Shutdown flips every service to NOT_SERVING and drains in-flight calls,
// forcing a stop once timeout elapses.
func (m *ManagementServer) Shutdown(timeout time.Duration) {
	m.log.Info("shutting down grpc server", slog.Duration("timeout", timeout))
	m.health.Shutdown()

	done := make(chan struct{})
	go func() {
		m.srv.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		m.log.Info("grpc server stopped")
	case <-timer.C:
		m.log.Warn("grpc graceful shutdown timed out; forcing stop")
		m.srv.Stop()
	}
}

// DefaultRequestTimeoutInterceptor applies timeout to calls that arrive
// without a deadline.
func DefaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("rpc",
			slog.String("rpc", info.FullMethod),
			slog.String("code", status.Code(err).String()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return resp, err
	}
}
