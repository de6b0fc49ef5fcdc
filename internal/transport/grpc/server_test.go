package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestDefaultRequestTimeoutInterceptor_AddsDeadline(t *testing.T) {
	interceptor := DefaultRequestTimeoutInterceptor(time.Second)

	var got time.Time
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x"}, func(ctx context.Context, req any) (any, error) {
		d, ok := ctx.Deadline()
		if !ok {
			t.Fatalf("expected deadline")
		}
		got = d
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}
	if until := time.Until(got); until <= 0 || until > time.Second {
		t.Fatalf("deadline in %v, want within 1s", until)
	}
}

func TestDefaultRequestTimeoutInterceptor_KeepsCallerDeadline(t *testing.T) {
	interceptor := DefaultRequestTimeoutInterceptor(time.Second)

	want := time.Now().Add(time.Hour)
	ctx, cancel := context.WithDeadline(context.Background(), want)
	defer cancel()

	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x"}, func(ctx context.Context, req any) (any, error) {
		d, _ := ctx.Deadline()
		if !d.Equal(want) {
			t.Fatalf("deadline = %v, want %v", d, want)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}
}

func TestManagementServer_HealthLifecycle(t *testing.T) {
	m := NewManagementServer(nil, time.Second)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = m.Serve(lis) }()
	t.Cleanup(func() { m.Shutdown(time.Second) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: AppointmentsServiceName})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status = %v, want NOT_SERVING", got)
	}

	if !m.Probe(context.Background(), func(ctx context.Context) error { return nil }) {
		t.Fatalf("probe should succeed")
	}
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status after probe = %v, want SERVING", got)
	}

	if m.Probe(context.Background(), func(ctx context.Context) error { return context.DeadlineExceeded }) {
		t.Fatalf("probe should fail")
	}
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after failed probe = %v, want NOT_SERVING", got)
	}
}

func TestManagementServer_WatchFollowsCheck(t *testing.T) {
	m := NewManagementServer(nil, time.Second)
	t.Cleanup(func() { m.Shutdown(time.Second) })

	var healthy atomic.Bool
	check := func(ctx context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("database unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Watch(ctx, 10*time.Millisecond, check)
		close(done)
	}()

	waitFor := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for {
			resp, err := m.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: AppointmentsServiceName})
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if resp.GetStatus() == want {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("status = %v, want %v", resp.GetStatus(), want)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	waitFor(healthpb.HealthCheckResponse_NOT_SERVING)
	healthy.Store(true)
	waitFor(healthpb.HealthCheckResponse_SERVING)
	healthy.Store(false)
	waitFor(healthpb.HealthCheckResponse_NOT_SERVING)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Watch did not return after cancel")
	}
}
