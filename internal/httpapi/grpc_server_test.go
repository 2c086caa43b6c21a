package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, srv *GRPCServer) (*grpc.ClientConn, func()) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	srv.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	cleanup := func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	}
	return conn, cleanup
}

func checkHealth(t *testing.T, conn *grpc.ClientConn, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	return resp.GetStatus()
}

func TestGRPCHealthServingAfterRefresh(t *testing.T) {
	srv := NewGRPCServer(ReadyProbe{})
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	if got := checkHealth(t, conn, GRPCServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before first refresh, got %v", got)
	}
	if err := srv.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	for _, svc := range []string{"", GRPCServiceName} {
		if got := checkHealth(t, conn, svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("service %q: expected SERVING, got %v", svc, got)
		}
	}
}

type failingReadiness struct{}

func (failingReadiness) Check(context.Context) error { return errors.New("boom") }

func TestGRPCHealthFailure(t *testing.T) {
	srv := NewGRPCServer(failingReadiness{})
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	if err := srv.Refresh(context.Background()); err == nil {
		t.Fatal("expected readiness error")
	}
	if got := checkHealth(t, conn, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
}

func TestGRPCHealthShutdown(t *testing.T) {
	srv := NewGRPCServer(ReadyProbe{})
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	_ = srv.Refresh(context.Background())
	srv.Shutdown()
	if got := checkHealth(t, conn, GRPCServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %v", got)
	}
}
