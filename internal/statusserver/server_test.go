package statusserver

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dense-identity/applink/internal/applink"
)

func TestHealthFollowsSessionStatus(t *testing.T) {
	srv, err := New("127.0.0.1:0")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go func() { _ = srv.Serve() }()
	defer srv.Stop()

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("initial status: got %s, want NOT_SERVING", got)
	}

	srv.Report(applink.Status{HasProxy: true, Connected: true})
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("connected: got %s, want SERVING", got)
	}

	srv.Report(applink.Status{Connected: true, ShutdownReason: "service stopped"})
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("shut down: got %s, want NOT_SERVING", got)
	}
}
