package health_test

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/BrandonDHaskell/Portunus/gate/internal/health"
)

const bufSize = 1024 * 1024

func startBufHealth(t *testing.T) (*health.Server, healthpb.HealthClient) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	srv := health.New(log.New(io.Discard, "", 0))

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Shutdown()
		_ = listener.Close()
	})
	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealth_StartsNotServing(t *testing.T) {
	_, c := startBufHealth(t)
	if st := check(t, c, ""); st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %s, want NOT_SERVING", st)
	}
}

func TestHealth_SetServing(t *testing.T) {
	srv, c := startBufHealth(t)

	srv.SetServing(true)
	for _, svc := range []string{"", health.ServiceName} {
		if st := check(t, c, svc); st != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %s, want SERVING", svc, st)
		}
	}
}

func TestHealth_WatchMirrorsProbe(t *testing.T) {
	srv, c := startBufHealth(t)

	probeErr := make(chan error, 1)
	probeErr <- nil
	probe := func(context.Context) error {
		select {
		case err := <-probeErr:
			probeErr <- err
			return err
		default:
			return nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Watch(ctx, 10*time.Millisecond, probe)

	waitFor(t, func() bool { return check(t, c, "") == healthpb.HealthCheckResponse_SERVING })

	<-probeErr
	probeErr <- errors.New("db down")
	waitFor(t, func() bool { return check(t, c, "") == healthpb.HealthCheckResponse_NOT_SERVING })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
