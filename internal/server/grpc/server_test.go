package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

func startHealth(t *testing.T) (*Health, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	h := New(zaptest.NewLogger(t))
	go func() { _ = h.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Stop(ctx)
	})
	return h, healthpb.NewHealthClient(conn)
}

// check reports UNKNOWN when the call itself fails.
func check(c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN
	}
	return resp.GetStatus()
}

func TestHealth_ServingByDefault(t *testing.T) {
	t.Parallel()
	h, c := startHealth(t)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(c, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(c, ServiceName))

	h.SetServing(false)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(c, ServiceName))
}

func TestHealth_MonitorFollowsCheck(t *testing.T) {
	t.Parallel()
	h, c := startHealth(t)

	var failing atomic.Bool
	failing.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Monitor(ctx, 10*time.Millisecond, func(context.Context) error {
			if failing.Load() {
				return errors.New("db down")
			}
			return nil
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		return check(c, "") == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	failing.Store(false)
	require.Eventually(t, func() bool {
		return check(c, "") == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestHealth_StopEndsWatch(t *testing.T) {
	t.Parallel()
	h, c := startHealth(t)

	stream, err := c.Watch(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	first, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, first.GetStatus())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	h.Stop(ctx)

	last, err := stream.Recv()
	if err == nil {
		require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, last.GetStatus())
	}
}
