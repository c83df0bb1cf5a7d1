// Package grpcserver serves the gRPC health endpoint that clients watch for backend status.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service reported next to the whole-server entry "".
const ServiceName = "grovi.v1.API"

// Health is a gRPC server carrying only the standard health service.
type Health struct {
	srv *grpc.Server
	hs  *health.Server
	log *zap.Logger
}

// New constructs a Health server with logging and recovery interceptors. It starts SERVING.
func New(log *zap.Logger, opts ...grpc.ServerOption) *Health {
	if log == nil {
		log = zap.NewNop()
	}
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	}, opts...)
	h := &Health{srv: grpc.NewServer(opts...), hs: health.NewServer(), log: log}
	healthpb.RegisterHealthServer(h.srv, h.hs)
	h.SetServing(true)
	return h
}

// SetServing flips both the server-wide and the API status.
func (h *Health) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// Monitor runs check every interval and reports its outcome as the serving status,
// logging transitions only. It returns when ctx is done.
func (h *Health) Monitor(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	t := time.NewTicker(interval)
	defer t.Stop()
	serving := true
	for {
		cctx, cancel := context.WithTimeout(ctx, interval)
		err := check(cctx)
		cancel()
		if ok := err == nil; ok != serving {
			serving = ok
			h.SetServing(ok)
			if ok {
				h.log.Info("health restored")
			} else {
				h.log.Warn("health check failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Serve blocks serving lis.
func (h *Health) Serve(lis net.Listener) error { return h.srv.Serve(lis) }

// Stop marks everything NOT_SERVING, so watchers see a final update, then stops
// gracefully. Watch streams never end on their own, so the server is closed hard
// once ctx is done.
func (h *Health) Stop(ctx context.Context) {
	h.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.srv.Stop()
		<-done
	}
}
