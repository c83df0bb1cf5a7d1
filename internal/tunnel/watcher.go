// Package tunnel watches the backend status stream and reconnects when it drops.
package tunnel

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultDelay is the pause between reconnect attempts.
const DefaultDelay = 5 * time.Second

// ErrStreamClosed reports that the server ended the status stream.
var ErrStreamClosed = errors.New("status stream closed")

// Event is one observation of the backend. Exactly one of Status and Err is set.
type Event struct {
	Status *healthpb.HealthCheckResponse
	Err    error
	At     time.Time
}

// Connected reports whether the event carries a status update.
func (e Event) Connected() bool { return e.Status != nil }

// Watcher follows grpc.health.v1.Health/Watch on target.
type Watcher struct {
	target  string
	service string
	delay   time.Duration
	dial    []grpc.DialOption
	log     *zap.Logger
	now     func() time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the reconnect delay.
func WithDelay(d time.Duration) Option { return func(w *Watcher) { w.delay = d } }

// WithService selects the health service name ("" is the whole server).
func WithService(name string) Option { return func(w *Watcher) { w.service = name } }

// WithDialOptions replaces the default insecure transport.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(w *Watcher) { w.dial = opts }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(w *Watcher) { w.log = l } }

// New constructs a Watcher for target (host:port).
func New(target string, opts ...Option) *Watcher {
	w := &Watcher{
		target: target,
		delay:  DefaultDelay,
		dial:   []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	if w.delay <= 0 {
		w.delay = DefaultDelay
	}
	return w
}

// Run delivers events to fn until ctx is cancelled. Every failure or end of the
// stream is reported once and followed by a reconnect after the fixed delay.
// fn is called from the Run goroutine only.
func (w *Watcher) Run(ctx context.Context, fn func(Event)) error {
	for {
		err := w.watch(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Info("status stream lost", zap.String("target", w.target), zap.Error(err), zap.Duration("retry_in", w.delay))
		fn(Event{Err: err, At: w.now()})

		t := time.NewTimer(w.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (w *Watcher) watch(ctx context.Context, fn func(Event)) error {
	conn, err := grpc.NewClient(w.target, w.dial...)
	if err != nil {
		return err
	}
	defer conn.Close()

	stream, err := healthpb.NewHealthClient(conn).Watch(ctx, &healthpb.HealthCheckRequest{Service: w.service})
	if err != nil {
		return err
	}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return ErrStreamClosed
		}
		if err != nil {
			return err
		}
		fn(Event{Status: resp, At: w.now()})
	}
}
