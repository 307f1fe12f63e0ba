// Package container runs a PUSH/PULL transport session, drains the inbound
// socket on a dedicated worker and fans each message out to the registered
// listeners.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/plugin-mq/api"
	"github.com/srediag/plugin-mq/internal/logging"
	"github.com/srediag/plugin-mq/internal/metrics"
	"github.com/srediag/plugin-mq/pkg/codec"
	"github.com/srediag/plugin-mq/pkg/lifecycle"
	"github.com/srediag/plugin-mq/pkg/listener"
	"github.com/srediag/plugin-mq/pkg/transport"
)

// Re-exported so callers only need this package for the common checks.
var (
	ErrAlreadyStarted = lifecycle.ErrAlreadyStarted
	ErrNotStarted     = lifecycle.ErrNotStarted
	ErrStopped        = lifecycle.ErrStopped
)

var _ api.Container = (*Container)(nil)

// Container owns one transport session, one receive worker, a listener
// registry and a hand-off queue. All methods are safe for concurrent use.
type Container struct {
	cfg      Config
	opts     options
	log      *slog.Logger
	session  *transport.Session
	registry *listener.Registry
	queue    *handoffQueue
	metrics  *metrics.Metrics
	machine  lifecycle.Machine

	opMu   sync.Mutex // serializes Start and Stop
	pool   *ants.Pool
	stopCh   chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	looping atomic.Bool
	failure atomic.Pointer[error]
}

// New validates cfg and builds an UNSTARTED container. No socket is created
// until Start.
func New(cfg *Config, opts ...Option) (*Container, error) {
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	o := options{dialer: transport.ZMQDialer(), codec: codec.JSON()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = logging.Named("container")
	}

	session, err := transport.NewSession(transport.Options{
		OutboundAddress: cfg.OutboundAddress,
		InboundAddress:  cfg.InboundAddress,
		HighWaterMark:   cfg.HighWaterMark,
		Dialer:          o.dialer,
		Logger:          o.logger.With("component", "transport"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var mopts []metrics.Option
	if o.tp != nil {
		mopts = append(mopts, metrics.WithTracerProvider(o.tp))
	}
	if o.mp != nil {
		mopts = append(mopts, metrics.WithMeterProvider(o.mp))
	}

	c := &Container{
		cfg:      *cfg,
		opts:     o,
		log:      o.logger,
		session:  session,
		registry: listener.NewRegistry(),
		queue:    newHandoffQueue(cfg.QueueHint),
		metrics:  metrics.New(mopts...),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.machine.OnTransition(func(from, to lifecycle.State) {
		c.log.Info("state change", "from", from.String(), "to", to.String())
	})
	return c, nil
}

// Start opens the session and launches the receive worker. It only succeeds
// from UNSTARTED; on failure everything opened so far is closed and the
// container is STOPPED.
func (c *Container) Start(ctx context.Context) (err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.machine.BeginStart(); err != nil {
		return err
	}
	defer func() { c.machine.FinishStart(err == nil) }()

	if err := c.session.Open(ctx); err != nil {
		c.closeDone()
		return fmt.Errorf("container: start: %w", err)
	}

	pool, err := ants.NewPool(1,
		ants.WithPanicHandler(c.onWorkerPanic),
		ants.WithLogger(poolLogger{c.log}),
	)
	if err != nil {
		_ = c.session.Close()
		c.closeDone()
		return fmt.Errorf("container: start worker: %w", err)
	}

	c.looping.Store(true)
	if err := pool.Submit(c.receiveLoop); err != nil {
		c.looping.Store(false)
		pool.Release()
		_ = c.session.Close()
		c.closeDone()
		return fmt.Errorf("container: start worker: %w", err)
	}
	c.pool = pool
	return nil
}

// Stop signals the worker, closes the session to unblock a pending receive
// and waits for the worker to exit, bounded by ctx. Stopping a STOPPED
// container is a no-op; an UNSTARTED one goes straight to STOPPED.
func (c *Container) Stop(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.machine.BeginStop() {
		_ = c.session.Close()
		c.closeDone()
		return nil
	}
	defer c.machine.FinishStop()

	close(c.stopCh)
	closeErr := c.session.Close()

	var waitErr error
	select {
	case <-c.done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("container: stop: receive worker still running: %w", ctx.Err())
	}
	if c.pool != nil {
		c.pool.Release()
	}
	c.metrics.QueueDepth.Set(float64(c.queue.len()))
	return errors.Join(waitErr, closeErr)
}

// Send enqueues payload on the outbound socket. It may block at the
// high-water-mark until Stop closes the session.
func (c *Container) Send(payload []byte) error {
	if err := c.machine.CheckRunning(); err != nil {
		return err
	}
	if err := c.session.Send(payload); err != nil {
		if errors.Is(err, transport.ErrSessionClosed) {
			return ErrStopped
		}
		return err
	}
	c.metrics.MessagesSent.Inc()
	return nil
}

// SendValue encodes v with the container codec and sends it.
func (c *Container) SendValue(v any) error {
	if err := c.machine.CheckRunning(); err != nil {
		return err
	}
	data, err := c.opts.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("container: encode %T: %w", v, err)
	}
	return c.Send(data)
}

// RegisterListener adds fn to the registry. It is allowed before Start and
// takes effect from the next receive cycle.
func (c *Container) RegisterListener(fn listener.Func) (listener.Handle, error) {
	if err := c.machine.CheckUsable(); err != nil {
		return listener.Handle{}, err
	}
	h, err := c.registry.Register(fn)
	if err != nil {
		return listener.Handle{}, err
	}
	c.metrics.Listeners.Set(float64(c.registry.Len()))
	return h, nil
}

// UnregisterListener removes one registration. It reports false for an
// unknown handle. A cycle already past the removed check for this listener
// still calls it once; later cycles never do.
func (c *Container) UnregisterListener(h listener.Handle) bool {
	ok := c.registry.Unregister(h)
	c.metrics.Listeners.Set(float64(c.registry.Len()))
	return ok
}

// PollReceived returns the oldest received payload, waiting up to timeout.
// ok is false when nothing arrived in time.
func (c *Container) PollReceived(timeout time.Duration) (payload string, ok bool) {
	payload, ok, err := c.queue.poll(timeout)
	if err != nil {
		c.log.Warn("poll hand-off queue", "err", err)
		return "", false
	}
	if ok {
		c.metrics.QueueDepth.Set(float64(c.queue.len()))
	}
	return payload, ok
}

// State reports the lifecycle state.
func (c *Container) State() lifecycle.State { return c.machine.Current() }

// Running reports whether the receive worker is alive.
func (c *Container) Running() bool { return c.looping.Load() }

// Done is closed once the receive worker has exited, Start failed, or the
// container was stopped before it ever started.
func (c *Container) Done() <-chan struct{} { return c.done }

func (c *Container) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Err returns the error that made the container stop itself, if any.
func (c *Container) Err() error {
	if p := c.failure.Load(); p != nil {
		return *p
	}
	return nil
}

// Codec returns the codec used by SendValue.
func (c *Container) Codec() codec.Codec { return c.opts.codec }

// Registry exposes the container's prometheus registry.
func (c *Container) Registry() *prometheus.Registry { return c.metrics.Registry() }

// fail records err and stops the container from outside the worker, since
// Stop waits for the worker to exit.
func (c *Container) fail(err error) {
	c.failure.CompareAndSwap(nil, &err)
	c.report(err)
	go func() {
		if stopErr := c.Stop(context.Background()); stopErr != nil {
			c.log.Error("shutdown after failure", "err", stopErr)
		}
	}()
}

func (c *Container) report(err error) {
	if c.opts.onError != nil {
		c.opts.onError(err)
	}
}

func (c *Container) onWorkerPanic(v any) {
	c.fail(fmt.Errorf("container: receive worker panicked: %v", v))
}

// poolLogger routes ants messages to slog.
type poolLogger struct{ l *slog.Logger }

func (p poolLogger) Printf(format string, args ...any) {
	p.l.Warn(fmt.Sprintf(format, args...), "component", "worker")
}
