package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/srediag/plugin-mq/internal/logging"
)

const (
	defaultDialRetry      = 250 * time.Millisecond
	defaultDialMaxRetries = -1
	defaultDialGrace      = 250 * time.Millisecond
)

// ZMQDialerOption tunes ZMQDialer.
type ZMQDialerOption func(*zmqDialer)

// WithDialRetry sets the interval between connect attempts of a PULL socket,
// both for the first connect and for reconnecting after the peer went away.
// maxRetries of -1 retries forever.
func WithDialRetry(interval time.Duration, maxRetries int) ZMQDialerOption {
	return func(d *zmqDialer) {
		d.retry = interval
		d.maxRetries = maxRetries
	}
}

// WithDialGrace sets how long Dial waits for an immediate failure before it
// leaves the connect running in the background.
func WithDialGrace(d time.Duration) ZMQDialerOption {
	return func(z *zmqDialer) { z.grace = d }
}

type zmqDialer struct {
	retry      time.Duration
	maxRetries int
	grace      time.Duration
	log        *slog.Logger
}

// ZMQDialer builds ZeroMQ sockets (tcp://, ipc://, inproc://) on go-zeromq.
// Connecting is asynchronous like libzmq's: a peer that is not listening yet
// is retried, and a peer that restarts is redialed.
func ZMQDialer(opts ...ZMQDialerOption) Dialer {
	d := &zmqDialer{
		retry:      defaultDialRetry,
		maxRetries: defaultDialMaxRetries,
		grace:      defaultDialGrace,
		log:        logging.Named("zmq"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *zmqDialer) Supports(scheme string) bool {
	switch scheme {
	case "tcp", "ipc", "inproc":
		return true
	}
	return false
}

func (d *zmqDialer) options() []zmq4.Option {
	return []zmq4.Option{
		zmq4.WithDialerRetry(d.retry),
		zmq4.WithDialerMaxRetries(d.maxRetries),
		zmq4.WithAutomaticReconnect(true),
		zmq4.WithLogger(slog.NewLogLogger(d.log.Handler(), slog.LevelDebug)),
	}
}

func (d *zmqDialer) NewPush(ctx context.Context, hwm int) (Socket, error) {
	return d.newSocket(zmq4.NewPush(ctx, d.options()...), hwm)
}

func (d *zmqDialer) NewPull(ctx context.Context, hwm int) (Socket, error) {
	return d.newSocket(zmq4.NewPull(ctx, d.options()...), hwm)
}

func (d *zmqDialer) newSocket(sck zmq4.Socket, hwm int) (Socket, error) {
	if err := sck.SetOption(zmq4.OptionHWM, hwm); err != nil {
		_ = sck.Close()
		return nil, fmt.Errorf("set hwm %d: %w", hwm, err)
	}
	return &zmqSocket{sck: sck, grace: d.grace, log: d.log}, nil
}

type zmqSocket struct {
	sck   zmq4.Socket
	grace time.Duration
	log   *slog.Logger
}

func (s *zmqSocket) Listen(endpoint string) error {
	if path, ok := strings.CutPrefix(endpoint, "ipc://"); ok {
		if removed, err := removeStaleSocket(path); err != nil {
			return err
		} else if removed {
			s.log.Warn("removed stale ipc socket", "path", path)
		}
	}
	return s.sck.Listen(endpoint)
}

// Dial returns the error of a connect that fails within the grace period,
// such as an unknown transport. A peer that is not reachable yet keeps being
// retried in the background until the socket context ends.
func (s *zmqSocket) Dial(endpoint string) error {
	var detached atomic.Bool
	errc := make(chan error, 1)
	go func() {
		err := s.sck.Dial(endpoint)
		errc <- err
		if !detached.Load() {
			return
		}
		if err != nil {
			s.log.Warn("background connect failed", "endpoint", endpoint, "err", err)
		} else {
			s.log.Info("connected", "endpoint", endpoint)
		}
	}()

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case err := <-errc:
		return err
	case <-timer.C:
		detached.Store(true)
		s.log.Info("peer not reachable yet, connecting in background", "endpoint", endpoint)
		return nil
	}
}

func (s *zmqSocket) Send(payload []byte) error {
	return s.sck.Send(zmq4.NewMsg(payload))
}

func (s *zmqSocket) Recv() ([]byte, error) {
	msg, err := s.sck.Recv()
	if err != nil {
		return nil, err
	}
	switch len(msg.Frames) {
	case 0:
		return nil, nil
	case 1:
		if msg.Frames[0] == nil {
			return []byte{}, nil
		}
		return msg.Frames[0], nil
	default:
		// PUSH peers of other stacks may send multipart; fold the frames
		out := make([]byte, 0, 64)
		for _, f := range msg.Frames {
			out = append(out, f...)
		}
		return out, nil
	}
}

func (s *zmqSocket) Close() error { return s.sck.Close() }
