package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/srediag/plugin-mq/internal/logging"
)

// Options configures a Session.
type Options struct {
	// OutboundAddress is bound by the PUSH socket.
	OutboundAddress string
	// InboundAddress is connected to by the PULL socket.
	InboundAddress string
	// HighWaterMark caps queued messages per socket. Must be positive.
	HighWaterMark int
	// Dialer builds the sockets. Nil means ZMQDialer().
	Dialer Dialer
	Logger *slog.Logger
}

// Session is one PUSH/PULL socket pair. Open it once, Close it once; Close is
// idempotent and unblocks a pending Receive.
type Session struct {
	opts     Options
	outbound Endpoint
	inbound  Endpoint
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex // guards push/pull assignment during Open and Close
	push   Socket
	pull   Socket
	opened atomic.Bool
	closed atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// NewSession validates opts. No socket is created until Open.
func NewSession(opts Options) (*Session, error) {
	if opts.Dialer == nil {
		opts.Dialer = ZMQDialer()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Named("transport")
	}
	if opts.HighWaterMark <= 0 {
		return nil, fmt.Errorf("transport: high-water-mark must be > 0, got %d", opts.HighWaterMark)
	}
	out, err := parseFor(opts.Dialer, "outbound", opts.OutboundAddress)
	if err != nil {
		return nil, err
	}
	in, err := parseFor(opts.Dialer, "inbound", opts.InboundAddress)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:     opts,
		outbound: out,
		inbound:  in,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func parseFor(d Dialer, role, addr string) (Endpoint, error) {
	ep, err := ParseEndpoint(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%s address: %w", role, err)
	}
	if !d.Supports(ep.Scheme) {
		return Endpoint{}, fmt.Errorf("%s address: %w: scheme %q not supported", role, ErrInvalidEndpoint, ep.Scheme)
	}
	return ep, nil
}

// Open binds the outbound socket and connects the inbound one, the
// high-water-mark applied to both first. Connecting does not wait for the
// inbound peer to be listening. On failure every socket created so
// far is closed and the session is unusable.
func (s *Session) Open(ctx context.Context) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if !s.opened.CompareAndSwap(false, true) {
		return errors.New("transport: session already open")
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	push, err := s.opts.Dialer.NewPush(s.ctx, s.opts.HighWaterMark)
	if err != nil {
		return fmt.Errorf("transport: create push socket: %w", err)
	}
	s.push = push
	if err := push.Listen(s.outbound.String()); err != nil {
		return fmt.Errorf("transport: bind %s: %w", s.outbound, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pull, err := s.opts.Dialer.NewPull(s.ctx, s.opts.HighWaterMark)
	if err != nil {
		return fmt.Errorf("transport: create pull socket: %w", err)
	}
	s.pull = pull
	if err := pull.Dial(s.inbound.String()); err != nil {
		return fmt.Errorf("transport: connect %s: %w", s.inbound, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.log.Info("session open",
		"outbound", s.outbound.String(),
		"inbound", s.inbound.String(),
		"hwm", s.opts.HighWaterMark)
	return nil
}

func (s *Session) sockets() (push, pull Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.push, s.pull
}

// Send enqueues payload on the outbound socket.
func (s *Session) Send(payload []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	push, _ := s.sockets()
	if push == nil {
		return ErrNotOpen
	}
	if err := push.Send(payload); err != nil {
		if s.closed.Load() {
			return ErrSessionClosed
		}
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Receive blocks until a message is available or the session closes. A nil
// payload with a nil error means the socket woke up without a message.
func (s *Session) Receive() ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	_, pull := s.sockets()
	if pull == nil {
		return nil, ErrNotOpen
	}
	payload, err := pull.Recv()
	if err != nil {
		if s.closed.Load() || s.ctx.Err() != nil {
			return nil, ErrSessionClosed
		}
		return nil, fmt.Errorf("transport: receive: %w", err)
	}
	return payload, nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed.Load() }

// Close cancels the socket context, then closes the outbound and inbound
// sockets. Later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		push, pull := s.sockets()
		var errs []error
		if push != nil {
			if err := push.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close push: %w", err))
			}
		}
		if pull != nil {
			if err := pull.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close pull: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.log.Warn("session close", "err", s.closeErr)
		} else {
			s.log.Info("session closed")
		}
	})
	return s.closeErr
}
