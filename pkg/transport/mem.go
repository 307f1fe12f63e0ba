package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrAddressInUse is returned when binding a mem endpoint that is already bound.
var ErrAddressInUse = errors.New("transport: address in use")

// MemDialer builds in-process sockets on the mem:// scheme. Endpoints are
// scoped to one MemDialer; a PUSH socket and the PULL sockets connected to
// the same endpoint share one buffered channel sized by the binder's HWM.
type MemDialer struct {
	mu        sync.Mutex
	endpoints map[string]*memEndpoint
}

type memEndpoint struct {
	ch    chan []byte
	bound bool
}

// NewMemDialer returns a dialer with its own endpoint namespace.
func NewMemDialer() *MemDialer {
	return &MemDialer{endpoints: make(map[string]*memEndpoint)}
}

func (d *MemDialer) Supports(scheme string) bool { return scheme == "mem" }

func (d *MemDialer) NewPush(ctx context.Context, hwm int) (Socket, error) {
	return newMemSocket(d, ctx, hwm), nil
}

func (d *MemDialer) NewPull(ctx context.Context, hwm int) (Socket, error) {
	return newMemSocket(d, ctx, hwm), nil
}

func (d *MemDialer) endpoint(name string, hwm int) *memEndpoint {
	ep, ok := d.endpoints[name]
	if !ok {
		ep = &memEndpoint{ch: make(chan []byte, hwm)}
		d.endpoints[name] = ep
	}
	return ep
}

type memSocket struct {
	dialer *MemDialer
	ctx    context.Context
	hwm    int
	done   chan struct{}

	mu     sync.Mutex
	ep     *memEndpoint
	bound  bool
	closed bool
}

func newMemSocket(d *MemDialer, ctx context.Context, hwm int) *memSocket {
	return &memSocket{dialer: d, ctx: ctx, hwm: hwm, done: make(chan struct{})}
}

func (s *memSocket) attach(endpoint string, bind bool) error {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return err
	}
	s.dialer.mu.Lock()
	defer s.dialer.mu.Unlock()
	e := s.dialer.endpoint(ep.String(), s.hwm)
	if bind {
		if e.bound {
			return fmt.Errorf("%w: %s", ErrAddressInUse, ep)
		}
		e.bound = true
	}
	s.mu.Lock()
	s.ep = e
	s.bound = bind
	s.mu.Unlock()
	return nil
}

func (s *memSocket) Listen(endpoint string) error { return s.attach(endpoint, true) }
func (s *memSocket) Dial(endpoint string) error   { return s.attach(endpoint, false) }

func (s *memSocket) current() (*memEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.ep == nil {
		return nil, ErrNotOpen
	}
	return s.ep, nil
}

func (s *memSocket) Send(payload []byte) error {
	ep, err := s.current()
	if err != nil {
		return err
	}
	msg := append([]byte{}, payload...)
	select {
	case ep.ch <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *memSocket) Recv() ([]byte, error) {
	ep, err := s.current()
	if err != nil {
		return nil, err
	}
	select {
	case msg := <-ep.ch:
		return msg, nil
	case <-s.done:
		return nil, ErrSessionClosed
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

func (s *memSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	ep, bound := s.ep, s.bound
	s.mu.Unlock()

	if bound && ep != nil {
		s.dialer.mu.Lock()
		ep.bound = false
		s.dialer.mu.Unlock()
	}
	return nil
}
