package handler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/plugin-mq/pkg/container"
	"github.com/srediag/plugin-mq/pkg/lifecycle"
	"github.com/srediag/plugin-mq/pkg/listener"
	"github.com/srediag/plugin-mq/pkg/transport"
)

const waitFor = 5 * time.Second

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	peer   transport.Socket
	c      *container.Container

	mu       sync.Mutex
	reported []error
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.reported = nil
	dialer := transport.NewMemDialer()

	peer, err := dialer.NewPush(s.ctx, 64)
	s.Require().NoError(err)
	s.Require().NoError(peer.Listen("mem://in"))
	s.peer = peer

	cfg := container.DefaultConfig()
	cfg.OutboundAddress = "mem://out"
	cfg.InboundAddress = "mem://in"
	s.c, err = container.New(cfg,
		container.WithDialer(dialer),
		container.WithErrorHandler(func(err error) {
			s.mu.Lock()
			s.reported = append(s.reported, err)
			s.mu.Unlock()
		}))
	s.Require().NoError(err)
}

func (s *EngineSuite) TearDownTest() {
	s.Require().NoError(s.c.Stop(context.Background()))
	_ = s.peer.Close()
	s.cancel()
}

func (s *EngineSuite) push(payload []byte) {
	s.Require().NoError(s.peer.Send(payload))
}

func recv[T any](s *EngineSuite, ch <-chan T) T {
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		s.FailNow("handler not invoked")
	}
	var zero T
	return zero
}

func (s *EngineSuite) errorsReported() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.reported...)
}

func (s *EngineSuite) TestBindStartsContainer() {
	raw := make(chan []byte, 1)
	handles, err := NewEngine().Bind(s.ctx, s.c, Methods{
		On("raw", func(_ context.Context, b []byte) error {
			raw <- b
			return nil
		}),
	})
	s.Require().NoError(err)
	s.Len(handles, 1)
	s.Equal(lifecycle.Running, s.c.State())

	s.push([]byte{0x01, 0x02})
	s.Equal([]byte{0x01, 0x02}, recv(s, raw))
}

func (s *EngineSuite) TestBindOnRunningContainer() {
	s.Require().NoError(s.c.Start(s.ctx))
	text := make(chan string, 1)
	_, err := NewEngine().Bind(s.ctx, s.c, Methods{
		On("text", func(_ context.Context, v string) error {
			text <- v
			return nil
		}),
	})
	s.Require().NoError(err)
	s.Equal(lifecycle.Running, s.c.State())

	s.push([]byte("hello"))
	s.Equal("hello", recv(s, text))
}

func (s *EngineSuite) TestStructuredAndSignalFallbackBothInvoked() {
	orders := make(chan order, 1)
	signals := make(chan struct{}, 1)
	_, err := NewEngine().Bind(s.ctx, s.c, Methods{
		On("order", func(_ context.Context, o order) error {
			orders <- o
			return nil
		}),
		OnSignalDefault("fallback", func(context.Context) error {
			signals <- struct{}{}
			return nil
		}),
	})
	s.Require().NoError(err)

	s.push([]byte(`{"id":42,"note":"ação ✓","ship":{"city":"Porto","lines":["x"]}}`))
	got := recv(s, orders)
	s.Equal(42, got.ID)
	s.Equal("ação ✓", got.Note)
	s.Require().NotNil(got.Ship)
	s.Equal("Porto", got.Ship.City)
	recv(s, signals)
}

func (s *EngineSuite) TestRoundTripThroughContainerCodec() {
	orders := make(chan order, 3)
	_, err := NewEngine(WithCodec(s.c.Codec())).Bind(s.ctx, s.c, Methods{
		On("order", func(_ context.Context, o order) error {
			orders <- o
			return nil
		}),
	})
	s.Require().NoError(err)

	for _, want := range []order{
		{},
		{ID: 3, Ship: &address{City: "Faro", Lines: []string{"a", "b"}}},
		{Note: "日本語 🚀"},
	} {
		payload, err := s.c.Codec().Marshal(want)
		s.Require().NoError(err)
		s.push(payload)
		s.Equal(want, recv(s, orders))
	}
}

func (s *EngineSuite) TestDecodeErrorIsolated() {
	raw := make(chan []byte, 1)
	_, err := NewEngine().Bind(s.ctx, s.c, Methods{
		On("order", func(context.Context, order) error {
			s.Fail("structured handler called with undecodable payload")
			return nil
		}),
		On("raw", func(_ context.Context, b []byte) error {
			raw <- b
			return nil
		}),
	})
	s.Require().NoError(err)

	s.push([]byte("not json"))
	s.Equal("not json", string(recv(s, raw)))
	s.Eventually(func() bool { return len(s.errorsReported()) == 1 }, waitFor, time.Millisecond)

	var de *DecodeError
	s.Require().ErrorAs(s.errorsReported()[0], &de)
	s.Equal("order", de.Method)
	var le *container.ListenerError
	s.ErrorAs(s.errorsReported()[0], &le)
	s.Equal(lifecycle.Running, s.c.State())
}

// countingBinder records registrations without running anything.
type countingBinder struct {
	state      lifecycle.State
	registered int
	removed    int
	startErr   error
	registerAt int // fail the n-th registration when > 0
}

func (b *countingBinder) Start(context.Context) error {
	if b.startErr != nil {
		return b.startErr
	}
	b.state = lifecycle.Running
	return nil
}

func (b *countingBinder) Stop(context.Context) error {
	b.state = lifecycle.Stopped
	return nil
}

func (b *countingBinder) State() lifecycle.State { return b.state }

func (b *countingBinder) RegisterListener(listener.Func) (listener.Handle, error) {
	if b.registerAt > 0 && b.registered+1 == b.registerAt {
		return listener.Handle{}, lifecycle.ErrStopped
	}
	b.registered++
	return listener.Handle{}, nil
}

func (b *countingBinder) UnregisterListener(listener.Handle) bool {
	b.removed++
	return true
}

func (s *EngineSuite) TestMultipleDefaultsRegistersNothing() {
	b := &countingBinder{}
	noop := func(context.Context) error { return nil }
	_, err := NewEngine().Bind(s.ctx, b, Methods{
		OnSignalDefault("a", noop),
		OnSignal("b", noop),
		OnSignalDefault("c", noop),
	})
	s.ErrorIs(err, ErrMultipleDefaults)
	s.Equal(0, b.registered)
	s.Equal(lifecycle.Unstarted, b.state)

	_, err = NewEngine().Bind(s.ctx, s.c, Methods{OnSignalDefault("a", noop), OnSignalDefault("c", noop)})
	s.ErrorIs(err, ErrMultipleDefaults)
	s.Equal(lifecycle.Unstarted, s.c.State())
}

func (s *EngineSuite) TestBindRollsBackOnFailure() {
	noop := func(context.Context) error { return nil }
	b := &countingBinder{registerAt: 2}
	_, err := NewEngine().Bind(s.ctx, b, Methods{OnSignal("a", noop), OnSignal("b", noop)})
	s.ErrorIs(err, lifecycle.ErrStopped)
	s.Equal(1, b.registered)
	s.Equal(1, b.removed)

	boom := errors.New("bind failed")
	b = &countingBinder{startErr: boom}
	_, err = NewEngine().Bind(s.ctx, b, Methods{OnSignal("a", noop)})
	s.ErrorIs(err, boom)
	s.Equal(1, b.removed)

	b = &countingBinder{startErr: lifecycle.ErrAlreadyStarted}
	handles, err := NewEngine().Bind(s.ctx, b, Methods{OnSignal("a", noop)})
	s.NoError(err)
	s.Len(handles, 1)
}

func (s *EngineSuite) TestEmptySourceIsNoop() {
	b := &countingBinder{}
	handles, err := NewEngine().Bind(s.ctx, b, Methods{})
	s.NoError(err)
	s.Nil(handles)
	s.Equal(lifecycle.Unstarted, b.state)
}
