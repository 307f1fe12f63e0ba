package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZMQDialerSchemes(t *testing.T) {
	d := ZMQDialer()
	assert.True(t, d.Supports("tcp"))
	assert.True(t, d.Supports("ipc"))
	assert.True(t, d.Supports("inproc"))
	assert.False(t, d.Supports("mem"))
}

func TestZMQInprocLoopback(t *testing.T) {
	sess, err := NewSession(Options{
		OutboundAddress: "inproc://plugin-mq-session-test",
		InboundAddress:  "inproc://plugin-mq-session-test",
		HighWaterMark:   8,
	})
	require.Nil(t, err)
	require.Nil(t, sess.Open(context.Background()))
	defer func() { _ = sess.Close() }()

	type result struct {
		payload []byte
		err     error
	}
	got := make(chan result, 1)
	go func() {
		p, err := sess.Receive()
		got <- result{p, err}
	}()

	require.Nil(t, sess.Send([]byte("hello")))
	select {
	case r := <-got:
		require.Nil(t, r.err)
		assert.Equal(t, "hello", string(r.payload))
	case <-time.After(5 * time.Second):
		t.Fatal("no message over inproc loopback")
	}
}

func freeTCPEndpoint(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	addr := l.Addr().String()
	require.Nil(t, l.Close())
	return "tcp://" + addr
}

// drain forwards every payload sess receives until the session closes.
func drain(sess *Session) <-chan string {
	out := make(chan string, 1024)
	go func() {
		for {
			p, err := sess.Receive()
			if errors.Is(err, ErrSessionClosed) {
				return
			}
			if err != nil {
				continue
			}
			select {
			case out <- string(p):
			default:
			}
		}
	}()
	return out
}

// keepSending repeats payload on peer until ctx ends, so delivery does not
// depend on when the PULL side (re)connects.
func keepSending(ctx context.Context, peer zmq4.Socket, payload string) {
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			_ = peer.Send(zmq4.NewMsgString(payload))
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func waitPayload(t *testing.T, got <-chan string, want string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case p := <-got:
			if p == want {
				return
			}
		case <-deadline:
			t.Fatalf("did not receive %q within %s", want, within)
		}
	}
}

func TestZMQOpenWithoutInboundPeer(t *testing.T) {
	inbound := freeTCPEndpoint(t)
	sess, err := NewSession(Options{
		OutboundAddress: freeTCPEndpoint(t),
		InboundAddress:  inbound,
		HighWaterMark:   8,
	})
	require.Nil(t, err)

	start := time.Now()
	require.Nil(t, sess.Open(context.Background()))
	defer func() { _ = sess.Close() }()
	assert.Less(t, time.Since(start), 2*time.Second)
	got := drain(sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	peer := zmq4.NewPush(ctx)
	defer peer.Close()
	require.Nil(t, peer.Listen(inbound))
	keepSending(ctx, peer, "late peer")

	waitPayload(t, got, "late peer", 10*time.Second)
}

func TestZMQReceivesAfterPeerRestart(t *testing.T) {
	inbound := freeTCPEndpoint(t)
	firstCtx, stopFirst := context.WithCancel(context.Background())
	defer stopFirst()
	first := zmq4.NewPush(firstCtx)
	require.Nil(t, first.Listen(inbound))

	sess, err := NewSession(Options{
		OutboundAddress: freeTCPEndpoint(t),
		InboundAddress:  inbound,
		HighWaterMark:   8,
	})
	require.Nil(t, err)
	require.Nil(t, sess.Open(context.Background()))
	defer func() { _ = sess.Close() }()
	got := drain(sess)

	keepSending(firstCtx, first, "before")
	waitPayload(t, got, "before", 10*time.Second)
	stopFirst()
	_ = first.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	second := zmq4.NewPush(ctx)
	defer second.Close()
	require.Eventually(t, func() bool { return second.Listen(inbound) == nil },
		5*time.Second, 50*time.Millisecond, "rebind %s", inbound)
	keepSending(ctx, second, "after")

	waitPayload(t, got, "after", 10*time.Second)
	assert.False(t, sess.Closed())
}
