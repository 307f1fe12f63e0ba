// Package transport owns the outbound PUSH / inbound PULL socket pair used by
// a dispatch container.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionClosed is returned by Receive and Send once Close has begun.
	// For the receive loop it is the "closed" sentinel.
	ErrSessionClosed = errors.New("transport: session closed")
	// ErrNotOpen is returned when the session is used before Open.
	ErrNotOpen = errors.New("transport: session not open")
	// ErrInvalidEndpoint is returned for a malformed or unsupported address.
	ErrInvalidEndpoint = errors.New("transport: invalid endpoint")
	// ErrPermanent marks a socket failure that retrying cannot fix. Sockets
	// wrap it to make the receive loop give up at once.
	ErrPermanent = errors.New("transport: permanent failure")
)

// Socket is the subset of a message-queue socket the session drives.
type Socket interface {
	// Listen binds the socket to endpoint.
	Listen(endpoint string) error
	// Dial connects the socket to endpoint. A peer that is not listening
	// yet is not an error; the socket connects once it appears.
	Dial(endpoint string) error
	// Send enqueues one single-frame message. It may block at the
	// high-water-mark.
	Send(payload []byte) error
	// Recv blocks for the next message. A nil payload with a nil error means
	// no message was available.
	Recv() ([]byte, error)
	Close() error
}

// Dialer builds sockets. Sockets must unblock Send and Recv once ctx is done.
type Dialer interface {
	NewPush(ctx context.Context, hwm int) (Socket, error)
	NewPull(ctx context.Context, hwm int) (Socket, error)
	// Supports reports whether the dialer understands the endpoint scheme.
	Supports(scheme string) bool
}

// Endpoint is a parsed "scheme://address" string.
type Endpoint struct {
	Scheme  string
	Address string
}

func (e Endpoint) String() string { return e.Scheme + "://" + e.Address }

// ParseEndpoint splits s into scheme and address; both must be non-empty.
func ParseEndpoint(s string) (Endpoint, error) {
	scheme, addr, ok := strings.Cut(strings.TrimSpace(s), "://")
	if !ok || scheme == "" || addr == "" {
		return Endpoint{}, fmt.Errorf("%w %q: want scheme://address", ErrInvalidEndpoint, s)
	}
	return Endpoint{Scheme: strings.ToLower(scheme), Address: addr}, nil
}
