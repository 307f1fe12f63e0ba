package api

import "time"

// Sender writes to the outbound socket.
type Sender interface {
	Send(payload []byte) error
	// SendValue encodes v with the container codec first.
	SendValue(v any) error
}

// Poller reads the hand-off queue of received payloads.
type Poller interface {
	PollReceived(timeout time.Duration) (payload string, ok bool)
}
