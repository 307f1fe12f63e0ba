package container

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultHighWaterMark matches the ZeroMQ default for both socket kinds.
	DefaultHighWaterMark = 1000

	defaultQueueHint              = 64
	defaultReceiveRetryInitial    = 100 * time.Millisecond
	defaultReceiveRetryMax        = 5 * time.Second
	defaultReceiveRetryMaxElapsed = time.Minute
)

// ErrInvalidConfig wraps every configuration error reported by VerifyConfig.
var ErrInvalidConfig = errors.New("container: invalid config")

// Config holds the transport and retry settings of a Container.
type Config struct {
	// OutboundAddress is bound by the PUSH socket, e.g. "tcp://127.0.0.1:5557".
	OutboundAddress string
	// InboundAddress is connected to by the PULL socket.
	InboundAddress string
	// HighWaterMark caps queued messages per socket.
	HighWaterMark int
	// QueueHint sizes the hand-off queue's initial backing slice.
	QueueHint int64
	// ReceiveRetryInitial is the first wait after a transient receive error.
	ReceiveRetryInitial time.Duration
	// ReceiveRetryMax caps a single wait between receive retries.
	ReceiveRetryMax time.Duration
	// ReceiveRetryMaxElapsed bounds a streak of failing receives. Once
	// exceeded the failure is permanent and the container stops itself.
	ReceiveRetryMaxElapsed time.Duration
}

// DefaultConfig returns a config with the retry and HWM defaults set. The
// addresses are left empty.
func DefaultConfig() *Config {
	return &Config{
		HighWaterMark:          DefaultHighWaterMark,
		QueueHint:              defaultQueueHint,
		ReceiveRetryInitial:    defaultReceiveRetryInitial,
		ReceiveRetryMax:        defaultReceiveRetryMax,
		ReceiveRetryMaxElapsed: defaultReceiveRetryMaxElapsed,
	}
}

// VerifyConfig reports every invalid field at once.
func VerifyConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	var errs []error
	if c.OutboundAddress == "" {
		errs = append(errs, errors.New("outbound address is empty"))
	}
	if c.InboundAddress == "" {
		errs = append(errs, errors.New("inbound address is empty"))
	}
	if c.HighWaterMark <= 0 {
		errs = append(errs, fmt.Errorf("high-water-mark must be > 0, got %d", c.HighWaterMark))
	}
	if c.QueueHint < 0 {
		errs = append(errs, fmt.Errorf("queue hint must be >= 0, got %d", c.QueueHint))
	}
	if c.ReceiveRetryInitial <= 0 {
		errs = append(errs, fmt.Errorf("receive retry initial must be > 0, got %s", c.ReceiveRetryInitial))
	}
	if c.ReceiveRetryMax < c.ReceiveRetryInitial {
		errs = append(errs, fmt.Errorf("receive retry max %s is below initial %s", c.ReceiveRetryMax, c.ReceiveRetryInitial))
	}
	if c.ReceiveRetryMaxElapsed <= 0 {
		errs = append(errs, fmt.Errorf("receive retry max elapsed must be > 0, got %s", c.ReceiveRetryMaxElapsed))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
