package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/codes"

	"github.com/srediag/plugin-mq/pkg/listener"
	"github.com/srediag/plugin-mq/pkg/transport"
)

// ListenerError is passed to the ErrorHandler when a listener returns an
// error or panics. Other listeners of the same message still run.
type ListenerError struct {
	Handle listener.Handle
	Err    error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("container: %s: %v", e.Handle, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

func (c *Container) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ReceiveRetryInitial
	b.MaxInterval = c.cfg.ReceiveRetryMax
	b.MaxElapsedTime = c.cfg.ReceiveRetryMaxElapsed
	b.Reset()
	return b
}

// receiveLoop runs on the single pool worker until stop is signalled, the
// session closes or receiving fails permanently.
func (c *Container) receiveLoop() {
	defer c.closeDone()
	defer c.looping.Store(false)

	c.log.Debug("receive loop started")
	bo := c.newBackOff()
	failing := false
	for {
		select {
		case <-c.stopCh:
			c.log.Debug("receive loop stopped")
			return
		default:
		}

		payload, err := c.session.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrSessionClosed) {
				c.log.Debug("receive loop stopped", "reason", "session closed")
				return
			}
			c.metrics.ReceiveErrors.Inc()
			// the elapsed budget counts from the first error of a streak
			if !failing {
				bo.Reset()
				failing = true
			}
			wait := bo.NextBackOff()
			if errors.Is(err, transport.ErrPermanent) || wait == backoff.Stop {
				c.log.Error("receive failed permanently, shutting down", "err", err)
				c.fail(fmt.Errorf("container: receive: %w", err))
				return
			}
			c.log.Warn("receive failed, retrying", "err", err, "wait", wait)
			timer := time.NewTimer(wait)
			select {
			case <-c.stopCh:
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		failing = false
		if payload == nil {
			continue
		}
		c.dispatch(payload)
	}
}

// dispatch hands payload to the queue, then to every listener of the
// current snapshot in registration order.
func (c *Container) dispatch(payload []byte) {
	start := time.Now()
	ctx, span := c.metrics.StartDispatch(context.Background(), len(payload))
	defer span.End()

	c.log.Debug("message received", "size", len(payload))
	c.metrics.MessagesReceived.Inc()
	if err := c.queue.put(string(payload)); err != nil {
		c.log.Error("hand-off queue put", "err", err)
	}
	c.metrics.QueueDepth.Set(float64(c.queue.len()))

	entries := c.registry.Snapshot()
	for _, e := range entries {
		if e.Removed() {
			continue
		}
		c.invoke(ctx, e, payload)
	}
	c.metrics.ObserveDispatch(ctx, time.Since(start), len(entries))
}

func (c *Container) invoke(ctx context.Context, e listener.Entry, payload []byte) {
	ctx, span := c.metrics.StartListener(ctx, e.Handle.String())
	defer span.End()

	c.metrics.ListenerInvocations.Inc()
	err := e.Invoke(ctx, payload)
	if err == nil {
		return
	}
	c.metrics.ListenerFailures.Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.log.Error("listener failed", "listener", e.Handle.String(), "err", err)
	c.report(&ListenerError{Handle: e.Handle, Err: err})
}
