package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/srediag/plugin-mq/api"
	"github.com/srediag/plugin-mq/internal/logging"
	"github.com/srediag/plugin-mq/pkg/codec"
	"github.com/srediag/plugin-mq/pkg/lifecycle"
	"github.com/srediag/plugin-mq/pkg/listener"
)

// Engine turns handler methods into container listeners.
type Engine struct {
	codec codec.Codec
	log   *slog.Logger
}

// Option configures NewEngine.
type Option func(*Engine)

// WithCodec sets the codec for structured arguments. Default is JSON.
func WithCodec(c codec.Codec) Option {
	return func(e *Engine) { e.codec = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{codec: codec.JSON()}
	for _, fn := range opts {
		fn(e)
	}
	if e.log == nil {
		e.log = logging.Named("handler")
	}
	return e
}

// Validate checks a method set without registering anything.
func Validate(methods []Method) error {
	defaults := 0
	var errs []error
	for _, m := range methods {
		if m.call == nil {
			errs = append(errs, fmt.Errorf("%w: %q", ErrNilHandler, m.Name))
		}
		if m.Default {
			defaults++
		}
	}
	if defaults > 1 {
		errs = append(errs, fmt.Errorf("%w: found %d", ErrMultipleDefaults, defaults))
	}
	return errors.Join(errs...)
}

// Listener adapts m to a container listener using the engine codec.
func (e *Engine) Listener(m Method) listener.Func {
	return func(ctx context.Context, payload []byte) error {
		return m.call(ctx, payload, e.codec)
	}
}

// Bind registers every handler of src with c and makes sure c is running.
// Every handler sees every message. A configuration error registers nothing
// and leaves c untouched; any later failure unregisters what was added.
func (e *Engine) Bind(ctx context.Context, c api.Binder, src HandlerSource) ([]listener.Handle, error) {
	methods := src.Handlers()
	if err := Validate(methods); err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		return nil, nil
	}

	handles := make([]listener.Handle, 0, len(methods))
	rollback := func() {
		for _, h := range handles {
			c.UnregisterListener(h)
		}
	}
	for _, m := range methods {
		h, err := c.RegisterListener(e.Listener(m))
		if err != nil {
			rollback()
			return nil, fmt.Errorf("handler: bind %s: %w", m.Name, err)
		}
		handles = append(handles, h)
		e.log.Debug("handler bound", "method", m.Name, "kind", m.Kind.String(), "param", m.Param, "default", m.Default)
	}

	if c.State() == lifecycle.Unstarted {
		if err := c.Start(ctx); err != nil && !errors.Is(err, lifecycle.ErrAlreadyStarted) {
			rollback()
			return nil, fmt.Errorf("handler: start container: %w", err)
		}
	}
	return handles, nil
}
