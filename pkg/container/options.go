package container

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/plugin-mq/pkg/codec"
	"github.com/srediag/plugin-mq/pkg/transport"
)

// ErrorHandler receives every per-message failure: listener errors and
// panics as *ListenerError, and the error that made the container stop
// itself.
type ErrorHandler func(err error)

// Option configures New.
type Option func(*options)

type options struct {
	dialer  transport.Dialer
	codec   codec.Codec
	onError ErrorHandler
	logger  *slog.Logger
	tp      trace.TracerProvider
	mp      metric.MeterProvider
}

// WithDialer replaces the go-zeromq socket factory.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithCodec sets the codec used by SendValue. Default is JSON.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithErrorHandler installs a hook for per-message failures. It runs on the
// receive worker and must not block.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.onError = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}
