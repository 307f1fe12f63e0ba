// Package metrics bundles the prometheus collectors and OpenTelemetry
// instruments of one dispatch container.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	namespace          = "pluginmq"
	instrumentationLib = "github.com/srediag/plugin-mq"
)

// Metrics is safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived    prometheus.Counter
	MessagesSent        prometheus.Counter
	ListenerInvocations prometheus.Counter
	ListenerFailures    prometheus.Counter
	ReceiveErrors       prometheus.Counter
	QueueDepth          prometheus.Gauge
	Listeners           prometheus.Gauge

	tracer          trace.Tracer
	dispatchLatency metric.Float64Histogram
}

// Option configures New.
type Option func(*options)

type options struct {
	tp trace.TracerProvider
	mp metric.MeterProvider
}

// WithTracerProvider sets the provider for dispatch spans. Default is noop.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithMeterProvider sets the provider for the latency histogram. Default is noop.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

// New builds the collectors on a private registry so several containers can
// live in one process.
func New(opts ...Option) *Metrics {
	o := options{tp: tracenoop.NewTracerProvider(), mp: metricnoop.NewMeterProvider()}
	for _, fn := range opts {
		fn(&o)
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received on the inbound socket.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages sent on the outbound socket.",
		}),
		ListenerInvocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_invocations_total",
			Help:      "Listener invocations, successful or not.",
		}),
		ListenerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_failures_total",
			Help:      "Listener invocations that returned an error or panicked.",
		}),
		ReceiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Transient errors returned by the inbound socket.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handoff_queue_depth",
			Help:      "Payloads waiting in the hand-off queue.",
		}),
		Listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners",
			Help:      "Registered listeners.",
		}),
		tracer: o.tp.Tracer(instrumentationLib),
	}
	m.registry.MustRegister(
		m.MessagesReceived,
		m.MessagesSent,
		m.ListenerInvocations,
		m.ListenerFailures,
		m.ReceiveErrors,
		m.QueueDepth,
		m.Listeners,
	)

	hist, err := o.mp.Meter(instrumentationLib).Float64Histogram(
		"pluginmq.dispatch.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time to fan one message out to every listener."),
	)
	if err != nil {
		hist, _ = metricnoop.NewMeterProvider().Meter(instrumentationLib).Float64Histogram("pluginmq.dispatch.duration")
	}
	m.dispatchLatency = hist
	return m
}

// Registry exposes the prometheus registry for /metrics and health gauges.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// StartDispatch opens the span covering one receive cycle.
func (m *Metrics) StartDispatch(ctx context.Context, size int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "pluginmq.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.Int("messaging.message.body.size", size)))
}

// StartListener opens a child span for one listener invocation.
func (m *Metrics) StartListener(ctx context.Context, handle string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "pluginmq.listener",
		trace.WithAttributes(attribute.String("pluginmq.listener", handle)))
}

// ObserveDispatch records the fan-out latency of one cycle.
func (m *Metrics) ObserveDispatch(ctx context.Context, d time.Duration, listeners int) {
	m.dispatchLatency.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.Int("pluginmq.listeners", listeners)))
}
