// Package health exposes container liveness, readiness and metrics over HTTP.
package health

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/plugin-mq/api"
	"github.com/srediag/plugin-mq/pkg/lifecycle"
)

const (
	// LivenessCheck fails once the receive worker died while RUNNING, or the
	// container stopped itself after a failure.
	LivenessCheck = "receive-loop"
	// ReadinessCheck passes only while RUNNING with a live worker.
	ReadinessCheck = "container-running"

	namespace = "pluginmq"
)

var (
	errWorkerDown = errors.New("receive worker is not running")
	errNotRunning = errors.New("container is not running")
)

// NewHandler builds the /live and /ready handler for target. When reg is
// non-nil every check result is also exported as a gauge.
func NewHandler(target api.HealthReporter, reg prometheus.Registerer) healthcheck.Handler {
	var h healthcheck.Handler
	if reg != nil {
		h = healthcheck.NewMetricsHandler(reg, namespace)
	} else {
		h = healthcheck.NewHandler()
	}
	h.AddLivenessCheck(LivenessCheck, func() error { return live(target) })
	h.AddReadinessCheck(ReadinessCheck, func() error { return ready(target) })
	return h
}

func live(t api.HealthReporter) error {
	switch t.State() {
	case lifecycle.Running:
		if !t.Running() {
			return errWorkerDown
		}
	case lifecycle.Stopping, lifecycle.Stopped:
		if err := t.Err(); err != nil {
			return fmt.Errorf("stopped after failure: %w", err)
		}
	}
	return nil
}

func ready(t api.HealthReporter) error {
	if t.State() != lifecycle.Running {
		return fmt.Errorf("%w: %s", errNotRunning, t.State())
	}
	if !t.Running() {
		return errWorkerDown
	}
	return nil
}

// NewMux serves /live and /ready from h and /metrics from g.
func NewMux(h healthcheck.Handler, g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", h.LiveEndpoint)
	mux.HandleFunc("/ready", h.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}
