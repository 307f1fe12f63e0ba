package api

import "github.com/srediag/plugin-mq/pkg/lifecycle"

// HealthReporter feeds liveness and readiness checks.
type HealthReporter interface {
	State() lifecycle.State
	// Running reports whether the receive worker is alive.
	Running() bool
	// Err returns the error that stopped the container on its own, if any.
	Err() error
}
