// Package api defines the public contracts of plugin-mq.
package api

import "github.com/srediag/plugin-mq/pkg/listener"

// Binder is what the handler binding engine needs from a container.
type Binder interface {
	Lifecycle
	RegisterListener(fn listener.Func) (listener.Handle, error)
	UnregisterListener(h listener.Handle) bool
}

// Container is the full produced API of a dispatch container.
type Container interface {
	Binder
	Sender
	Poller
	HealthReporter
}
