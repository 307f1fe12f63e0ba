package api

import (
	"context"

	"github.com/srediag/plugin-mq/pkg/lifecycle"
)

// Lifecycle is the UNSTARTED -> RUNNING -> STOPPED state machine of a
// container.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() lifecycle.State
}
