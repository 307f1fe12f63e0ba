// Package lifecycle provides the container state machine:
// UNSTARTED -> RUNNING -> STOPPED, with transient STARTING and STOPPING.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
)

// State is a container lifecycle state.
type State uint32

const (
	Unstarted State = iota
	Starting
	Running
	Stopping
	Stopped
)

var stateNames = [...]string{"UNSTARTED", "STARTING", "RUNNING", "STOPPING", "STOPPED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// Usage errors returned for operations outside their valid state.
var (
	ErrAlreadyStarted = errors.New("lifecycle: already started")
	ErrNotStarted     = errors.New("lifecycle: not started")
	ErrStopped        = errors.New("lifecycle: stopped")
)

// Hook observes every transition. It runs with the machine unlocked.
type Hook func(from, to State)

// Machine guards the state. The zero value is an UNSTARTED machine.
type Machine struct {
	mu    sync.RWMutex
	state State
	hooks []Hook
}

// OnTransition adds a hook.
func (m *Machine) OnTransition(h Hook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, h)
	m.mu.Unlock()
}

// Current returns the state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// BeginStart moves UNSTARTED to STARTING.
func (m *Machine) BeginStart() error {
	return m.transition(func(s State) error {
		switch s {
		case Unstarted:
			return nil
		case Stopping, Stopped:
			return ErrStopped
		default:
			return ErrAlreadyStarted
		}
	}, Starting)
}

// FinishStart moves STARTING to RUNNING, or to STOPPED when ok is false.
func (m *Machine) FinishStart(ok bool) {
	to := Running
	if !ok {
		to = Stopped
	}
	_ = m.transition(expect(Starting), to)
}

// BeginStop moves RUNNING to STOPPING and reports true, meaning the caller
// owns the shutdown. UNSTARTED goes straight to STOPPED. Every other state
// reports false.
func (m *Machine) BeginStop() bool {
	if m.transition(expect(Running), Stopping) == nil {
		return true
	}
	_ = m.transition(expect(Unstarted), Stopped)
	return false
}

// FinishStop moves STOPPING to STOPPED.
func (m *Machine) FinishStop() {
	_ = m.transition(expect(Stopping), Stopped)
}

// CheckUsable returns ErrStopped once stopping has begun.
func (m *Machine) CheckUsable() error {
	switch m.Current() {
	case Stopping, Stopped:
		return ErrStopped
	}
	return nil
}

// CheckRunning returns nil only in RUNNING.
func (m *Machine) CheckRunning() error {
	switch m.Current() {
	case Running:
		return nil
	case Stopping, Stopped:
		return ErrStopped
	default:
		return ErrNotStarted
	}
}

func expect(want State) func(State) error {
	return func(s State) error {
		if s != want {
			return fmt.Errorf("lifecycle: invalid transition from %s", s)
		}
		return nil
	}
}

func (m *Machine) transition(check func(State) error, to State) error {
	m.mu.Lock()
	from := m.state
	if err := check(from); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = to
	hooks := m.hooks
	m.mu.Unlock()
	for _, h := range hooks {
		h(from, to)
	}
	return nil
}
