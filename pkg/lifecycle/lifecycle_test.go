package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMachineHappyPath(t *testing.T) {
	var m Machine
	var seen []string
	m.OnTransition(func(from, to State) { seen = append(seen, from.String()+">"+to.String()) })

	assert.Equal(t, Unstarted, m.Current())
	assert.ErrorIs(t, m.CheckRunning(), ErrNotStarted)
	assert.Nil(t, m.BeginStart())
	assert.ErrorIs(t, m.BeginStart(), ErrAlreadyStarted)
	m.FinishStart(true)
	assert.Nil(t, m.CheckRunning())
	assert.True(t, m.BeginStop())
	assert.ErrorIs(t, m.CheckUsable(), ErrStopped)
	assert.False(t, m.BeginStop())
	m.FinishStop()
	assert.Equal(t, Stopped, m.Current())
	assert.ErrorIs(t, m.BeginStart(), ErrStopped)

	assert.Equal(t, []string{
		"UNSTARTED>STARTING", "STARTING>RUNNING", "RUNNING>STOPPING", "STOPPING>STOPPED",
	}, seen)
}

func TestMachineFailedStartIsTerminal(t *testing.T) {
	var m Machine
	assert.Nil(t, m.BeginStart())
	m.FinishStart(false)
	assert.Equal(t, Stopped, m.Current())
	assert.False(t, m.BeginStop())
	assert.ErrorIs(t, m.BeginStart(), ErrStopped)
}

func TestMachineStopBeforeStart(t *testing.T) {
	var m Machine
	assert.Nil(t, m.CheckUsable())
	assert.False(t, m.BeginStop())
	assert.Equal(t, Stopped, m.Current())
	assert.ErrorIs(t, m.CheckUsable(), ErrStopped)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "RUNNING", Running.String())
	assert.Equal(t, "State(9)", State(9).String())
}
