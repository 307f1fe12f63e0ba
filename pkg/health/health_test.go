package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/plugin-mq/pkg/lifecycle"
)

type fakeTarget struct {
	state   lifecycle.State
	running bool
	err     error
}

func (f *fakeTarget) State() lifecycle.State { return f.state }
func (f *fakeTarget) Running() bool          { return f.running }
func (f *fakeTarget) Err() error             { return f.err }

func status(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	rw := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	h.ServeHTTP(rw, req)
	return rw.Code
}

func TestHealthStates(t *testing.T) {
	cases := []struct {
		name        string
		target      fakeTarget
		live, ready int
	}{
		{"unstarted", fakeTarget{state: lifecycle.Unstarted}, 200, 503},
		{"running", fakeTarget{state: lifecycle.Running, running: true}, 200, 200},
		{"worker died", fakeTarget{state: lifecycle.Running}, 503, 503},
		{"stopped cleanly", fakeTarget{state: lifecycle.Stopped}, 200, 503},
		{"stopped on failure", fakeTarget{state: lifecycle.Stopped, err: errors.New("boom")}, 503, 503},
	}
	for _, c := range cases {
		target := c.target
		h := NewHandler(&target, nil)
		assert.Equal(t, c.live, status(t, h, "/live"), c.name)
		assert.Equal(t, c.ready, status(t, h, "/ready"), c.name)
	}
}

func TestMuxServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	target := &fakeTarget{state: lifecycle.Running, running: true}
	mux := NewMux(NewHandler(target, reg), reg)

	assert.Equal(t, 200, status(t, mux, "/live"))
	assert.Equal(t, 200, status(t, mux, "/ready"))

	rw := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/metrics", nil)
	require.NoError(t, err)
	mux.ServeHTTP(rw, req)
	assert.Equal(t, 200, rw.Code)
	assert.Contains(t, rw.Body.String(), "pluginmq_healthcheck_status")

	target.running = false
	assert.Equal(t, 503, status(t, mux, "/ready"))
}
