package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		phase  Phase
		status int
	}{
		{name: "bootstrapping is healthy", phase: PhaseBootstrapping, status: http.StatusOK},
		{name: "connecting is healthy", phase: PhaseConnecting, status: http.StatusOK},
		{name: "connected is healthy", phase: PhaseConnected, status: http.StatusOK},
		{name: "draining is unavailable", phase: PhaseDraining, status: http.StatusServiceUnavailable},
		{name: "stopped is unavailable", phase: PhaseStopped, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker()
			tracker.Set(tt.phase)

			srv, err := New(tracker)
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var report Report
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
			assert.Equal(t, tt.phase, report.Phase)
		})
	}
}

func TestHealthz_MethodNotAllowed(t *testing.T) {
	srv, err := New(NewTracker())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_StartShutdown(t *testing.T) {
	srv, err := New(NewTracker())
	require.NoError(t, err)

	errCh, err := srv.Start(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, srv.Shutdown(context.Background()))

	// channel is closed without an error after graceful shutdown
	_, open := <-errCh
	assert.False(t, open)
}

func TestTracker_Advance(t *testing.T) {
	tracker := NewTracker()
	tracker.Set(PhaseConnecting)

	assert.True(t, tracker.Advance(PhaseConnecting, PhaseConnected))
	phase, _ := tracker.Snapshot()
	assert.Equal(t, PhaseConnected, phase)

	// a Ready arriving after drain began must not report the bot as connected
	tracker.Set(PhaseDraining)
	assert.False(t, tracker.Advance(PhaseConnecting, PhaseConnected))
	phase, _ = tracker.Snapshot()
	assert.Equal(t, PhaseDraining, phase)
}
