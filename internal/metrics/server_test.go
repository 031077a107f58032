package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/replica/internal/engine"
)

func TestNewServer(t *testing.T) {
	server := NewServer(":9090", prometheus.NewRegistry())

	assert.NotNil(t, server)
	assert.Equal(t, ":9090", server.Addr())
}

func TestServer_ServesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)
	m.ObserveCycle(engine.CycleResult{EntityType: "users", Outcome: engine.OutcomeCommitted, Applied: 2})

	srv := httptest.NewServer(NewServer(":0", registry).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `replica_sync_cycles_total{entity_type="users",outcome="committed"} 1`)
	assert.Contains(t, string(body), `replica_sync_operations_applied_total{entity_type="users"} 2`)
}

func TestServer_UnknownPath(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", prometheus.NewRegistry()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/other")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestServer_ListenError(t *testing.T) {
	server := NewServer("256.0.0.1:bad", prometheus.NewRegistry())

	select {
	case err := <-startAsync(server):
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server error")
	case <-time.After(2 * time.Second):
		t.Fatal("expected a listen error")
	}
}

func startAsync(s *Server) <-chan error {
	errChan := make(chan error, 1)
	go func() { errChan <- s.Start(context.Background()) }()
	return errChan
}
