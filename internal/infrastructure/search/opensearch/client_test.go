package opensearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-MMP/pkg/errors"
)

func newTestServer(statusCode int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
	}))
}

func newTestConfig(addr string) config.OpenSearchConfig {
	return config.OpenSearchConfig{Addresses: []string{addr}, Index: "mmp-transforms"}
}

// newTestClient skips the initial ping and the health-check goroutine.
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	osClient, err := opensearchgo.NewClient(opensearchgo.Config{Addresses: []string{serverURL}})
	require.NoError(t, err)
	return newClient(osClient, logging.NewNopLogger())
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(newTestConfig("http://localhost:9200")))

	err := ValidateConfig(config.OpenSearchConfig{Index: "x"})
	assert.ErrorContains(t, err, "addresses is empty")

	err = ValidateConfig(config.OpenSearchConfig{Addresses: []string{"http://localhost:9200"}})
	assert.ErrorContains(t, err, "index is empty")

	cfg := newTestConfig("http://localhost:9200")
	cfg.BulkBatchSize = -1
	assert.Error(t, ValidateConfig(cfg))
}

func TestNewClient_Success(t *testing.T) {
	server := newTestServer(http.StatusOK)
	defer server.Close()

	client, err := NewClient(context.Background(), newTestConfig(server.URL), logging.NewNopLogger())
	require.NoError(t, err)
	assert.True(t, client.IsHealthy())
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	server := newTestServer(http.StatusServiceUnavailable)
	defer server.Close()

	cfg := newTestConfig(server.URL)
	client, err := NewClient(context.Background(), cfg, logging.NewNopLogger())
	assert.Nil(t, client)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSearchError))
	assert.ErrorContains(t, err, "opensearch connection failed")
}

func TestClient_PingTracksHealth(t *testing.T) {
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.Ping(context.Background()))
	assert.True(t, client.IsHealthy())

	failing.Store(true)
	assert.Error(t, client.Ping(context.Background()))
	assert.False(t, client.IsHealthy())
}
