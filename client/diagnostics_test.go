package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ListNodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/nodes", r.URL.Path)

		writeJSON(w, http.StatusOK, map[string]any{
			"chains": []map[string]any{{
				"chain":   "adm",
				"allowed": 1,
				"nodes": []map[string]any{
					{"url": "https://a.example.com", "status": "online", "supports_ws": true, "priority": 2, "allowed": true},
					{"url": "https://b.example.com", "status": "offline", "priority": 1},
				},
			}},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	chains, err := c.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, chains, 1)

	assert.Equal(t, "adm", chains[0].Chain)
	assert.Equal(t, 1, chains[0].Allowed)
	require.Len(t, chains[0].Nodes, 2)
	assert.True(t, chains[0].Nodes[0].SupportsWS)
	assert.Equal(t, "offline", chains[0].Nodes[1].Status)
	assert.False(t, chains[0].Nodes[1].Allowed)
}

func TestClient_ChainNodesNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/nodes/btc", r.URL.Path)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": `chain "btc" is not managed`})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.ChainNodes(context.Background(), "btc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not managed")
}

func TestClient_TimeDelta(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/time-delta/adm", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"chain": "adm", "known": true, "delta_ms": -1500})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	delta, err := c.TimeDelta(context.Background(), "adm")
	require.NoError(t, err)
	assert.True(t, delta.Known)
	assert.Equal(t, -1500*time.Millisecond, delta.Delta())
}

func TestClient_HealthSchedule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health-schedules/doge", r.URL.Path)
		switch r.Method {
		case http.MethodPut:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "1m30s", body["interval"])
			writeJSON(w, http.StatusOK, map[string]string{"chain": "doge", "interval": body["interval"]})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	require.NoError(t, c.UpsertHealthSchedule(context.Background(), "doge", 90*time.Second))
	require.NoError(t, c.DeleteHealthSchedule(context.Background(), "doge"))
}

func TestClient_PlainErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("scheduling disabled"))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	err := c.DeleteHealthSchedule(context.Background(), "adm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "scheduling disabled")
}
