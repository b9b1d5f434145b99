package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/nodekit/client"
	natspkg "github.com/brojonat/nodekit/service/nats"
	"github.com/brojonat/nodekit/service/metrics"
	"github.com/brojonat/nodekit/service/node"
	"github.com/brojonat/nodekit/service/temporal"
)

type fixture struct {
	adm       *node.Pool
	doge      *node.Pool
	scheduler *temporal.MockScheduler
	server    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	adm := node.NewPool(node.ChainADM, []*node.Node{
		node.MustNode("https://a.example.com", node.WithWebSocket(), node.WithPriority(2)),
		node.MustNode("https://b.example.com", node.WithPriority(1)),
	}, nil)
	doge := node.NewPool(node.ChainDOGE, nil, nil)

	transport := client.NewHTTPTransport(&http.Client{Timeout: time.Second}, nil, nil)
	admSvc := client.New(adm, transport)
	dogeSvc := client.New(doge, transport)
	t.Cleanup(admSvc.Close)
	t.Cleanup(dogeSvc.Close)

	scheduler := temporal.NewMockScheduler()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	srv := New(":0", []*client.Service{admSvc, dogeSvc}, scheduler, NewPoolEventSource(adm, doge), m, logger)

	return &fixture{adm: adm, doge: doge, scheduler: scheduler, server: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestListNodes(t *testing.T) {
	f := newFixture(t)
	b, _ := f.adm.Find("https://b.example.com")
	f.adm.MarkOffline(b)

	rr := f.do(t, "GET", "/api/v1/nodes", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Chains []client.ChainView `json:"chains"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Chains, 2)

	adm := resp.Chains[0]
	assert.Equal(t, "adm", adm.Chain)
	assert.Equal(t, 1, adm.Allowed)
	require.Len(t, adm.Nodes, 2)
	assert.Equal(t, client.NodeView{URL: "https://a.example.com", Status: "unknown", SupportsWS: true, Priority: 2, Allowed: true}, adm.Nodes[0])
	assert.Equal(t, "offline", adm.Nodes[1].Status)
	assert.False(t, adm.Nodes[1].Allowed)

	assert.Equal(t, "doge", resp.Chains[1].Chain)
	assert.Empty(t, resp.Chains[1].Nodes)
}

func TestChainNodes(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		expectedError  string
	}{
		{name: "managed chain", path: "/api/v1/nodes/adm", expectedStatus: http.StatusOK},
		{name: "case insensitive", path: "/api/v1/nodes/ADM", expectedStatus: http.StatusOK},
		{name: "known but unmanaged", path: "/api/v1/nodes/dash", expectedStatus: http.StatusNotFound, expectedError: "not managed"},
		{name: "unknown chain", path: "/api/v1/nodes/btc", expectedStatus: http.StatusBadRequest, expectedError: "unknown chain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, "GET", tt.path, "")
			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedError != "" {
				var resp map[string]string
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.Contains(t, resp["error"], tt.expectedError)
				return
			}
			var view client.ChainView
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
			assert.Equal(t, "adm", view.Chain)
			assert.Len(t, view.Nodes, 2)
		})
	}
}

func TestTimeDelta_Unknown(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, "GET", "/api/v1/time-delta/adm", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var delta client.TimeDelta
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&delta))
	assert.Equal(t, "adm", delta.Chain)
	assert.False(t, delta.Known)
	assert.Zero(t, delta.DeltaMS)
}

func TestHealthSchedules(t *testing.T) {
	f := newFixture(t)

	t.Run("upsert", func(t *testing.T) {
		rr := f.do(t, "PUT", "/api/v1/health-schedules/adm", `{"interval":"90s"}`)
		require.Equal(t, http.StatusOK, rr.Code)

		d, ok := f.scheduler.Interval("adm")
		require.True(t, ok)
		assert.Equal(t, 90*time.Second, d)
	})

	t.Run("invalid interval", func(t *testing.T) {
		for _, body := range []string{`{"interval":"soon"}`, `{"interval":"1s"}`, `{"interval":"48h"}`, `not json`} {
			rr := f.do(t, "PUT", "/api/v1/health-schedules/adm", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		}
	})

	t.Run("scheduler failure", func(t *testing.T) {
		f.scheduler.SetUpsertError(errors.New("temporal down"))
		defer f.scheduler.SetUpsertError(nil)

		rr := f.do(t, "PUT", "/api/v1/health-schedules/doge", `{"interval":"1m"}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rr := f.do(t, "DELETE", "/api/v1/health-schedules/adm", "")
		assert.Equal(t, http.StatusNoContent, rr.Code)

		_, ok := f.scheduler.Interval("adm")
		assert.False(t, ok)

		rr = f.do(t, "DELETE", "/api/v1/health-schedules/adm", "")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestHealthSchedules_DisabledWithoutScheduler(t *testing.T) {
	pool := node.NewPool(node.ChainADM, nil, nil)
	svc := client.New(pool, client.NewHTTPTransport(nil, nil, nil))
	defer svc.Close()

	srv := New(":0", []*client.Service{svc}, nil, nil, nil, nil)
	req := httptest.NewRequest("PUT", "/api/v1/health-schedules/adm", strings.NewReader(`{"interval":"1m"}`))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = f.do(t, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, "OPTIONS", "/api/v1/nodes", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamNodes(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/stream/nodes/adm", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	event, data := readEvent(t, reader)
	assert.Equal(t, "connected", event)
	assert.Contains(t, data, `"adm"`)

	// Events of other chains are filtered out.
	f.doge.Refresh(nil)
	a, _ := f.adm.Find("https://a.example.com")
	f.adm.MarkOffline(a)

	event, data = readEvent(t, reader)
	assert.Equal(t, "node", event)

	var ev natspkg.NodeEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "adm", ev.Chain)
	assert.Equal(t, "status", ev.Kind)
	assert.Equal(t, "https://a.example.com", ev.URL)
	assert.Equal(t, "offline", ev.Status)
}

func TestStreamNodes_UnmanagedChain(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, "GET", "/api/v1/stream/nodes/dash", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, "GET", "/api/v1/stream/nodes/btc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPoolEventSource_ClosesOnCancel(t *testing.T) {
	pool := node.NewPool(node.ChainADM, []*node.Node{node.MustNode("https://a.example.com")}, nil)
	source := NewPoolEventSource(pool)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := source.Subscribe(ctx, "")
	require.NoError(t, err)

	pool.Refresh(pool.Nodes())
	ev := <-events
	assert.Equal(t, "refresh", ev.Kind)
	assert.Equal(t, 1, ev.Count)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	// Events after cancel do not panic.
	pool.Refresh(nil)
}
