package client

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/brojonat/nodekit/service/node"
)

func TestHTTPTransport_Do(t *testing.T) {
	srv := newNodeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/x", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		w.Header().Set("X-Node", "yes")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`ok`))
	})

	tr := NewHTTPTransport(nil, nil, nil)
	resp, err := tr.Do(context.Background(), node.MustNode(srv.URL), Attempt{
		Method: http.MethodPut,
		Path:   "api/x",
		Query:  map[string][]string{"limit": {"1"}},
		Body:   []byte(`{"a":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, "yes", resp.Header.Get("X-Node"))
}

func TestHTTPTransport_DefaultsToGet(t *testing.T) {
	srv := newNodeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Content-Type"))
	})
	_, err := NewHTTPTransport(nil, nil, nil).Do(context.Background(), node.MustNode(srv.URL), Attempt{Path: "/"})
	require.NoError(t, err)
}

func TestHTTPTransport_Throttled(t *testing.T) {
	srv := newNodeServer(t, func(w http.ResponseWriter, r *http.Request) {})
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	tr := NewHTTPTransport(nil, limiter, nil)
	n := node.MustNode(srv.URL)

	_, err := tr.Do(context.Background(), n, Attempt{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Do(ctx, n, Attempt{})
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	_, err := NewHTTPTransport(nil, nil, nil).Do(context.Background(), deadNode(t), Attempt{})
	assert.Error(t, err)
}
