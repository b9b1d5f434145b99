package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/brojonat/nodekit/service/node"
)

const maxResponseBytes = 8 << 20

// Request describes one logical call. Body, when set, is sent as JSON.
type Request struct {
	Method        string
	Path          string
	Query         url.Values
	Body          any
	NeedsRealtime bool
}

// Attempt is what a Transport sends to one node. Body is already encoded.
type Attempt struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Response is a raw node response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport delivers a single attempt to a single node. Returned errors are
// treated as network failures of that node, except ErrThrottled.
type Transport interface {
	Do(ctx context.Context, n *node.Node, a Attempt) (*Response, error)
}

// HTTPTransport is the JSON-over-HTTP Transport.
type HTTPTransport struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewHTTPTransport creates a transport. httpClient.Timeout bounds each
// attempt. limiter may be nil for no client-side rate limiting.
func NewHTTPTransport(httpClient *http.Client, limiter *rate.Limiter, logger *slog.Logger) *HTTPTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &HTTPTransport{
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

// Do performs one HTTP exchange.
func (t *HTTPTransport) Do(ctx context.Context, n *node.Node, a Attempt) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrThrottled, err)
		}
	}

	method := a.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if a.Body != nil {
		body = bytes.NewReader(a.Body)
	}

	endpoint := n.Endpoint(a.Path, a.Query)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	t.logger.DebugContext(ctx, "node responded",
		"node", n.URL(),
		"method", method,
		"path", a.Path,
		"status", resp.StatusCode,
		"bytes", len(raw),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
	}, nil
}
