package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/nodekit/service/metrics"
	"github.com/brojonat/nodekit/service/node"
)

// NodeMarker is the part of a node pool the router updates.
type NodeMarker interface {
	MarkOffline(n *node.Node)
}

// ResponseHandler inspects a response from a reachable node. A non-nil error
// ends the call without trying another node.
type ResponseHandler func(n *node.Node, resp *Response) error

// Outcome describes how a call went, whether or not it succeeded.
type Outcome struct {
	// Node served the final response; nil when no node answered.
	Node     *node.Node
	Attempts int
	Demoted  []*node.Node
}

// Router delivers a request to the first node that answers, in order,
// demoting every node that fails at the network level on the way.
type Router struct {
	chain     node.Chain
	transport Transport
	marker    NodeMarker
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewRouter creates a router. marker and m may be nil.
func NewRouter(chain node.Chain, transport Transport, marker NodeMarker, logger *slog.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Router{
		chain:     chain,
		transport: transport,
		marker:    marker,
		logger:    logger,
		metrics:   m,
	}
}

// Send tries nodes strictly in order, one at a time. Network failures demote
// the node and move on; anything returned by handle, and cancellation of ctx,
// ends the call immediately. Each node is tried at most once.
//
// When every node fails at the network level the error matches both
// ErrNoNodesAvailable and the last *NetworkError.
func (r *Router) Send(ctx context.Context, nodes []*node.Node, req Request, handle ResponseHandler) (*Outcome, error) {
	out := &Outcome{}
	if len(nodes) == 0 {
		return out, ErrNoNodesAvailable
	}

	attempt, err := buildAttempt(req)
	if err != nil {
		return out, err
	}

	var lastErr error
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return out, cancelled(err)
		}

		out.Attempts++
		start := time.Now()
		resp, err := r.transport.Do(ctx, n, attempt)
		if err == nil && isGatewayFailure(resp.StatusCode) {
			err = fmt.Errorf("gateway status %d", resp.StatusCode)
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				r.record(n, "cancelled", start)
				return out, cancelled(ctxErr)
			}
			if errors.Is(err, ErrThrottled) {
				r.record(n, "throttled", start)
				return out, err
			}

			r.record(n, "network_error", start)
			netErr := &NetworkError{Node: n.URL(), Err: err}
			lastErr = netErr
			r.demote(ctx, n, netErr, out.Attempts)
			out.Demoted = append(out.Demoted, n)
			continue
		}

		out.Node = n
		if err := handle(n, resp); err != nil {
			r.record(n, "app_error", start)
			return out, err
		}
		r.record(n, "success", start)
		return out, nil
	}

	return out, fmt.Errorf("%w: %w", ErrNoNodesAvailable, lastErr)
}

// Probe sends req to n once. It never demotes n and never rotates.
func (r *Router) Probe(ctx context.Context, n *node.Node, req Request) (*Response, error) {
	attempt, err := buildAttempt(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := r.transport.Do(ctx, n, attempt)
	if err == nil && isGatewayFailure(resp.StatusCode) {
		err = fmt.Errorf("gateway status %d", resp.StatusCode)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}
		r.record(n, "network_error", start)
		return nil, &NetworkError{Node: n.URL(), Err: err}
	}
	r.record(n, "success", start)
	return resp, nil
}

func (r *Router) demote(ctx context.Context, n *node.Node, err error, attempt int) {
	r.logger.WarnContext(ctx, "node failed, trying next",
		"chain", r.chain,
		"node", n.URL(),
		"attempt", attempt,
		"error", err,
	)
	if r.marker != nil {
		r.marker.MarkOffline(n)
	}
	if r.metrics != nil {
		r.metrics.RecordNodeDemotion(string(r.chain), n.URL())
	}
}

func (r *Router) record(n *node.Node, outcome string, start time.Time) {
	if r.metrics != nil {
		r.metrics.RecordNodeRequest(string(r.chain), n.URL(), outcome, time.Since(start).Seconds())
	}
}

func buildAttempt(req Request) (Attempt, error) {
	a := Attempt{Method: req.Method, Path: req.Path, Query: req.Query}
	if req.Body == nil {
		return a, nil
	}
	if raw, ok := req.Body.(json.RawMessage); ok {
		a.Body = raw
		return a, nil
	}
	body, err := json.Marshal(req.Body)
	if err != nil {
		return a, fmt.Errorf("failed to marshal request body: %w", err)
	}
	a.Body = body
	return a, nil
}

// isGatewayFailure reports statuses produced by a proxy in front of a node
// whose backend is unreachable.
func isGatewayFailure(code int) bool {
	return code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}
