package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/nodekit/service/clock"
	"github.com/brojonat/nodekit/service/metrics"
	"github.com/brojonat/nodekit/service/node"
)

// Service is the single entry point for talking to a chain's nodes. It is
// safe for concurrent use; independent calls never wait on each other.
//
// The current node list starts empty, is filled from the pool at
// construction, is refreshed after every call and on every pool event, and is
// cleared by Close.
type Service struct {
	chain   node.Chain
	pool    *node.Pool
	router  *Router
	tracker *clock.Tracker
	epoch   time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	refresh func(ctx context.Context)

	mu          sync.RWMutex
	current     []*node.Node
	unsubscribe func()
	closed      bool
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEpoch sets the epoch used to decode node timestamps.
func WithEpoch(epoch time.Time) Option {
	return func(s *Service) { s.epoch = epoch }
}

// WithTracker replaces the clock delta tracker, mainly to inject a clock.
func WithTracker(t *clock.Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithRefreshHook registers fn to run after every call that succeeded or
// exhausted its nodes.
// It runs on the calling goroutine before the call returns, so slow work
// belongs in a goroutine started by fn.
func WithRefreshHook(fn func(ctx context.Context)) Option {
	return func(s *Service) { s.refresh = fn }
}

// New creates a Service over pool using transport for every attempt.
func New(pool *node.Pool, transport Transport, opts ...Option) *Service {
	s := &Service{
		chain:   pool.Chain(),
		pool:    pool,
		tracker: clock.NewTracker(nil),
		epoch:   clock.AdamantEpoch,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = NewRouter(s.chain, transport, pool, s.logger, s.metrics)

	s.unsubscribe = pool.Subscribe(func(node.Event) { s.updateCurrentNodes() })
	s.updateCurrentNodes()
	return s
}

func (s *Service) Chain() node.Chain { return s.chain }
func (s *Service) Pool() *node.Pool  { return s.pool }
func (s *Service) Router() *Router   { return s.router }

// CurrentNodes returns the cached list of allowed nodes.
func (s *Service) CurrentNodes() []*node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*node.Node(nil), s.current...)
}

// LastTimeDelta returns the most recent local minus node clock delta.
func (s *Service) LastTimeDelta() (time.Duration, bool) {
	return s.tracker.Last()
}

// Close detaches the service from its pool and clears the node list.
// Calls made after Close fail with ErrNoNodesAvailable.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.unsubscribe()
	s.current = nil
}

func (s *Service) updateCurrentNodes() {
	allowed := s.pool.AllowedNodes(false)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.current = allowed
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetAllowedNodes(string(s.chain), len(allowed))
	}
}

func (s *Service) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Do runs one logical call. decode receives the body of a successful
// response; its error is returned as a *DecodeError.
func (s *Service) Do(ctx context.Context, req Request, decode func(body []byte) error) error {
	var nodes []*node.Node
	if !s.isClosed() {
		nodes = s.pool.AllowedNodes(req.NeedsRealtime)
	}

	outcome, err := s.router.Send(ctx, nodes, req, func(n *node.Node, resp *Response) error {
		env, hasEnv := parseEnvelope(resp.Body)
		if appErr := failure(resp.StatusCode, env, hasEnv); appErr != nil {
			return appErr
		}
		if decode != nil {
			if err := decode(resp.Body); err != nil {
				return &DecodeError{Err: err}
			}
		}
		if hasEnv && env.NodeTimestamp != nil {
			delta := s.tracker.ObserveTimestamp(s.epoch, *env.NodeTimestamp)
			if s.metrics != nil {
				s.metrics.SetClockDelta(string(s.chain), delta.Seconds())
			}
		}
		return nil
	})

	if s.refresh != nil && (err == nil || errors.Is(err, ErrNoNodesAvailable)) {
		s.refresh(ctx)
	}
	s.updateCurrentNodes()
	s.finish(ctx, req, outcome, err)
	return err
}

func (s *Service) finish(ctx context.Context, req Request, outcome *Outcome, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrRequestCancelled):
		result = "cancelled"
	case errors.Is(err, ErrNoNodesAvailable):
		result = "no_nodes"
	default:
		result = "app_error"
	}
	if s.metrics != nil {
		s.metrics.RecordCall(string(s.chain), result)
	}

	attrs := []any{
		"chain", s.chain,
		"path", req.Path,
		"attempts", outcome.Attempts,
		"demoted", len(outcome.Demoted),
	}
	if outcome.Node != nil {
		attrs = append(attrs, "node", outcome.Node.URL())
	}
	if err != nil {
		s.logger.DebugContext(ctx, "call failed", append(attrs, "result", result, "error", err)...)
		return
	}
	s.logger.DebugContext(ctx, "call succeeded", attrs...)
}

// Call performs req and decodes the response body into T.
func Call[T any](ctx context.Context, s *Service, req Request) (T, error) {
	var out T
	err := s.Do(ctx, req, func(body []byte) error {
		return json.Unmarshal(body, &out)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
