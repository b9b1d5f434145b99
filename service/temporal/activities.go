package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gocache "github.com/patrickmn/go-cache"

	"github.com/brojonat/nodekit/client"
	"github.com/brojonat/nodekit/service/metrics"
	"github.com/brojonat/nodekit/service/node"
)

// NodeHealthInput contains the input parameters for a health sweep of one chain.
type NodeHealthInput struct {
	Chain string `json:"chain"`
}

// NodeHealthResult summarizes a sweep.
type NodeHealthResult struct {
	Chain   string    `json:"chain"`
	Probed  int       `json:"probed"`
	Online  int       `json:"online"`
	Offline int       `json:"offline"`
	SweptAt time.Time `json:"swept_at"`
	Error   *string   `json:"error,omitempty"`
}

// ProbeNodesInput contains parameters for the ProbeNodes activity.
type ProbeNodesInput struct {
	Chain string `json:"chain"`
}

// NodeProbe is the outcome of probing one node.
type NodeProbe struct {
	URL        string        `json:"url"`
	Healthy    bool          `json:"healthy"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	// WebSocket is nil for nodes that do not advertise the realtime transport.
	WebSocket *bool  `json:"websocket,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ProbeNodesResult contains the result of the ProbeNodes activity.
type ProbeNodesResult struct {
	Chain    string      `json:"chain"`
	Probes   []NodeProbe `json:"probes"`
	ProbedAt time.Time   `json:"probed_at"`
}

// ApplyHealthInput contains parameters for the ApplyHealth activity.
type ApplyHealthInput struct {
	Chain    string      `json:"chain"`
	Probes   []NodeProbe `json:"probes"`
	ProbedAt time.Time   `json:"probed_at"`
}

// ApplyHealthResult contains the result of the ApplyHealth activity.
type ApplyHealthResult struct {
	Online  int `json:"online"`
	Offline int `json:"offline"`
	// Order is the pool's node order after the sweep.
	Order []string `json:"order"`
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	RecordNodeStatus(ctx context.Context, chain node.Chain, url string, status node.Status, at time.Time) error
}

// Dialer opens realtime connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// ActivitiesConfig holds the dependencies of Activities. Store, Dialer and
// Metrics may be nil.
type ActivitiesConfig struct {
	Services     map[node.Chain]*client.Service
	Store        StoreInterface
	Dialer       Dialer
	HealthPath   string
	HealthWSPath string
	ProbeTimeout time.Duration
	// WSCacheTTL bounds how long a realtime probe result is reused.
	WSCacheTTL time.Duration
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	services     map[node.Chain]*client.Service
	store        StoreInterface
	dialer       Dialer
	healthPath   string
	healthWSPath string
	probeTimeout time.Duration
	wsResults    *gocache.Cache
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
func NewActivities(cfg ActivitiesConfig) *Activities {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/api/node/status"
	}
	if cfg.HealthWSPath == "" {
		cfg.HealthWSPath = "/"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.WSCacheTTL <= 0 {
		cfg.WSCacheTTL = 5 * time.Minute
	}
	return &Activities{
		services:     cfg.Services,
		store:        cfg.Store,
		dialer:       cfg.Dialer,
		healthPath:   cfg.HealthPath,
		healthWSPath: cfg.HealthWSPath,
		probeTimeout: cfg.ProbeTimeout,
		wsResults:    gocache.New(cfg.WSCacheTTL, 2*cfg.WSCacheTTL),
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

func (a *Activities) service(chain string) (*client.Service, error) {
	c, err := node.ParseChain(chain)
	if err != nil {
		return nil, err
	}
	svc, ok := a.services[c]
	if !ok {
		return nil, fmt.Errorf("chain %q is not managed by this worker", chain)
	}
	return svc, nil
}

// ProbeNodes checks every node of the chain concurrently with a single HTTP
// request each, plus a realtime dial for nodes that advertise one. Probes
// never change node status.
func (a *Activities) ProbeNodes(ctx context.Context, input ProbeNodesInput) (*ProbeNodesResult, error) {
	svc, err := a.service(input.Chain)
	if err != nil {
		return nil, err
	}

	nodes := svc.Pool().Nodes()
	a.logger.DebugContext(ctx, "probing nodes", "chain", input.Chain, "count", len(nodes))

	probes := make([]NodeProbe, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n *node.Node) {
			defer wg.Done()
			probes[i] = a.probe(ctx, svc, n)
		}(i, n)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	healthy := 0
	for _, p := range probes {
		if p.Healthy {
			healthy++
		}
	}
	a.logger.InfoContext(ctx, "probed nodes",
		"chain", input.Chain,
		"count", len(probes),
		"healthy", healthy,
	)

	return &ProbeNodesResult{Chain: input.Chain, Probes: probes, ProbedAt: time.Now()}, nil
}

func (a *Activities) probe(ctx context.Context, svc *client.Service, n *node.Node) NodeProbe {
	p := NodeProbe{URL: n.URL()}

	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	start := time.Now()
	resp, err := svc.Router().Probe(probeCtx, n, client.Request{Method: http.MethodGet, Path: a.healthPath})
	p.Latency = time.Since(start)
	switch {
	case err != nil:
		p.Error = err.Error()
	case resp.StatusCode >= http.StatusInternalServerError:
		p.StatusCode = resp.StatusCode
		p.Error = fmt.Sprintf("status %d", resp.StatusCode)
	default:
		p.StatusCode = resp.StatusCode
		p.Healthy = true
	}
	if a.metrics != nil {
		a.metrics.RecordProbe(string(svc.Chain()), "http", p.Healthy, p.Latency.Seconds())
	}

	if n.SupportsWS() {
		ok := a.probeWS(probeCtx, svc.Chain(), n)
		p.WebSocket = &ok
	}
	return p
}

// probeWS dials the node's socket endpoint. Results are cached per URL.
func (a *Activities) probeWS(ctx context.Context, chain node.Chain, n *node.Node) bool {
	endpoint := n.WSEndpoint(a.healthWSPath)
	if v, found := a.wsResults.Get(endpoint); found {
		return v.(bool)
	}

	start := time.Now()
	conn, _, err := a.dialer.DialContext(ctx, endpoint, nil)
	ok := err == nil
	if ok {
		conn.Close()
	} else {
		a.logger.DebugContext(ctx, "websocket probe failed", "node", n.URL(), "error", err)
	}
	if a.metrics != nil {
		a.metrics.RecordProbe(string(chain), "websocket", ok, time.Since(start).Seconds())
	}

	if ctx.Err() == nil {
		a.wsResults.SetDefault(endpoint, ok)
	}
	return ok
}

// ApplyHealth marks probed nodes online or offline, reorders the pool with
// healthy nodes first (each group by priority) and records the statuses when
// a store is configured. Nodes no longer in the pool are ignored.
func (a *Activities) ApplyHealth(ctx context.Context, input ApplyHealthInput) (*ApplyHealthResult, error) {
	svc, err := a.service(input.Chain)
	if err != nil {
		return nil, err
	}
	pool := svc.Pool()
	at := input.ProbedAt
	if at.IsZero() {
		at = time.Now()
	}

	result := &ApplyHealthResult{}
	healthy := make(map[string]bool, len(input.Probes))
	for _, p := range input.Probes {
		n, ok := pool.Find(p.URL)
		if !ok {
			continue
		}
		healthy[n.URL()] = p.Healthy
		status := node.StatusOffline
		if p.Healthy {
			status = node.StatusOnline
			pool.MarkOnline(n)
			result.Online++
		} else {
			pool.MarkOffline(n)
			result.Offline++
		}

		if a.store != nil {
			if err := a.store.RecordNodeStatus(ctx, pool.Chain(), n.URL(), status, at); err != nil {
				a.logger.ErrorContext(ctx, "failed to record node status",
					"chain", input.Chain,
					"node", n.URL(),
					"error", err,
				)
				return nil, fmt.Errorf("failed to record node status: %w", err)
			}
		}
	}

	order := node.SortByPriority(pool.Nodes())
	sort.SliceStable(order, func(i, j int) bool {
		return healthy[order[i].URL()] && !healthy[order[j].URL()]
	})
	pool.Refresh(order)

	result.Order = make([]string, len(order))
	for i, n := range order {
		result.Order[i] = n.URL()
	}

	a.logger.InfoContext(ctx, "applied node health",
		"chain", input.Chain,
		"online", result.Online,
		"offline", result.Offline,
	)
	return result, nil
}
