package node

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// EventKind distinguishes single-node status changes from whole-list swaps.
type EventKind string

const (
	EventStatus  EventKind = "status"
	EventRefresh EventKind = "refresh"
)

// Event describes a change to a pool. URL and Status are empty for refresh events.
type Event struct {
	Chain  Chain     `json:"chain"`
	Kind   EventKind `json:"kind"`
	URL    string    `json:"url,omitempty"`
	Status string    `json:"status,omitempty"`
	Count  int       `json:"count"`
	At     time.Time `json:"at"`
}

// Pool holds the ordered node list for one chain. The list itself is never
// edited in place: Refresh swaps it wholesale, so readers always see either
// the old or the new list.
type Pool struct {
	chain  Chain
	logger *slog.Logger

	mu    sync.RWMutex
	nodes []*Node

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// NewPool creates a pool with the given nodes in preference order. An empty
// list is valid; every lookup on it just comes back empty.
func NewPool(chain Chain, nodes []*Node, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Pool{
		chain:  chain,
		logger: logger,
		nodes:  append([]*Node(nil), nodes...),
		subs:   make(map[int]func(Event)),
	}
}

func (p *Pool) Chain() Chain { return p.chain }

// Nodes returns a snapshot of every node regardless of status.
func (p *Pool) Nodes() []*Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Node(nil), p.nodes...)
}

// Find returns the node with the given base URL, if present.
func (p *Pool) Find(rawURL string) (*Node, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, n := range p.nodes {
		if n.raw == rawURL {
			return n, true
		}
	}
	return nil, false
}

// AllowedNodes returns, in pool order, the nodes that are not offline and,
// when needsRealtime is set, that support the realtime transport.
func (p *Pool) AllowedNodes(needsRealtime bool) []*Node {
	p.mu.RLock()
	defer p.mu.RUnlock()

	allowed := make([]*Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		if n.Status() == StatusOffline {
			continue
		}
		if needsRealtime && !n.supportsWS {
			continue
		}
		allowed = append(allowed, n)
	}
	return allowed
}

// MarkOffline demotes n. Repeated calls are no-ops.
func (p *Pool) MarkOffline(n *Node) {
	p.setStatus(n, StatusOffline)
}

// MarkOnline promotes n, typically after a successful health probe.
func (p *Pool) MarkOnline(n *Node) {
	p.setStatus(n, StatusOnline)
}

func (p *Pool) setStatus(n *Node, s Status) {
	if n == nil || !n.setStatus(s) {
		return
	}
	p.logger.Debug("node status changed",
		"chain", p.chain,
		"node", n.raw,
		"status", s.String(),
	)
	p.emit(Event{Chain: p.chain, Kind: EventStatus, URL: n.raw, Status: s.String(), Count: 1, At: time.Now()})
}

// Refresh replaces the node list, keeping the caller's order.
func (p *Pool) Refresh(nodes []*Node) {
	next := append([]*Node(nil), nodes...)

	p.mu.Lock()
	p.nodes = next
	p.mu.Unlock()

	p.logger.Info("node list refreshed", "chain", p.chain, "count", len(next))
	p.emit(Event{Chain: p.chain, Kind: EventRefresh, Count: len(next), At: time.Now()})
}

// Subscribe registers fn for every pool event. Callbacks run synchronously on
// the goroutine that caused the change, outside the pool lock. The returned
// func removes the subscription.
func (p *Pool) Subscribe(fn func(Event)) func() {
	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			p.subMu.Unlock()
		})
	}
}

func (p *Pool) emit(ev Event) {
	p.subMu.Lock()
	fns := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// SortByPriority orders nodes by descending priority, breaking ties
// alphabetically by URL. The input slice is not modified.
func SortByPriority(nodes []*Node) []*Node {
	out := append([]*Node(nil), nodes...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].raw < out[j].raw
	})
	return out
}
