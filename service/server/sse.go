package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	natspkg "github.com/brojonat/nodekit/service/nats"
	"github.com/brojonat/nodekit/service/metrics"
	"github.com/brojonat/nodekit/service/node"
)

var errChainNotManaged = errors.New("chain is not managed")

// EventSource delivers node events for one chain, or every chain when chain
// is empty, until ctx ends. *natspkg.Subscriber satisfies it.
type EventSource interface {
	Subscribe(ctx context.Context, chain string) (<-chan *natspkg.NodeEvent, error)
}

// PoolEventSource serves events straight from in-process pools.
type PoolEventSource struct {
	pools map[node.Chain]*node.Pool
}

func NewPoolEventSource(pools ...*node.Pool) *PoolEventSource {
	m := make(map[node.Chain]*node.Pool, len(pools))
	for _, p := range pools {
		m[p.Chain()] = p
	}
	return &PoolEventSource{pools: m}
}

// Subscribe drops events for a subscriber that falls behind.
func (s *PoolEventSource) Subscribe(ctx context.Context, chain string) (<-chan *natspkg.NodeEvent, error) {
	var pools []*node.Pool
	if chain == "" {
		for _, p := range s.pools {
			pools = append(pools, p)
		}
	} else {
		p, ok := s.pools[node.Chain(chain)]
		if !ok {
			return nil, fmt.Errorf("%w: %q", errChainNotManaged, chain)
		}
		pools = append(pools, p)
	}

	out := make(chan *natspkg.NodeEvent, 16)
	var mu sync.Mutex
	closed := false
	send := func(ev node.Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- natspkg.FromPoolEvent(ev):
		default:
		}
	}

	unsubs := make([]func(), 0, len(pools))
	for _, p := range pools {
		unsubs = append(unsubs, p.Subscribe(send))
	}

	go func() {
		<-ctx.Done()
		for _, unsub := range unsubs {
			unsub()
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

// handleStreamNodes streams node events as Server-Sent Events.
// GET /api/v1/stream/nodes and GET /api/v1/stream/nodes/{chain}
func handleStreamNodes(source EventSource, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chain := r.PathValue("chain")
		chainDesc := chain
		if chain == "" {
			chainDesc = "all chains"
		} else if _, err := node.ParseChain(chain); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events, err := source.Subscribe(ctx, chain)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to node events",
				"chain", chainDesc,
				"error", err,
			)
			if errors.Is(err, errChainNotManaged) {
				writeError(w, err.Error(), http.StatusNotFound)
				return
			}
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, _ := w.(http.Flusher)
		flush := func() {
			if flusher != nil {
				flusher.Flush()
			}
		}

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		logger.DebugContext(ctx, "SSE client connected",
			"chain", chainDesc,
			"remote_addr", r.RemoteAddr,
		)

		fmt.Fprintf(w, "event: connected\ndata: {\"chain\":%q}\n\n", chainDesc)
		flush()

		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case ev, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal event", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: node\ndata: %s\n\n", data)
				flush()
				if m != nil {
					m.RecordSSEEventSent(ev.Kind)
				}

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"chain", chainDesc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
