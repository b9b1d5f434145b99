package nats

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/nodekit/service/node"
)

const relayBuffer = 256

// Relay forwards pool events to a Publisher without blocking the goroutine
// that changed the pool. Events that arrive while the buffer is full are
// dropped and logged.
type Relay struct {
	publisher Publisher
	logger    *slog.Logger
	events    chan node.Event

	mu     sync.RWMutex
	closed bool
	unsubs []func()
	done   chan struct{}
	once   sync.Once
}

// NewRelay starts forwarding in the background. Call Close to stop.
func NewRelay(publisher Publisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	r := &Relay{
		publisher: publisher,
		logger:    logger,
		events:    make(chan node.Event, relayBuffer),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// Watch forwards every future event of pool.
func (r *Relay) Watch(pool *node.Pool) {
	unsub := pool.Subscribe(r.enqueue)
	r.mu.Lock()
	r.unsubs = append(r.unsubs, unsub)
	r.mu.Unlock()
}

func (r *Relay) enqueue(ev node.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("node event dropped, relay buffer full",
			"chain", ev.Chain,
			"kind", ev.Kind,
			"node", ev.URL,
		)
	}
}

func (r *Relay) run() {
	defer close(r.done)
	for ev := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.publisher.PublishNodeEvent(ctx, FromPoolEvent(ev)); err != nil {
			r.logger.Error("failed to publish node event",
				"chain", ev.Chain,
				"node", ev.URL,
				"error", err,
			)
		}
		cancel()
	}
}

// Close detaches from every pool and waits for queued events to drain.
func (r *Relay) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		for _, unsub := range r.unsubs {
			unsub()
		}
		r.unsubs = nil
		r.closed = true
		close(r.events)
		r.mu.Unlock()

		<-r.done
	})
}
