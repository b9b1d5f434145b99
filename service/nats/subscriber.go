package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber streams node events from JetStream, for processes that do not
// own the pools themselves.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

func NewSubscriber(natsURL string, logger *slog.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	nc, js, err := connect(natsURL, "nodekit-subscriber")
	if err != nil {
		return nil, err
	}
	logger.Info("NATS subscriber initialized", "url", natsURL)
	return &Subscriber{nc: nc, js: js, logger: logger}, nil
}

// Subscribe delivers new events for chain, or for every chain when chain is
// empty, until ctx ends. The returned channel is closed then.
func (s *Subscriber) Subscribe(ctx context.Context, chain string) (<-chan *NodeEvent, error) {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: Subject(chain),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan *NodeEvent, 16)
	var mu sync.Mutex
	closed := false

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		defer msg.Ack()

		var ev NodeEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			s.logger.WarnContext(ctx, "failed to unmarshal node event", "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- &ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
