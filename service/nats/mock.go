package nats

import (
	"context"
	"sync"
)

// MockPublisher records published events for tests.
type MockPublisher struct {
	mu           sync.RWMutex
	events       []*NodeEvent
	publishError error
	closed       bool
	published    chan struct{}
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{published: make(chan struct{}, 1024)}
}

// PublishNodeEvent records the event and returns any configured error.
func (m *MockPublisher) PublishNodeEvent(ctx context.Context, event *NodeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.events = append(m.events, event)
	select {
	case m.published <- struct{}{}:
	default:
	}
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Published returns a copy of every recorded event.
func (m *MockPublisher) Published() []*NodeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*NodeEvent(nil), m.events...)
}

// EventsForChain returns recorded events of one chain.
func (m *MockPublisher) EventsForChain(chain string) []*NodeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*NodeEvent
	for _, ev := range m.events {
		if ev.Chain == chain {
			out = append(out, ev)
		}
	}
	return out
}

func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
