package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	schedules map[string]time.Duration // map[scheduleID]interval
	upsertErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[string]time.Duration),
	}
}

func (m *MockScheduler) UpsertHealthSchedule(ctx context.Context, chain string, interval time.Duration) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[scheduleID(chain)] = interval
	return nil
}

func (m *MockScheduler) DeleteHealthSchedule(ctx context.Context, chain string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := scheduleID(chain)
	if _, ok := m.schedules[id]; !ok {
		return fmt.Errorf("schedule %q not found", id)
	}
	delete(m.schedules, id)
	return nil
}

// Interval returns the interval of the chain's schedule.
func (m *MockScheduler) Interval(chain string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.schedules[scheduleID(chain)]
	return d, ok
}

func (m *MockScheduler) SetUpsertError(err error) { m.upsertErr = err }
func (m *MockScheduler) SetDeleteError(err error) { m.deleteErr = err }
