package temporal

import (
	"context"
	"time"
)

// Scheduler manages Temporal schedules for node health sweeps.
// Each chain gets its own schedule that triggers NodeHealthWorkflow.
type Scheduler interface {
	// UpsertHealthSchedule creates the chain's schedule or updates its interval.
	UpsertHealthSchedule(ctx context.Context, chain string, interval time.Duration) error

	// DeleteHealthSchedule stops sweeping the chain.
	DeleteHealthSchedule(ctx context.Context, chain string) error
}

// scheduleID returns the Temporal schedule ID for a chain.
func scheduleID(chain string) string {
	return "node-health-" + chain
}
