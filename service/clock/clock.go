// Package clock tracks how far a node's clock is from ours.
package clock

import (
	"sync"
	"time"
)

var (
	// AdamantEpoch is time zero for ADAMANT node timestamps.
	AdamantEpoch = time.Date(2017, time.September, 2, 17, 0, 0, 0, time.UTC)
	// LiskEpoch is time zero for Lisk node timestamps.
	LiskEpoch = time.Date(2016, time.May, 24, 17, 0, 0, 0, time.UTC)
)

// Decode converts seconds since epoch into wall time.
func Decode(epoch time.Time, seconds int64) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

// Encode is the inverse of Decode, truncated to whole seconds.
func Encode(epoch, t time.Time) int64 {
	return int64(t.Sub(epoch) / time.Second)
}

// Tracker keeps the most recent local-minus-server clock delta. Writers
// overwrite; readers see the last complete write.
type Tracker struct {
	now func() time.Time

	mu    sync.RWMutex
	delta time.Duration
	seen  bool
	at    time.Time
}

// NewTracker returns a tracker that reads local time from now, or from
// time.Now when now is nil.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Observe records localNow - serverTime and returns it.
func (t *Tracker) Observe(serverTime time.Time) time.Duration {
	local := t.now()
	d := local.Sub(serverTime)

	t.mu.Lock()
	t.delta = d
	t.seen = true
	t.at = local
	t.mu.Unlock()
	return d
}

// ObserveTimestamp decodes an epoch-relative timestamp and records it.
func (t *Tracker) ObserveTimestamp(epoch time.Time, seconds int64) time.Duration {
	return t.Observe(Decode(epoch, seconds))
}

// Last returns the most recent delta and whether any has been recorded.
func (t *Tracker) Last() (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.delta, t.seen
}

// ObservedAt is the local time of the most recent observation.
func (t *Tracker) ObservedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.at
}
