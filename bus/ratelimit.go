package bus

import (
	"sync"
	"time"
)

// slidingWindow tracks message timestamps per sender over a rolling interval.
// The window is agent-scoped, not session-scoped, so the quota applies
// fleet-wide per sender. A rejected call is not recorded, so a denied message
// never consumes quota.
//
// golang.org/x/time/rate was considered and rejected: its token bucket
// refills continuously and cannot express "at most N sends inside any
// trailing window, denial not counted".
type slidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	now    func() time.Time
	hits   map[string][]time.Time
}

func newSlidingWindow(window time.Duration, limit int, now func() time.Time) *slidingWindow {
	if now == nil {
		now = time.Now
	}
	return &slidingWindow{
		window: window,
		limit:  limit,
		now:    now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow reports whether agentID may send another message right now and, if
// so, records the send. Pruning and the count check happen atomically so
// concurrent senders cannot overshoot the limit.
func (w *slidingWindow) Allow(agentID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)

	recent := w.hits[agentID][:0]
	for _, t := range w.hits[agentID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= w.limit {
		w.hits[agentID] = recent
		return false
	}

	w.hits[agentID] = append(recent, now)
	return true
}

// Remaining returns how many sends agentID has left in the current window.
func (w *slidingWindow) Remaining(agentID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	n := 0
	for _, t := range w.hits[agentID] {
		if t.After(cutoff) {
			n++
		}
	}
	if n >= w.limit {
		return 0
	}
	return w.limit - n
}
