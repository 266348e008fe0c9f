package monitor

import (
	"sync"
	"time"
)

// Outcome classifies an observed operation.
type Outcome string

const (
	// OutcomeSuccess marks an operation that completed without error.
	OutcomeSuccess Outcome = "success"
	// OutcomeError marks an operation that returned an error.
	OutcomeError Outcome = "error"
)

// Monitor receives operation outcomes for external observability.
// Implementations must be safe for concurrent use and must not block the
// observed operation.
type Monitor interface {
	Observe(operation string, outcome Outcome, duration time.Duration)
}

// NoOp discards all observations. The default sink.
type NoOp struct{}

// Observe implements Monitor.
func (NoOp) Observe(string, Outcome, time.Duration) {}

// Track starts a timer for operation and returns a completion function that
// reports the outcome derived from err.
//
//	done := monitor.Track(m, "registry.register")
//	...
//	done(err)
func Track(m Monitor, operation string) func(error) {
	start := time.Now()
	return func(err error) {
		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeError
		}
		m.Observe(operation, outcome, time.Since(start))
	}
}

// Observation is one recorded operation outcome.
type Observation struct {
	Operation string
	Outcome   Outcome
	Duration  time.Duration
}

// InMemory records observations for inspection in tests.
type InMemory struct {
	mu           sync.Mutex
	observations []Observation
}

// NewInMemory constructs an empty in-memory monitor.
func NewInMemory() *InMemory { return &InMemory{} }

// Observe implements Monitor.
func (m *InMemory) Observe(operation string, outcome Outcome, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, Observation{Operation: operation, Outcome: outcome, Duration: duration})
}

// Observations returns a copy of all recorded observations.
func (m *InMemory) Observations() []Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Observation, len(m.observations))
	copy(out, m.observations)
	return out
}

// Count returns the number of observations for an operation and outcome.
func (m *InMemory) Count(operation string, outcome Outcome) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.observations {
		if o.Operation == operation && o.Outcome == outcome {
			n++
		}
	}
	return n
}
