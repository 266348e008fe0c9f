package audit

import (
	"context"
	"sync"
	"time"
)

// Entry is a single audit record with canonical routing fields.
type Entry struct {
	Component string         `json:"component"`
	Category  string         `json:"category"`
	Tags      []string       `json:"tags,omitempty"`
	TaskID    string         `json:"taskId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	AgentID   string         `json:"agentId,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Recorder receives audit entries for durable storage. Implementations may be
// slow; core components only ever talk to a Recorder through Async, so a slow
// sink can never block message delivery.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// InMemory is a volatile Recorder retaining entries in a process local slice.
// Best suited for tests and ephemeral demo setups.
type InMemory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewInMemory constructs an empty in-memory recorder.
func NewInMemory() *InMemory { return &InMemory{} }

// Record implements Recorder.
func (r *InMemory) Record(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

// Entries returns a copy of all recorded entries.
func (r *InMemory) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
