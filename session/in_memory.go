package session

import (
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// InMemoryStore is a volatile SessionStore implementation storing sessions in
// a process local map. It is safe for concurrent access and best suited for
// single-process deployments, tests and ephemeral demo servers.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create allocates a new session with a generated id. Fails with a VALIDATION
// error when the participant set is empty or contains a blank agent id.
func (s *InMemoryStore) Create(params core.CreateSessionParams) (*core.Session, error) {
	if len(params.Participants) == 0 {
		return nil, core.NewValidationError("session requires at least one participant")
	}
	for _, p := range params.Participants {
		if p == "" {
			return nil, core.NewValidationError("participant id must not be empty")
		}
	}

	sess := core.NewSession(core.NewID(), params.Name, params.Topic, params.Mode, params.Participants)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns the live session for id. Unknown ids fail with a VALIDATION
// error since messaging against a non-existent session is a caller fault.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, core.NewValidationError("session %s not found", id)
	}
	return sess, nil
}

// Append stamps msg with the next sequence number of its session and records
// it in history. Sequence assignment happens inside the session's own lock,
// the single point of serialization required for strictly increasing,
// contiguous numbering.
func (s *InMemoryStore) Append(sessionID string, msg core.Message) (core.Message, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return core.Message{}, err
	}
	return sess.Append(msg), nil
}

// History returns the most recent limit messages of the session in sequence
// order. It never mutates state.
func (s *InMemoryStore) History(sessionID string, limit int) ([]core.Message, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.History(limit), nil
}
