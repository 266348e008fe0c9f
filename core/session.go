package core

import (
	"sync"
	"time"
)

// Session represents a bounded conversational container with a fixed
// participant set and an ordered message history. It is safe for concurrent
// access.
//
// Contract:
//   - Participants are fixed at creation (no dynamic join/leave)
//   - Append assigns the next sequence number under the session's own lock,
//     so no two messages can ever claim the same sequence
//   - History returns defensive copies to avoid external mutation
//   - Clone performs deep copies of slices/maps for safe divergence.
type Session struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Topic        string    `json:"topic"`
	Mode         string    `json:"mode"`
	Participants []string  `json:"participants"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`

	messages []Message
	nextSeq  int64
	mu       sync.RWMutex
}

// NewSession creates a session with the given identity and participant set.
// Validation of the participant set is the session store's responsibility.
func NewSession(id, name, topic, mode string, participants []string) *Session {
	now := time.Now().UTC()
	p := make([]string, len(participants))
	copy(p, participants)
	return &Session{
		ID:           id,
		Name:         name,
		Topic:        topic,
		Mode:         mode,
		Participants: p,
		Created:      now,
		Updated:      now,
	}
}

// HasParticipant reports whether the agent id is a member of this session.
func (s *Session) HasParticipant(agentID string) bool {
	for _, p := range s.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}

// Append assigns the next sequence number to msg, stamps it into history and
// returns the finalized message. This is the single point of serialization
// for sequence assignment within a session.
func (s *Session) Append(msg Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	msg.Sequence = s.nextSeq
	s.messages = append(s.messages, msg)
	s.Updated = time.Now().UTC()
	return msg
}

// History returns the most recent limit messages in sequence order. A limit
// of zero or less returns the full history. The returned slice and its
// messages are copies.
func (s *Session) History(limit int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.messages) > limit {
		start = len(s.messages) - limit
	}
	out := make([]Message, 0, len(s.messages)-start)
	for _, m := range s.messages[start:] {
		out = append(out, m.Clone())
	}
	return out
}

// MessageCount returns the number of messages appended so far.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:           s.ID,
		Name:         s.Name,
		Topic:        s.Topic,
		Mode:         s.Mode,
		Participants: make([]string, len(s.Participants)),
		Created:      s.Created,
		Updated:      s.Updated,
		messages:     make([]Message, 0, len(s.messages)),
		nextSeq:      s.nextSeq,
	}
	copy(clone.Participants, s.Participants)
	for _, m := range s.messages {
		clone.messages = append(clone.messages, m.Clone())
	}
	return clone
}

// CreateSessionParams carries the input for session creation.
type CreateSessionParams struct {
	Name         string
	Topic        string
	Mode         string
	Participants []string
}

// SessionStore creates and tracks sessions plus their ordered histories.
type SessionStore interface {
	// Create allocates a new session. Fails with a VALIDATION error when the
	// participant set is empty.
	Create(params CreateSessionParams) (*Session, error)
	// Get returns the live session for id (not a clone; mutation is funneled
	// through Session methods).
	Get(id string) (*Session, error)
	// Append stamps the message with the next per-session sequence number and
	// records it in history, returning the finalized message.
	Append(sessionID string, msg Message) (Message, error)
	// History returns the most recent limit messages in sequence order.
	History(sessionID string, limit int) ([]Message, error)
}
