package core

import "time"

// MessageType categorizes the intent of a message within a session.
type MessageType string

const (
	// MessageText is a plain conversational message (the default).
	MessageText MessageType = "text"
	// MessageTaskDispatch carries a delegated task reference to an agent.
	MessageTaskDispatch MessageType = "task_dispatch"
	// MessageTaskResult carries a structured execution result payload.
	MessageTaskResult MessageType = "task_result"
)

// MetadataExtensionsKey is the metadata key under which forward-compatible
// extension blocks are carried.
const MetadataExtensionsKey = "extensions"

// Message is the primary unit of communication inside a session. After
// delivery it should be treated as immutable. It captures:
//
//   - Correlation (ID, SessionID, Sequence)
//   - Addressing (FromAgent, optional ToAgent; empty ToAgent = broadcast)
//   - Conversational content and a type tag
//   - Open metadata that may carry extension blocks
//   - High precision UTC timestamp
//
// Sequence numbers are assigned by the session store under a per-session
// point of serialization: strictly increasing, contiguous from 1, never
// reused.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	FromAgent string         `json:"fromAgent"`
	ToAgent   string         `json:"toAgent,omitempty"`
	Content   string         `json:"content"`
	Type      MessageType    `json:"messageType"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Sequence  int64          `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
}

// IsBroadcast reports whether the message has no specific recipient.
func (m Message) IsBroadcast() bool { return m.ToAgent == "" }

// Clone returns a copy with an independent metadata map. Extension blocks and
// nested values are shared; treat them as read-only.
func (m Message) Clone() Message {
	if m.Metadata != nil {
		md := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}

// Extension is a forward-compatible protocol block carried in message
// metadata. Consumers must ignore fields they do not understand; Fields
// preserves everything except the identifying URI.
type Extension struct {
	URI    string
	Fields map[string]any
}

// Extensions extracts well-formed extension blocks from the message metadata.
// The metadata value must be a slice of objects each carrying a non-empty
// "uri" string; blocks of any other shape are skipped rather than rejected so
// unknown protocol additions never break delivery.
func (m Message) Extensions() []Extension {
	raw, ok := m.Metadata[MetadataExtensionsKey]
	if !ok {
		return nil
	}
	blocks, ok := raw.([]any)
	if !ok {
		return nil
	}
	var exts []Extension
	for _, b := range blocks {
		obj, ok := b.(map[string]any)
		if !ok {
			continue
		}
		uri, ok := obj["uri"].(string)
		if !ok || uri == "" {
			continue
		}
		fields := make(map[string]any, len(obj)-1)
		for k, v := range obj {
			if k == "uri" {
				continue
			}
			fields[k] = v
		}
		exts = append(exts, Extension{URI: uri, Fields: fields})
	}
	return exts
}
