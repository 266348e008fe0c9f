package event

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// Type identifies a lifecycle event topic.
type Type string

const (
	// AgentRegistered fires after a successful registry registration.
	AgentRegistered Type = "agent_registered"
	// MessageSent fires once per accepted message, after history append.
	MessageSent Type = "message_sent"
	// MessageReceived fires once per intended recipient of a message.
	MessageReceived Type = "message_received"
	// TaskDispatched fires when the orchestrator hands a task to an agent.
	TaskDispatched Type = "task_dispatched"
	// MissionProgress fires with an aggregate plan snapshot after each
	// orchestration cycle and each correlated execution result.
	MissionProgress Type = "mission_progress"
)

// Event is the notification payload delivered to subscribers. Only the fields
// relevant to the event type are populated; the rest are zero values.
type Event struct {
	Type      Type
	Timestamp time.Time

	// AgentID identifies the subject agent (registrations) or the recipient
	// is carried separately below for deliveries.
	AgentID string

	// SessionID scopes message events to their session.
	SessionID string

	// Recipient is the agent the message is delivered to. Set only on
	// MessageReceived.
	Recipient string

	// Message is the delivered message. Set on MessageSent, MessageReceived
	// and TaskDispatched.
	Message *core.Message

	// TaskID correlates dispatch events with queue state.
	TaskID string

	// Progress is the aggregate snapshot. Set only on MissionProgress.
	Progress *core.MissionProgress
}

// Handler consumes events. Handlers run synchronously on the emitting
// goroutine in registration order; they must not block indefinitely.
type Handler func(Event)
