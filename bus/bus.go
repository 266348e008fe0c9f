package bus

import (
	"context"
	"time"

	"github.com/hupe1980/taskmesh/audit"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/event"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/monitor"
	"github.com/hupe1980/taskmesh/session"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// RateLimitWindow is the rolling interval of the per-sender quota.
	RateLimitWindow time.Duration
	// RateLimitMax is the maximum number of sends per sender inside the window.
	RateLimitMax int
	// Sessions is the backing session store. Defaults to in-memory.
	Sessions core.SessionStore
	// Events receives message_sent / message_received notifications. Optional.
	Events *event.Bus
	// Audit receives delivery records. Wrap slow sinks in audit.NewAsync so
	// they never block delivery. Optional.
	Audit audit.Recorder
	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
	// Monitor receives operation outcomes. Defaults to NoOp.
	Monitor monitor.Monitor
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// SendInput carries the parameters of a send or broadcast.
type SendInput struct {
	SessionID string
	FromAgent string
	// ToAgent addresses a single recipient; empty means broadcast to every
	// other participant.
	ToAgent  string
	Content  string
	Type     core.MessageType
	Metadata map[string]any
}

// Bus sends and broadcasts messages inside sessions. A message is accepted
// only after membership validation and the rate-limit check pass; a rejected
// message is never appended to history and never consumes quota. Accepted
// messages receive their sequence number from the session store and are then
// announced: one message_sent event, followed synchronously by one
// message_received event per intended recipient, in participant order.
type Bus struct {
	sessions core.SessionStore
	limiter  *slidingWindow
	events   *event.Bus
	auditor  audit.Recorder
	logger   logging.Logger
	monitor  monitor.Monitor
	now      func() time.Time
}

// New constructs a Bus with optional overrides.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{
		RateLimitWindow: 60 * time.Second,
		RateLimitMax:    30,
		Sessions:        session.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
		Monitor:         monitor.NoOp{},
		Clock:           time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Bus{
		sessions: opts.Sessions,
		limiter:  newSlidingWindow(opts.RateLimitWindow, opts.RateLimitMax, opts.Clock),
		events:   opts.Events,
		auditor:  opts.Audit,
		logger:   opts.Logger,
		monitor:  opts.Monitor,
		now:      opts.Clock,
	}
}

// Sessions exposes the backing session store.
func (b *Bus) Sessions() core.SessionStore { return b.sessions }

// CreateSession allocates a new session via the backing store.
func (b *Bus) CreateSession(params core.CreateSessionParams) (*core.Session, error) {
	done := monitor.Track(b.monitor, "bus.create_session")
	sess, err := b.sessions.Create(params)
	done(err)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("session created id=%s participants=%d", sess.ID, len(sess.Participants))
	return sess, nil
}

// Send delivers a message inside a session. Validation and rate limiting are
// synchronous failures that leave no partial state behind. The returned
// message carries its assigned sequence number.
func (b *Bus) Send(input SendInput) (*core.Message, error) {
	done := monitor.Track(b.monitor, "bus.send")
	msg, err := b.send(input)
	done(err)
	return msg, err
}

// Broadcast delivers a message to all session participants except the
// sender. Equivalent to Send with an empty ToAgent.
func (b *Bus) Broadcast(input SendInput) (*core.Message, error) {
	done := monitor.Track(b.monitor, "bus.broadcast")
	input.ToAgent = ""
	msg, err := b.send(input)
	done(err)
	return msg, err
}

func (b *Bus) send(input SendInput) (*core.Message, error) {
	sess, err := b.sessions.Get(input.SessionID)
	if err != nil {
		return nil, err
	}
	if input.FromAgent == "" {
		return nil, core.NewValidationError("fromAgent must not be empty")
	}
	if !sess.HasParticipant(input.FromAgent) {
		return nil, core.NewValidationError("agent %s is not a participant of session %s", input.FromAgent, input.SessionID)
	}
	if input.ToAgent != "" && !sess.HasParticipant(input.ToAgent) {
		return nil, core.NewValidationError("recipient %s is not a participant of session %s", input.ToAgent, input.SessionID)
	}
	if input.Content == "" {
		return nil, core.NewValidationError("message content must not be empty")
	}

	if !b.limiter.Allow(input.FromAgent) {
		return nil, core.NewError(core.CodeRateLimitExceeded, "agent %s exceeded sliding-window send quota", input.FromAgent)
	}

	msgType := input.Type
	if msgType == "" {
		msgType = core.MessageText
	}

	msg := core.Message{
		ID:        core.NewID(),
		SessionID: input.SessionID,
		FromAgent: input.FromAgent,
		ToAgent:   input.ToAgent,
		Content:   input.Content,
		Type:      msgType,
		Metadata:  input.Metadata,
		Timestamp: b.now().UTC(),
	}

	final, err := b.sessions.Append(input.SessionID, msg)
	if err != nil {
		return nil, err
	}

	recipients := b.recipientsOf(sess, final)
	b.announce(sess, final, recipients)
	b.record(final, len(recipients))

	b.logger.Debug("message delivered session_id=%s sequence=%d recipients=%d", final.SessionID, final.Sequence, len(recipients))
	return &final, nil
}

// recipientsOf resolves the intended recipients: the single addressee, or
// every participant except the sender on broadcast.
func (b *Bus) recipientsOf(sess *core.Session, msg core.Message) []string {
	if msg.ToAgent != "" {
		return []string{msg.ToAgent}
	}
	var recipients []string
	for _, p := range sess.Participants {
		if p != msg.FromAgent {
			recipients = append(recipients, p)
		}
	}
	return recipients
}

// announce emits message_sent once, then message_received per recipient in
// participant order. Emission happens after the history append so observers
// always see a fully committed message.
func (b *Bus) announce(sess *core.Session, msg core.Message, recipients []string) {
	if b.events == nil {
		return
	}
	b.events.Emit(event.Event{
		Type:      event.MessageSent,
		SessionID: sess.ID,
		AgentID:   msg.FromAgent,
		Message:   &msg,
	})
	for _, recipient := range recipients {
		b.events.Emit(event.Event{
			Type:      event.MessageReceived,
			SessionID: sess.ID,
			AgentID:   msg.FromAgent,
			Recipient: recipient,
			Message:   &msg,
		})
	}
}

func (b *Bus) record(msg core.Message, recipients int) {
	if b.auditor == nil {
		return
	}
	_ = b.auditor.Record(context.Background(), audit.Entry{
		Component: "bus",
		Category:  "discussion_update",
		Tags:      []string{string(msg.Type)},
		SessionID: msg.SessionID,
		AgentID:   msg.FromAgent,
		Detail: map[string]any{
			"sequence":   msg.Sequence,
			"recipients": recipients,
			"broadcast":  msg.IsBroadcast(),
		},
		Timestamp: msg.Timestamp,
	})
}

// History returns the most recent limit messages of a session in sequence
// order. It never mutates state.
func (b *Bus) History(sessionID string, limit int) ([]core.Message, error) {
	done := monitor.Track(b.monitor, "bus.history")
	msgs, err := b.sessions.History(sessionID, limit)
	done(err)
	return msgs, err
}
