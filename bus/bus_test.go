package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/audit"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/event"
)

func newTestBus(t *testing.T, optFns ...func(o *Options)) (*Bus, *core.Session) {
	t.Helper()
	b := New(optFns...)
	sess, err := b.CreateSession(core.CreateSessionParams{
		Name:         "test",
		Participants: []string{"a1", "a2", "a3"},
	})
	require.NoError(t, err)
	return b, sess
}

func TestBus_SendAssignsContiguousSequences(t *testing.T) {
	b, sess := newTestBus(t)

	for i := 1; i <= 5; i++ {
		msg, err := b.Send(SendInput{SessionID: sess.ID, FromAgent: "a1", ToAgent: "a2", Content: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
		assert.Equal(t, int64(i), msg.Sequence)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, core.MessageText, msg.Type)
	}

	history, err := b.History(sess.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 5)
	for i, msg := range history {
		assert.Equal(t, int64(i+1), msg.Sequence)
	}
}

func TestBus_SendValidation(t *testing.T) {
	b, sess := newTestBus(t)

	_, err := b.Send(SendInput{SessionID: "missing", FromAgent: "a1", Content: "x"})
	assert.True(t, core.IsCode(err, core.CodeValidation))

	_, err = b.Send(SendInput{SessionID: sess.ID, FromAgent: "", Content: "x"})
	assert.True(t, core.IsCode(err, core.CodeValidation))

	_, err = b.Send(SendInput{SessionID: sess.ID, FromAgent: "outsider", Content: "x"})
	assert.True(t, core.IsCode(err, core.CodeValidation))

	_, err = b.Send(SendInput{SessionID: sess.ID, FromAgent: "a1", ToAgent: "outsider", Content: "x"})
	assert.True(t, core.IsCode(err, core.CodeValidation))

	_, err = b.Send(SendInput{SessionID: sess.ID, FromAgent: "a1", ToAgent: "a2", Content: ""})
	assert.True(t, core.IsCode(err, core.CodeValidation))

	// Nothing was appended by the rejected sends.
	history, _ := b.History(sess.ID, 0)
	assert.Empty(t, history)
}

func TestBus_RateLimitBoundary(t *testing.T) {
	b, sess := newTestBus(t, func(o *Options) {
		o.RateLimitWindow = time.Minute
		o.RateLimitMax = 30
	})

	for i := 0; i < 30; i++ {
		_, err := b.Send(SendInput{SessionID: sess.ID, FromAgent: "a1", ToAgent: "a2", Content: "ping"})
		require.NoError(t, err)
	}

	// The 31st send inside the window is rejected and leaves no trace.
	_, err := b.Send(SendInput{SessionID: sess.ID, FromAgent: "a1", ToAgent: "a2", Content: "over"})
	assert.True(t, core.IsCode(err, core.CodeRateLimitExceeded))

	history, _ := b.History(sess.ID, 0)
	assert.Len(t, history, 30)

	// Other senders are unaffected.
	_, err = b.Send(SendInput{SessionID: sess.ID, FromAgent: "a2", ToAgent: "a1", Content: "pong"})
	assert.NoError(t, err)
}

func TestBus_BroadcastExcludesSender(t *testing.T) {
	events := event.NewBus()
	var received []string
	events.On(event.MessageReceived, func(ev event.Event) { received = append(received, ev.Recipient) })
	var sent int
	events.On(event.MessageSent, func(event.Event) { sent++ })

	b, sess := newTestBus(t, func(o *Options) { o.Events = events })

	msg, err := b.Broadcast(SendInput{SessionID: sess.ID, FromAgent: "a2", Content: "hello all"})
	require.NoError(t, err)
	assert.True(t, msg.IsBroadcast())

	assert.Equal(t, 1, sent)
	// Delivery fan-out follows participant order, sender excluded.
	assert.Equal(t, []string{"a1", "a3"}, received)
}

func TestBus_DirectedSendDeliversOnce(t *testing.T) {
	events := event.NewBus()
	var received []string
	events.On(event.MessageReceived, func(ev event.Event) { received = append(received, ev.Recipient) })

	b, sess := newTestBus(t, func(o *Options) { o.Events = events })

	_, err := b.Send(SendInput{SessionID: sess.ID, FromAgent: "a1", ToAgent: "a3", Content: "psst"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a3"}, received)
}

func TestBus_EventsCarryCommittedMessage(t *testing.T) {
	events := event.NewBus()
	var got *core.Message
	events.On(event.MessageSent, func(ev event.Event) { got = ev.Message })

	b, sess := newTestBus(t, func(o *Options) { o.Events = events })

	_, err := b.Send(SendInput{SessionID: sess.ID, FromAgent: "a1", ToAgent: "a2", Content: "x"})
	require.NoError(t, err)
	require.NotNil(t, got)
	// Observers see the sequence-stamped message, never the draft.
	assert.Equal(t, int64(1), got.Sequence)
}

func TestBus_AuditRecordsDelivery(t *testing.T) {
	rec := audit.NewInMemory()
	b, sess := newTestBus(t, func(o *Options) { o.Audit = rec })

	_, err := b.Broadcast(SendInput{SessionID: sess.ID, FromAgent: "a1", Content: "note", Type: core.MessageTaskDispatch})
	require.NoError(t, err)

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "bus", entries[0].Component)
	assert.Equal(t, "discussion_update", entries[0].Category)
	assert.Equal(t, sess.ID, entries[0].SessionID)
	assert.Equal(t, 2, entries[0].Detail["recipients"])
}

func TestBus_HistoryLimit(t *testing.T) {
	b, sess := newTestBus(t)
	for i := 0; i < 4; i++ {
		_, err := b.Send(SendInput{SessionID: sess.ID, FromAgent: "a1", ToAgent: "a2", Content: "m"})
		require.NoError(t, err)
	}

	recent, err := b.History(sess.ID, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].Sequence)
	assert.Equal(t, int64(4), recent[1].Sequence)
}
