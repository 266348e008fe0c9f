package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_EmitInRegistrationOrder(t *testing.T) {
	b := NewBus()
	var order []int
	b.On(MessageSent, func(Event) { order = append(order, 1) })
	b.On(MessageSent, func(Event) { order = append(order, 2) })
	b.On(MessageSent, func(Event) { order = append(order, 3) })

	b.Emit(Event{Type: MessageSent})
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBus_OffDetachesOnlyTarget(t *testing.T) {
	b := NewBus()
	var fired []string
	id := b.On(MessageSent, func(Event) { fired = append(fired, "first") })
	b.On(MessageSent, func(Event) { fired = append(fired, "second") })
	b.On(MessageReceived, func(Event) { fired = append(fired, "other-type") })

	b.Off(MessageSent, id)
	b.Emit(Event{Type: MessageSent})
	b.Emit(Event{Type: MessageReceived})

	assert.Equal(t, []string{"second", "other-type"}, fired)
	assert.Equal(t, 1, b.HandlerCount(MessageSent))
	assert.Equal(t, 1, b.HandlerCount(MessageReceived))
}

func TestBus_OffUnknownIDIsNoOp(t *testing.T) {
	b := NewBus()
	b.On(MessageSent, func(Event) {})
	b.Off(MessageSent, 999)
	b.Off(TaskDispatched, 1)
	assert.Equal(t, 1, b.HandlerCount(MessageSent))
}

func TestBus_HandlerMayDetachItself(t *testing.T) {
	b := NewBus()
	calls := 0
	var id int
	id = b.On(MessageSent, func(Event) {
		calls++
		b.Off(MessageSent, id)
	})

	b.Emit(Event{Type: MessageSent})
	b.Emit(Event{Type: MessageSent})
	assert.Equal(t, 1, calls)
}

func TestBus_HandlerMayEmit(t *testing.T) {
	b := NewBus()
	var chain []Type
	b.On(MessageSent, func(Event) {
		chain = append(chain, MessageSent)
		b.Emit(Event{Type: MessageReceived})
	})
	b.On(MessageReceived, func(Event) { chain = append(chain, MessageReceived) })

	b.Emit(Event{Type: MessageSent})
	assert.Equal(t, []Type{MessageSent, MessageReceived}, chain)
}

func TestBus_EmitStampsTimestamp(t *testing.T) {
	b := NewBus()
	var got Event
	b.On(MessageSent, func(ev Event) { got = ev })
	b.Emit(Event{Type: MessageSent})
	assert.False(t, got.Timestamp.IsZero())
}
