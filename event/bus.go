package event

import (
	"sync"
	"time"
)

// Bus is an explicit topic → subscriber registry. It is safe for concurrent
// use and re-entrant: a handler may emit further events or detach itself
// while being invoked, because emission snapshots the handler list before
// releasing the lock.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Type]map[int]Handler
	order    map[Type][]int
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Type]map[int]Handler),
		order:    make(map[Type][]int),
	}
}

// On registers a handler for the given event type and returns its handler id.
// Handlers for the same type fire in registration order.
func (b *Bus) On(t Type, h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[int]Handler)
	}
	b.handlers[t][id] = h
	b.order[t] = append(b.order[t], id)
	return id
}

// Off removes the handler registered under id for the given type. Removing a
// handler leaves every other handler (of this and any other type) attached;
// unknown ids are a no-op.
func (b *Bus) Off(t Type, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if hs, ok := b.handlers[t]; ok {
		delete(hs, id)
	}
	ids := b.order[t]
	for i, v := range ids {
		if v == id {
			b.order[t] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// HandlerCount returns the number of handlers attached for a type.
func (b *Bus) HandlerCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}

// Emit delivers the event synchronously to all handlers registered for its
// type, in registration order. The timestamp is stamped if unset. Handlers
// are invoked outside the bus lock so they may safely re-enter the bus.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	ids := make([]int, len(b.order[ev.Type]))
	copy(ids, b.order[ev.Type])
	snapshot := make([]Handler, 0, len(ids))
	for _, id := range ids {
		if h, ok := b.handlers[ev.Type][id]; ok {
			snapshot = append(snapshot, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		h(ev)
	}
}
