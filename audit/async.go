package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/taskmesh/logging"
)

// AsyncOptions configures the Async wrapper.
type AsyncOptions struct {
	// BufferSize bounds the number of entries queued for the inner recorder.
	BufferSize int
	// Logger receives warnings about dropped entries and inner failures.
	Logger logging.Logger
}

// Async decorates a Recorder with a bounded buffer drained by a background
// goroutine. Record never blocks: when the buffer is full the entry is
// dropped and counted. Close flushes the buffer and stops the drain loop;
// entries recorded after Close are dropped.
type Async struct {
	inner   Recorder
	ch      chan Entry
	done    chan struct{}
	mu      sync.RWMutex // guards ch against send-after-close
	closed  bool
	dropped atomic.Int64
	logger  logging.Logger
	once    sync.Once
}

// NewAsync wraps inner and starts the drain goroutine.
func NewAsync(inner Recorder, optFns ...func(o *AsyncOptions)) *Async {
	opts := AsyncOptions{
		BufferSize: 256,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Async{
		inner:  inner,
		ch:     make(chan Entry, opts.BufferSize),
		done:   make(chan struct{}),
		logger: opts.Logger,
	}
	go a.drain()
	return a
}

func (a *Async) drain() {
	defer close(a.done)
	for e := range a.ch {
		if err := a.inner.Record(context.Background(), e); err != nil {
			a.logger.Warn("audit record failed: %v", err)
		}
	}
}

// Record implements Recorder without ever blocking the caller.
func (a *Async) Record(_ context.Context, e Entry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return nil
	}
	select {
	case a.ch <- e:
	default:
		a.dropped.Add(1)
		a.logger.Warn("audit buffer full, entry dropped component=%s category=%s", e.Component, e.Category)
	}
	return nil
}

// Dropped returns the number of entries discarded due to a full buffer or a
// closed writer.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close flushes buffered entries and stops the drain goroutine. Safe to call
// more than once.
func (a *Async) Close() error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
		<-a.done
	})
	return nil
}
