package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/logging"
)

// Scheduler drives ProcessDueRequeues on a fixed interval. It is a thin timer
// shell around the queue's tick function; all requeue logic (including
// protection against double-requeues across overlapping ticks) lives in the
// queue itself.
type Scheduler struct {
	queue    *Queue
	interval time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewScheduler constructs a stopped scheduler for the given queue.
func NewScheduler(q *Queue, interval time.Duration, logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Scheduler{queue: q, interval: interval, logger: logger}
}

// Start launches the tick loop. It returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("requeue scheduler is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ids := s.queue.ProcessDueRequeues(now.UnixMilli())
			if len(ids) > 0 {
				s.logger.Debug("requeue tick requeued=%d", len(ids))
			}
		}
	}
}

// Stop cancels the tick loop and waits for it to exit. Safe to call when not
// running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}
