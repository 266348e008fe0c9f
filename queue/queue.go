package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/audit"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/monitor"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxAttempts bounds dispatch attempts per task unless overridden at
	// submission.
	MaxAttempts int
	// Backoff computes the requeue delay after a failure.
	Backoff BackoffPolicy
	// Audit receives task transition records. Optional.
	Audit audit.Recorder
	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
	// Monitor receives operation outcomes. Defaults to NoOp.
	Monitor monitor.Monitor
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// SubmitInput carries a directly submitted task.
type SubmitInput struct {
	Source       string
	Finding      string
	Action       string
	SnapshotHash string
	// MaxAttempts overrides the queue default when > 0.
	MaxAttempts int
}

// Queue is the task delegation queue. Tasks are created by harvesting the
// active analysis provider or by direct submission, and only ever
// transitioned, never deleted. Every state transition runs inside one
// critical section, so a task can never be observed in two states and a
// requeue can never race a dispatch for the same id.
type Queue struct {
	mu          sync.Mutex
	tasks       map[string]*core.Task
	order       []string // creation order, drives FIFO dispatch
	provider    core.AnalysisProvider
	maxAttempts int
	backoff     BackoffPolicy
	auditor     audit.Recorder
	logger      logging.Logger
	monitor     monitor.Monitor
	now         func() time.Time
}

// New constructs a Queue with optional overrides.
func New(optFns ...func(o *Options)) *Queue {
	opts := Options{
		MaxAttempts: 3,
		Backoff:     NewExponentialBackoff(),
		Logger:      logging.NoOpLogger{},
		Monitor:     monitor.NoOp{},
		Clock:       time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Queue{
		tasks:       make(map[string]*core.Task),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		auditor:     opts.Audit,
		logger:      opts.Logger,
		monitor:     opts.Monitor,
		now:         opts.Clock,
	}
}

// RegisterAnalysisProvider installs the active provider. Registration is a
// single slot: the last registered provider wins, replacing any previous one.
func (q *Queue) RegisterAnalysisProvider(fn core.AnalysisProvider) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.provider != nil {
		q.logger.Debug("analysis provider replaced")
	}
	q.provider = fn
}

// HarvestAndQueue invokes the active provider and queues one task per
// recommended action. Without a provider it is a no-op. The provider runs
// outside the queue lock since analysis may be slow.
func (q *Queue) HarvestAndQueue(ctx context.Context) ([]string, error) {
	done := monitor.Track(q.monitor, "queue.harvest")

	q.mu.Lock()
	provider := q.provider
	q.mu.Unlock()

	if provider == nil {
		done(nil)
		return nil, nil
	}

	report, err := provider(ctx)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("analysis provider failed: %w", err)
	}
	if report == nil {
		done(nil)
		return nil, nil
	}

	var ids []string
	for _, action := range report.RecommendedActions {
		if action == "" {
			continue
		}
		id := q.Submit(SubmitInput{
			Source:       "analysis",
			Finding:      report.Summary,
			Action:       action,
			SnapshotHash: report.SnapshotHash,
		})
		ids = append(ids, id)
	}

	q.logger.Info("harvested %d tasks from analysis provider", len(ids))
	done(nil)
	return ids, nil
}

// Submit queues a task directly and returns its id.
func (q *Queue) Submit(input SubmitInput) string {
	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts
	}

	t := &core.Task{
		ID:           core.NewID(),
		CreatedAt:    q.now().UTC(),
		Source:       input.Source,
		Finding:      input.Finding,
		Action:       input.Action,
		Status:       core.TaskQueued,
		MaxAttempts:  maxAttempts,
		SnapshotHash: input.SnapshotHash,
	}

	q.mu.Lock()
	q.tasks[t.ID] = t
	q.order = append(q.order, t.ID)
	q.mu.Unlock()

	q.record(*t, "task_queued")
	return t.ID
}

// Tasks returns a read-only snapshot of all tasks in creation order.
func (q *Queue) Tasks() []core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]core.Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.tasks[id])
	}
	return out
}

// Get returns a snapshot of a single task.
func (q *Queue) Get(taskID string) (core.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return core.Task{}, false
	}
	return *t, true
}

// NextQueued returns up to limit queued tasks in creation order (FIFO).
// A limit of zero or less returns all queued tasks.
func (q *Queue) NextQueued(limit int) []core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []core.Task
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status != core.TaskQueued {
			continue
		}
		out = append(out, *t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// MarkDispatched transitions a task queued → dispatched, assigns the agent
// and consumes one attempt. The attempt counter tracks dispatches, so the
// retry bound holds no matter how results and requeues interleave.
func (q *Queue) MarkDispatched(taskID, agentID string) error {
	done := monitor.Track(q.monitor, "queue.mark_dispatched")

	q.mu.Lock()
	t, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()
		err := core.NewError(core.CodeTaskNotFound, "task %s not found", taskID)
		done(err)
		return err
	}
	if t.Status != core.TaskQueued {
		q.mu.Unlock()
		err := core.NewValidationError("task %s is %s, not queued", taskID, t.Status)
		done(err)
		return err
	}
	t.Status = core.TaskDispatched
	t.AssignedAgent = agentID
	t.Attempts++
	t.NextAttemptUnix = 0
	snapshot := *t
	q.mu.Unlock()

	q.record(snapshot, "task_dispatched")
	done(nil)
	return nil
}

// RevertDispatch returns a dispatched task to queued without consuming the
// attempt, used when the dispatch message itself could not be delivered.
func (q *Queue) RevertDispatch(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return core.NewError(core.CodeTaskNotFound, "task %s not found", taskID)
	}
	if t.Status != core.TaskDispatched {
		return core.NewValidationError("task %s is %s, not dispatched", taskID, t.Status)
	}
	t.Status = core.TaskQueued
	t.AssignedAgent = ""
	if t.Attempts > 0 {
		t.Attempts--
	}
	return nil
}

// MarkExecutionResult applies a structured execution result to a dispatched
// task: dispatched → completed, or dispatched → failed with the next backoff
// deadline when attempts remain. The first result per dispatch wins; a
// result for a task no longer in dispatched state is an idempotent no-op and
// returns applied == false. Unknown task ids fail with TASK_NOT_FOUND so the
// caller can log and ignore them.
func (q *Queue) MarkExecutionResult(taskID string, res core.ExecutionResult) (bool, error) {
	done := monitor.Track(q.monitor, "queue.mark_result")

	q.mu.Lock()
	t, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()
		err := core.NewError(core.CodeTaskNotFound, "task %s not found", taskID)
		done(err)
		return false, err
	}
	if t.Status != core.TaskDispatched {
		q.mu.Unlock()
		q.logger.Debug("duplicate result ignored task_id=%s status=%s", taskID, t.Status)
		done(nil)
		return false, nil
	}

	t.DurationMs = res.DurationMs
	switch res.Status {
	case core.ResultCompleted:
		t.Status = core.TaskCompleted
		t.ErrorCode = ""
		t.ErrorMessage = ""
	default:
		t.Status = core.TaskFailed
		t.ErrorCode = res.ErrorCode
		if t.ErrorCode == "" {
			t.ErrorCode = core.CodeExecutionFailure
		}
		t.ErrorMessage = res.ErrorMessage
		if t.Attempts < t.MaxAttempts {
			delay := q.backoff.NextDelay(t.Attempts)
			t.NextAttemptUnix = q.now().Add(delay).UnixMilli()
		} else {
			// Attempts exhausted: terminal, no deadline.
			t.NextAttemptUnix = 0
		}
	}
	snapshot := *t
	q.mu.Unlock()

	q.record(snapshot, "task_"+string(snapshot.Status))
	done(nil)
	return true, nil
}

// ProcessDueRequeues scans failed tasks whose backoff deadline has passed and
// transitions them back to queued, returning the ids actually requeued. Tasks
// with exhausted attempts stay failed permanently. The scan and every
// transition run under one lock, so concurrent ticks can never double-requeue
// a task.
func (q *Queue) ProcessDueRequeues(nowMs int64) []string {
	q.mu.Lock()
	var requeued []string
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status != core.TaskFailed {
			continue
		}
		if t.Attempts >= t.MaxAttempts {
			continue
		}
		if t.NextAttemptUnix == 0 || t.NextAttemptUnix > nowMs {
			continue
		}
		t.Status = core.TaskQueued
		t.AssignedAgent = ""
		t.NextAttemptUnix = 0
		requeued = append(requeued, id)
	}
	q.mu.Unlock()

	if len(requeued) > 0 {
		q.logger.Info("requeued %d failed tasks", len(requeued))
	}
	return requeued
}

func (q *Queue) record(t core.Task, category string) {
	if q.auditor == nil {
		return
	}
	_ = q.auditor.Record(context.Background(), audit.Entry{
		Component: "queue",
		Category:  category,
		Tags:      []string{t.Source},
		TaskID:    t.ID,
		AgentID:   t.AssignedAgent,
		Detail: map[string]any{
			"status":   string(t.Status),
			"attempts": t.Attempts,
			"action":   t.Action,
		},
		Timestamp: q.now().UTC(),
	})
}
