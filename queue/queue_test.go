package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

func TestQueue_SubmitDefaults(t *testing.T) {
	q := New()
	id := q.Submit(SubmitInput{Source: "manual", Action: "fix the build"})

	task, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, core.TaskQueued, task.Status)
	assert.Equal(t, 0, task.Attempts)
	assert.Equal(t, 3, task.MaxAttempts)
	assert.Equal(t, "manual", task.Source)
}

func TestQueue_HarvestAndQueue(t *testing.T) {
	q := New()

	// No provider yet: harvesting is a no-op.
	ids, err := q.HarvestAndQueue(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, ids)

	q.RegisterAnalysisProvider(func(context.Context) (*core.AnalysisReport, error) {
		return &core.AnalysisReport{
			Summary:            "latency regression",
			RecommendedActions: []string{"fix the query", "", "add an index"},
			SnapshotHash:       "abc123",
		}, nil
	})

	ids, err = q.HarvestAndQueue(context.Background())
	require.NoError(t, err)
	// Empty actions are skipped.
	assert.Len(t, ids, 2)

	first, _ := q.Get(ids[0])
	assert.Equal(t, "analysis", first.Source)
	assert.Equal(t, "latency regression", first.Finding)
	assert.Equal(t, "fix the query", first.Action)
	assert.Equal(t, "abc123", first.SnapshotHash)
}

func TestQueue_HarvestProviderLastWins(t *testing.T) {
	q := New()
	q.RegisterAnalysisProvider(func(context.Context) (*core.AnalysisReport, error) {
		return &core.AnalysisReport{Summary: "old", RecommendedActions: []string{"old action"}}, nil
	})
	q.RegisterAnalysisProvider(func(context.Context) (*core.AnalysisReport, error) {
		return &core.AnalysisReport{Summary: "new", RecommendedActions: []string{"new action"}}, nil
	})

	ids, err := q.HarvestAndQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	task, _ := q.Get(ids[0])
	assert.Equal(t, "new action", task.Action)
}

func TestQueue_HarvestProviderError(t *testing.T) {
	q := New()
	q.RegisterAnalysisProvider(func(context.Context) (*core.AnalysisReport, error) {
		return nil, errors.New("analysis backend down")
	})

	_, err := q.HarvestAndQueue(context.Background())
	assert.Error(t, err)
	assert.Empty(t, q.Tasks())
}

func TestQueue_NextQueuedIsFIFO(t *testing.T) {
	q := New()
	first := q.Submit(SubmitInput{Source: "manual", Action: "one"})
	second := q.Submit(SubmitInput{Source: "manual", Action: "two"})
	third := q.Submit(SubmitInput{Source: "manual", Action: "three"})

	batch := q.NextQueued(2)
	require.Len(t, batch, 2)
	assert.Equal(t, first, batch[0].ID)
	assert.Equal(t, second, batch[1].ID)

	// Dispatched tasks drop out of the queued view.
	require.NoError(t, q.MarkDispatched(first, "dev-1"))
	rest := q.NextQueued(0)
	require.Len(t, rest, 2)
	assert.Equal(t, second, rest[0].ID)
	assert.Equal(t, third, rest[1].ID)
}

func TestQueue_MarkDispatchedConsumesAttempt(t *testing.T) {
	q := New()
	id := q.Submit(SubmitInput{Source: "manual", Action: "x"})

	require.NoError(t, q.MarkDispatched(id, "dev-1"))
	task, _ := q.Get(id)
	assert.Equal(t, core.TaskDispatched, task.Status)
	assert.Equal(t, "dev-1", task.AssignedAgent)
	assert.Equal(t, 1, task.Attempts)

	// Double dispatch is rejected.
	err := q.MarkDispatched(id, "dev-2")
	assert.True(t, core.IsCode(err, core.CodeValidation))

	err = q.MarkDispatched("ghost", "dev-1")
	assert.True(t, core.IsCode(err, core.CodeTaskNotFound))
}

func TestQueue_RevertDispatch(t *testing.T) {
	q := New()
	id := q.Submit(SubmitInput{Source: "manual", Action: "x"})
	require.NoError(t, q.MarkDispatched(id, "dev-1"))

	require.NoError(t, q.RevertDispatch(id))
	task, _ := q.Get(id)
	assert.Equal(t, core.TaskQueued, task.Status)
	assert.Equal(t, 0, task.Attempts)
	assert.Empty(t, task.AssignedAgent)
}

func TestQueue_ResultCompletesTask(t *testing.T) {
	q := New()
	id := q.Submit(SubmitInput{Source: "manual", Action: "x"})
	require.NoError(t, q.MarkDispatched(id, "dev-1"))

	applied, err := q.MarkExecutionResult(id, core.ExecutionResult{TaskID: id, Status: core.ResultCompleted, DurationMs: 120})
	require.NoError(t, err)
	assert.True(t, applied)

	task, _ := q.Get(id)
	assert.Equal(t, core.TaskCompleted, task.Status)
	assert.Equal(t, int64(120), task.DurationMs)
	assert.True(t, task.Terminal())
}

func TestQueue_ResultIdempotence(t *testing.T) {
	q := New()
	id := q.Submit(SubmitInput{Source: "manual", Action: "x"})
	require.NoError(t, q.MarkDispatched(id, "dev-1"))

	applied, err := q.MarkExecutionResult(id, core.ExecutionResult{TaskID: id, Status: core.ResultCompleted})
	require.NoError(t, err)
	assert.True(t, applied)

	// A late duplicate (even contradictory) is a no-op.
	applied, err = q.MarkExecutionResult(id, core.ExecutionResult{TaskID: id, Status: core.ResultFailed, ErrorCode: "X"})
	require.NoError(t, err)
	assert.False(t, applied)

	task, _ := q.Get(id)
	assert.Equal(t, core.TaskCompleted, task.Status)
	assert.Empty(t, task.ErrorCode)
}

func TestQueue_ResultForUnknownTask(t *testing.T) {
	q := New()
	_, err := q.MarkExecutionResult("ghost", core.ExecutionResult{Status: core.ResultCompleted})
	assert.True(t, core.IsCode(err, core.CodeTaskNotFound))
}

func TestQueue_FailureSchedulesBackoff(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	q := New(func(o *Options) {
		o.Backoff = ExponentialBackoff{Base: 30 * time.Second, Max: 30 * time.Minute}
		o.Clock = func() time.Time { return now }
	})

	id := q.Submit(SubmitInput{Source: "manual", Action: "x"})
	require.NoError(t, q.MarkDispatched(id, "dev-1"))

	applied, err := q.MarkExecutionResult(id, core.ExecutionResult{TaskID: id, Status: core.ResultFailed, ErrorMessage: "boom"})
	require.NoError(t, err)
	assert.True(t, applied)

	task, _ := q.Get(id)
	assert.Equal(t, core.TaskFailed, task.Status)
	// Agent supplied no code: defaulted.
	assert.Equal(t, core.CodeExecutionFailure, task.ErrorCode)
	assert.Equal(t, start.Add(30*time.Second).UnixMilli(), task.NextAttemptUnix)
	assert.False(t, task.Terminal())

	// Deadline not reached: nothing requeues.
	assert.Empty(t, q.ProcessDueRequeues(start.Add(29*time.Second).UnixMilli()))

	// Deadline passed: the task returns to queued with a cleared deadline.
	requeued := q.ProcessDueRequeues(start.Add(31 * time.Second).UnixMilli())
	assert.Equal(t, []string{id}, requeued)
	task, _ = q.Get(id)
	assert.Equal(t, core.TaskQueued, task.Status)
	assert.Empty(t, task.AssignedAgent)
	assert.Zero(t, task.NextAttemptUnix)
	assert.Equal(t, 1, task.Attempts)
}

func TestQueue_RetryBoundIsExact(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := New(func(o *Options) {
		o.Backoff = FixedBackoff{Delay: time.Second}
		o.Clock = func() time.Time { return now }
	})

	id := q.Submit(SubmitInput{Source: "manual", Action: "x", MaxAttempts: 2})
	fail := core.ExecutionResult{TaskID: id, Status: core.ResultFailed, ErrorCode: "DEPLOY_ERROR"}

	// First attempt fails and is requeued.
	require.NoError(t, q.MarkDispatched(id, "dev-1"))
	_, err := q.MarkExecutionResult(id, fail)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, q.ProcessDueRequeues(now.Add(2*time.Second).UnixMilli()))

	// Second attempt fails: attempts exhausted, terminal.
	require.NoError(t, q.MarkDispatched(id, "dev-1"))
	_, err = q.MarkExecutionResult(id, fail)
	require.NoError(t, err)

	task, _ := q.Get(id)
	assert.Equal(t, core.TaskFailed, task.Status)
	assert.Equal(t, 2, task.Attempts)
	assert.Equal(t, "DEPLOY_ERROR", task.ErrorCode)
	assert.Zero(t, task.NextAttemptUnix)
	assert.True(t, task.Terminal())

	// No third attempt, ever.
	assert.Empty(t, q.ProcessDueRequeues(now.Add(time.Hour).UnixMilli()))
}

func TestQueue_TasksSnapshotInCreationOrder(t *testing.T) {
	q := New()
	a := q.Submit(SubmitInput{Source: "manual", Action: "a"})
	b := q.Submit(SubmitInput{Source: "manual", Action: "b"})

	tasks := q.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, a, tasks[0].ID)
	assert.Equal(t, b, tasks[1].ID)

	// Snapshots are copies.
	tasks[0].Status = core.TaskCompleted
	fresh, _ := q.Get(a)
	assert.Equal(t, core.TaskQueued, fresh.Status)
}
