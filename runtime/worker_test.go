package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/bus"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/event"
	"github.com/hupe1980/taskmesh/protocol"
)

type workerFixture struct {
	events *event.Bus
	bus    *bus.Bus
	sess   *core.Session
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	events := event.NewBus()
	b := bus.New(func(o *bus.Options) { o.Events = events })
	sess, err := b.CreateSession(core.CreateSessionParams{
		Name:         "test",
		Participants: []string{"orchestrator", "dev-1"},
	})
	require.NoError(t, err)
	return &workerFixture{events: events, bus: b, sess: sess}
}

// dispatch sends a task_dispatch message to dev-1 carrying the task reference.
func (f *workerFixture) dispatch(t *testing.T, taskID string) {
	t.Helper()
	_, err := f.bus.Send(bus.SendInput{
		SessionID: f.sess.ID,
		FromAgent: "orchestrator",
		ToAgent:   "dev-1",
		Content:   protocol.AppendTaskRef("Fix the flaky test.", taskID),
		Type:      core.MessageTaskDispatch,
	})
	require.NoError(t, err)
}

// lastResult returns the most recent task_result message in the session.
func (f *workerFixture) lastResult() (*core.Message, *core.ExecutionResult) {
	history, _ := f.bus.History(f.sess.ID, 0)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Type == core.MessageTaskResult {
			if res, ok := protocol.ParseResult(history[i].Content); ok {
				return &history[i], res
			}
		}
	}
	return nil, nil
}

func TestWorker_ExecutesAndReportsSuccess(t *testing.T) {
	f := newWorkerFixture(t)

	w := NewWorker("dev-1", Func(func(_ context.Context, msg *core.Message) (string, error) {
		return "patched it", nil
	}), f.bus, f.events)
	w.Start(context.Background())
	defer w.Stop()

	f.dispatch(t, "task-1")

	assert.Eventually(t, func() bool {
		_, res := f.lastResult()
		return res != nil
	}, time.Second, 10*time.Millisecond)

	msg, res := f.lastResult()
	assert.Equal(t, "dev-1", msg.FromAgent)
	assert.Equal(t, "orchestrator", msg.ToAgent)
	assert.Equal(t, "task-1", res.TaskID)
	assert.Equal(t, core.ResultCompleted, res.Status)
	assert.Equal(t, f.sess.ID, res.SessionID)
	assert.Equal(t, "patched it", msg.Metadata["output"])
}

func TestWorker_ReportsCodedFailure(t *testing.T) {
	f := newWorkerFixture(t)

	w := NewWorker("dev-1", Func(func(context.Context, *core.Message) (string, error) {
		return "", core.NewError("DEPLOY_ERROR", "rollout blocked")
	}), f.bus, f.events)
	w.Start(context.Background())
	defer w.Stop()

	f.dispatch(t, "task-2")

	assert.Eventually(t, func() bool {
		_, res := f.lastResult()
		return res != nil
	}, time.Second, 10*time.Millisecond)

	_, res := f.lastResult()
	assert.Equal(t, core.ResultFailed, res.Status)
	assert.Equal(t, "DEPLOY_ERROR", res.ErrorCode)
	assert.Contains(t, res.ErrorMessage, "rollout blocked")
}

func TestWorker_DefaultsUncodedFailure(t *testing.T) {
	f := newWorkerFixture(t)

	w := NewWorker("dev-1", Func(func(context.Context, *core.Message) (string, error) {
		return "", errors.New("plain failure")
	}), f.bus, f.events)
	w.Start(context.Background())
	defer w.Stop()

	f.dispatch(t, "task-3")

	assert.Eventually(t, func() bool {
		_, res := f.lastResult()
		return res != nil
	}, time.Second, 10*time.Millisecond)

	_, res := f.lastResult()
	assert.Equal(t, core.CodeExecutionFailure, res.ErrorCode)
}

func TestWorker_IgnoresForeignAndUnreferencedMessages(t *testing.T) {
	f := newWorkerFixture(t)

	executed := 0
	w := NewWorker("dev-1", Func(func(context.Context, *core.Message) (string, error) {
		executed++
		return "", nil
	}), f.bus, f.events)
	w.Start(context.Background())
	defer w.Stop()

	// Plain text delivery: not a dispatch, no execution.
	_, err := f.bus.Send(bus.SendInput{SessionID: f.sess.ID, FromAgent: "orchestrator", ToAgent: "dev-1", Content: "hello"})
	require.NoError(t, err)

	// Dispatch without a task reference: logged and dropped.
	_, err = f.bus.Send(bus.SendInput{SessionID: f.sess.ID, FromAgent: "orchestrator", ToAgent: "dev-1", Content: "untracked work", Type: core.MessageTaskDispatch})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, executed)

	_, res := f.lastResult()
	assert.Nil(t, res)
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	f := newWorkerFixture(t)
	w := NewWorker("dev-1", Func(func(context.Context, *core.Message) (string, error) {
		return "", nil
	}), f.bus, f.events)
	w.Start(context.Background())
	w.Stop()
	w.Stop()
	assert.Zero(t, f.events.HandlerCount(event.MessageReceived))
}
