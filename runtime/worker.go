package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/bus"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/event"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/monitor"
	"github.com/hupe1980/taskmesh/protocol"
	"github.com/hupe1980/taskmesh/registry"
)

// WorkerOptions holds dependency + configuration overrides passed to NewWorker().
type WorkerOptions struct {
	// InboxSize bounds the number of pending dispatch messages. Deliveries
	// beyond the bound are dropped with a warning; the task is later requeued
	// by backoff since no result arrives.
	InboxSize int
	// Registry, when set, receives periodic heartbeats for the worker's agent
	// so it survives eviction while busy.
	Registry *registry.Registry
	// HeartbeatInterval is the pause between heartbeats. Only used with a
	// Registry.
	HeartbeatInterval time.Duration
	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
	// Monitor receives operation outcomes. Defaults to NoOp.
	Monitor monitor.Monitor
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// Worker binds an agent id to a Runtime and drives the execute/report loop:
// it subscribes to the agent's message deliveries, executes each referenced
// task off the delivery goroutine and reports a structured result message back
// to the dispatcher. Exactly one result is sent per executed dispatch.
type Worker struct {
	agentID   string
	rt        Runtime
	bus       *bus.Bus
	events    *event.Bus
	reg       *registry.Registry
	heartbeat time.Duration
	inbox     chan core.Message
	logger    logging.Logger
	monitor   monitor.Monitor
	now       func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	handlerID int
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewWorker constructs a Worker for the given agent id.
func NewWorker(agentID string, rt Runtime, b *bus.Bus, events *event.Bus, optFns ...func(o *WorkerOptions)) *Worker {
	opts := WorkerOptions{
		InboxSize:         16,
		HeartbeatInterval: 30 * time.Second,
		Logger:            logging.NoOpLogger{},
		Monitor:           monitor.NoOp{},
		Clock:             time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Worker{
		agentID:   agentID,
		rt:        rt,
		bus:       b,
		events:    events,
		reg:       opts.Registry,
		heartbeat: opts.HeartbeatInterval,
		inbox:     make(chan core.Message, opts.InboxSize),
		logger:    opts.Logger,
		monitor:   opts.Monitor,
		now:       opts.Clock,
		done:      make(chan struct{}),
	}
}

// AgentID returns the agent this worker executes for.
func (w *Worker) AgentID() string { return w.agentID }

// Start attaches the worker to the event bus and launches the execution loop.
// Subsequent calls are no-ops.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		ctx, w.cancel = context.WithCancel(ctx)

		w.handlerID = w.events.On(event.MessageReceived, func(ev event.Event) {
			if ev.Recipient != w.agentID || ev.Message == nil {
				return
			}
			if ev.Message.Type != core.MessageTaskDispatch {
				return
			}
			select {
			case w.inbox <- ev.Message.Clone():
			default:
				w.logger.Warn("worker inbox full, dropping dispatch agent_id=%s message_id=%s", w.agentID, ev.Message.ID)
			}
		})

		go w.loop(ctx)
	})
}

// Stop detaches the worker and waits for the execution loop to drain.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.events.Off(event.MessageReceived, w.handlerID)
		if w.cancel != nil {
			w.cancel()
		}
		<-w.done
	})
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	var heartbeatC <-chan time.Time
	if w.reg != nil {
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()
		heartbeatC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeatC:
			if err := w.reg.Heartbeat(w.agentID); err != nil {
				w.logger.Warn("worker heartbeat failed agent_id=%s err=%v", w.agentID, err)
			}
		case msg := <-w.inbox:
			w.execute(ctx, msg)
		}
	}
}

// execute runs the referenced task and reports a structured result to the
// dispatcher. Dispatch messages without a task reference are logged and
// dropped; they cannot be correlated and a fabricated result would be worse
// than none.
func (w *Worker) execute(ctx context.Context, msg core.Message) {
	taskID, ok := protocol.ExtractTaskID(msg.Content)
	if !ok {
		w.logger.Warn("dispatch without task reference agent_id=%s message_id=%s", w.agentID, msg.ID)
		return
	}

	done := monitor.Track(w.monitor, "worker.execute")
	start := w.now()
	output, err := w.rt.ProcessMessage(ctx, &msg)
	dur := w.now().Sub(start)
	done(err)

	res := core.ExecutionResult{
		TaskID:     taskID,
		Status:     core.ResultCompleted,
		DurationMs: dur.Milliseconds(),
		SessionID:  msg.SessionID,
	}
	if err != nil {
		res.Status = core.ResultFailed
		res.ErrorCode = core.CodeOf(err)
		if res.ErrorCode == "" {
			res.ErrorCode = core.CodeExecutionFailure
		}
		res.ErrorMessage = err.Error()
	}

	payload, merr := protocol.MarshalResult(res)
	if merr != nil {
		w.logger.Error("marshal result failed task_id=%s err=%v", taskID, merr)
		return
	}

	input := bus.SendInput{
		SessionID: msg.SessionID,
		FromAgent: w.agentID,
		ToAgent:   msg.FromAgent,
		Content:   payload,
		Type:      core.MessageTaskResult,
	}
	if err == nil && output != "" {
		input.Metadata = map[string]any{"output": output}
	}

	if _, serr := w.bus.Send(input); serr != nil {
		w.logger.Error("result delivery failed task_id=%s agent_id=%s err=%v", taskID, w.agentID, serr)
	}
}
