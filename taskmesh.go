// Package taskmesh wires the agent coordination subsystem together: a
// capability registry with heartbeat eviction, session-scoped messaging with
// rate limiting and ordered history, a retryable task delegation queue and an
// orchestrator that matches tasks to capable agents and aggregates their
// structured results into mission progress.
//
// The subpackages are usable on their own; TaskMesh is the convenience
// assembly that shares one event bus, logger, monitor and audit sink across
// all of them.
package taskmesh

import (
	"context"
	"time"

	"github.com/hupe1980/taskmesh/audit"
	"github.com/hupe1980/taskmesh/bus"
	"github.com/hupe1980/taskmesh/event"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/monitor"
	"github.com/hupe1980/taskmesh/orchestrator"
	"github.com/hupe1980/taskmesh/queue"
	"github.com/hupe1980/taskmesh/registry"
)

// Options holds the tunables of a TaskMesh assembly. Zero values select the
// component defaults.
type Options struct {
	// HeartbeatTimeout is the maximum heartbeat age before agent eviction.
	HeartbeatTimeout time.Duration
	// RateLimitWindow and RateLimitMax configure the per-sender send quota.
	RateLimitWindow time.Duration
	RateLimitMax    int
	// MaxAttempts bounds dispatch attempts per task.
	MaxAttempts int
	// Backoff computes requeue delays after task failures.
	Backoff queue.BackoffPolicy
	// RequeueInterval is the tick period of the requeue scheduler.
	RequeueInterval time.Duration
	// OrchestratorAgentID is the identity dispatch messages are sent under.
	OrchestratorAgentID string
	// Audit receives records from the bus, queue and orchestrator. Optional;
	// wrap slow sinks in audit.NewAsync.
	Audit audit.Recorder
	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
	// Monitor receives operation outcomes. Defaults to NoOp.
	Monitor monitor.Monitor
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// TaskMesh is the assembled coordination subsystem. The embedded components
// share one event bus, so worker runtimes attached to Events observe every
// delivery and the orchestrator observes every result.
type TaskMesh struct {
	Events       *event.Bus
	Registry     *registry.Registry
	Bus          *bus.Bus
	Queue        *queue.Queue
	Orchestrator *orchestrator.Orchestrator

	scheduler *queue.Scheduler
	auditor   audit.Recorder
}

// New assembles a TaskMesh and starts result correlation. Call Shutdown to
// release the background machinery.
func New(optFns ...func(o *Options)) *TaskMesh {
	opts := Options{
		RequeueInterval: 5 * time.Second,
		Logger:          logging.NoOpLogger{},
		Monitor:         monitor.NoOp{},
		Clock:           time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	events := event.NewBus()

	reg := registry.New(func(o *registry.Options) {
		if opts.HeartbeatTimeout > 0 {
			o.HeartbeatTimeout = opts.HeartbeatTimeout
		}
		o.Events = events
		o.Logger = opts.Logger
		o.Monitor = opts.Monitor
		o.Clock = opts.Clock
	})

	b := bus.New(func(o *bus.Options) {
		if opts.RateLimitWindow > 0 {
			o.RateLimitWindow = opts.RateLimitWindow
		}
		if opts.RateLimitMax > 0 {
			o.RateLimitMax = opts.RateLimitMax
		}
		o.Events = events
		o.Audit = opts.Audit
		o.Logger = opts.Logger
		o.Monitor = opts.Monitor
		o.Clock = opts.Clock
	})

	q := queue.New(func(o *queue.Options) {
		if opts.MaxAttempts > 0 {
			o.MaxAttempts = opts.MaxAttempts
		}
		if opts.Backoff != nil {
			o.Backoff = opts.Backoff
		}
		o.Audit = opts.Audit
		o.Logger = opts.Logger
		o.Monitor = opts.Monitor
		o.Clock = opts.Clock
	})

	orch := orchestrator.New(reg, q, b, events, func(o *orchestrator.Options) {
		if opts.OrchestratorAgentID != "" {
			o.AgentID = opts.OrchestratorAgentID
		}
		o.Audit = opts.Audit
		o.Logger = opts.Logger
		o.Monitor = opts.Monitor
		o.Clock = opts.Clock
	})
	orch.Start()

	return &TaskMesh{
		Events:       events,
		Registry:     reg,
		Bus:          b,
		Queue:        q,
		Orchestrator: orch,
		scheduler:    queue.NewScheduler(q, opts.RequeueInterval, opts.Logger),
		auditor:      opts.Audit,
	}
}

// StartRequeueScheduler launches the background requeue loop. Without it,
// callers drive requeues explicitly via Queue.ProcessDueRequeues.
func (m *TaskMesh) StartRequeueScheduler(ctx context.Context) error {
	return m.scheduler.Start(ctx)
}

// Shutdown stops the requeue scheduler, detaches result correlation and
// closes an owned async audit sink. Queue and session state stay readable
// after shutdown.
func (m *TaskMesh) Shutdown() {
	m.scheduler.Stop()
	m.Orchestrator.Stop()
	if closer, ok := m.auditor.(*audit.Async); ok {
		_ = closer.Close()
	}
}
