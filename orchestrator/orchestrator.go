package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/audit"
	"github.com/hupe1980/taskmesh/bus"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/event"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/monitor"
	"github.com/hupe1980/taskmesh/protocol"
	"github.com/hupe1980/taskmesh/queue"
	"github.com/hupe1980/taskmesh/registry"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// AgentID is the identity the orchestrator sends dispatch messages under.
	// It must be a participant of every session it dispatches into.
	AgentID string
	// CapabilityRules maps action keywords (matched case-insensitively) to the
	// capability required to execute them. First matching keyword wins.
	CapabilityRules []CapabilityRule
	// DefaultCapability is required when no rule matches an action.
	DefaultCapability string
	// Audit receives dispatch records. Optional.
	Audit audit.Recorder
	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
	// Monitor receives operation outcomes. Defaults to NoOp.
	Monitor monitor.Monitor
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// CapabilityRule binds an action keyword to the capability that can serve it.
type CapabilityRule struct {
	Keyword    string
	Capability string
}

// DefaultCapabilityRules classify recommended actions by their wording.
func DefaultCapabilityRules() []CapabilityRule {
	return []CapabilityRule{
		{Keyword: "test", Capability: "testing"},
		{Keyword: "review", Capability: "review"},
		{Keyword: "deploy", Capability: "deployment"},
		{Keyword: "document", Capability: "documentation"},
		{Keyword: "triage", Capability: "triage"},
		{Keyword: "investigate", Capability: "triage"},
	}
}

// PlanInput parameterizes one orchestration cycle.
type PlanInput struct {
	// SessionID is the session tasks are dispatched into.
	SessionID string
	// Limit caps the number of tasks considered this cycle; zero means all.
	Limit int
}

// PlanResult summarizes one orchestration cycle.
type PlanResult struct {
	Dispatched []string
	Skipped    []string
}

// Orchestrator matches queued tasks to capable agents and correlates the
// structured results they report. It owns no task state itself; every
// transition goes through the queue, so progress snapshots are always derived
// and a crash can never leave orchestrator-private state behind.
type Orchestrator struct {
	agentID    string
	planID     string
	registry   *registry.Registry
	queue      *queue.Queue
	bus        *bus.Bus
	events     *event.Bus
	rules      []CapabilityRule
	defaultCap string
	auditor    audit.Recorder
	logger     logging.Logger
	monitor    monitor.Monitor
	now        func() time.Time

	mu           sync.Mutex
	dispatchedAt map[string]time.Time
	latency      map[string]time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	handlerID int
}

// New constructs an Orchestrator with optional overrides.
func New(reg *registry.Registry, q *queue.Queue, b *bus.Bus, events *event.Bus, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		AgentID:           "orchestrator",
		CapabilityRules:   DefaultCapabilityRules(),
		DefaultCapability: "development",
		Logger:            logging.NoOpLogger{},
		Monitor:           monitor.NoOp{},
		Clock:             time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		agentID:      opts.AgentID,
		planID:       core.NewID(),
		registry:     reg,
		queue:        q,
		bus:          b,
		events:       events,
		rules:        opts.CapabilityRules,
		defaultCap:   opts.DefaultCapability,
		auditor:      opts.Audit,
		logger:       opts.Logger,
		monitor:      opts.Monitor,
		now:          opts.Clock,
		dispatchedAt: make(map[string]time.Time),
		latency:      make(map[string]time.Duration),
	}
}

// AgentID returns the identity the orchestrator dispatches under.
func (o *Orchestrator) AgentID() string { return o.agentID }

// PlanID returns the plan identifier stamped on progress snapshots.
func (o *Orchestrator) PlanID() string { return o.planID }

// Start attaches the result correlation handler. Subsequent calls are no-ops.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		o.handlerID = o.events.On(event.MessageSent, func(ev event.Event) {
			if ev.Message == nil || ev.Message.Type != core.MessageTaskResult {
				return
			}
			o.correlate(ev.Message)
		})
	})
}

// Stop detaches the correlation handler.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.events.Off(event.MessageSent, o.handlerID)
	})
}

// ExecutePlan runs one orchestration cycle: queued tasks are drained FIFO and
// each is either dispatched to the first capable online session participant or
// skipped (left queued) when none exists. A skip is not an attempt; the task
// stays eligible for the next cycle. The cycle ends with a mission_progress
// event.
func (o *Orchestrator) ExecutePlan(ctx context.Context, input PlanInput) (*PlanResult, error) {
	done := monitor.Track(o.monitor, "orchestrator.execute_plan")
	start := o.now()

	sess, err := o.bus.Sessions().Get(input.SessionID)
	if err != nil {
		done(err)
		return nil, err
	}

	result := &PlanResult{}
	for _, task := range o.queue.NextQueued(input.Limit) {
		if err := ctx.Err(); err != nil {
			done(err)
			return result, err
		}

		capability := o.capabilityFor(task.Action)
		agent, found := o.selectAgent(sess, capability)
		if !found {
			o.logger.Debug("no capable agent task_id=%s capability=%s", task.ID, capability)
			result.Skipped = append(result.Skipped, task.ID)
			continue
		}

		if err := o.dispatch(task, agent, input.SessionID); err != nil {
			o.logger.Warn("dispatch failed task_id=%s agent_id=%s err=%v", task.ID, agent.ID, err)
			result.Skipped = append(result.Skipped, task.ID)
			continue
		}
		result.Dispatched = append(result.Dispatched, task.ID)
	}

	o.logger.Info("plan cycle dispatched=%d skipped=%d duration=%s", len(result.Dispatched), len(result.Skipped), o.now().Sub(start))
	o.emitProgress()
	done(nil)
	return result, nil
}

// capabilityFor classifies an action by its wording.
func (o *Orchestrator) capabilityFor(action string) string {
	lower := strings.ToLower(action)
	for _, rule := range o.rules {
		if strings.Contains(lower, rule.Keyword) {
			return rule.Capability
		}
	}
	return o.defaultCap
}

// selectAgent returns the first discovered agent with the capability that is
// also a session participant. Discovery order is registration order, which
// keeps assignment deterministic.
func (o *Orchestrator) selectAgent(sess *core.Session, capability string) (core.AgentDescriptor, bool) {
	for _, agent := range o.registry.Discover([]string{capability}) {
		if agent.ID == o.agentID {
			continue
		}
		if sess.HasParticipant(agent.ID) {
			return agent, true
		}
	}
	return core.AgentDescriptor{}, false
}

// dispatch consumes an attempt and delivers the task reference. A delivery
// failure reverts the attempt so a rate-limited cycle does not burn retries.
func (o *Orchestrator) dispatch(task core.Task, agent core.AgentDescriptor, sessionID string) error {
	if err := o.queue.MarkDispatched(task.ID, agent.ID); err != nil {
		return err
	}

	content := fmt.Sprintf("Please handle the following task.\n\nFinding: %s\nAction: %s", task.Finding, task.Action)
	msg, err := o.bus.Send(bus.SendInput{
		SessionID: sessionID,
		FromAgent: o.agentID,
		ToAgent:   agent.ID,
		Content:   protocol.AppendTaskRef(content, task.ID),
		Type:      core.MessageTaskDispatch,
	})
	if err != nil {
		if rerr := o.queue.RevertDispatch(task.ID); rerr != nil {
			o.logger.Error("revert dispatch failed task_id=%s err=%v", task.ID, rerr)
		}
		return err
	}

	o.mu.Lock()
	o.dispatchedAt[task.ID] = o.now()
	o.mu.Unlock()

	dispatched, _ := o.queue.Get(task.ID)
	o.logger.Info("task dispatched task_id=%s agent_id=%s attempt=%d", task.ID, agent.ID, dispatched.Attempts)
	o.record(task.ID, agent.ID, sessionID, dispatched.Attempts)

	if o.events != nil {
		o.events.Emit(event.Event{
			Type:      event.TaskDispatched,
			TaskID:    task.ID,
			AgentID:   agent.ID,
			SessionID: sessionID,
			Message:   msg,
		})
	}
	return nil
}

// correlate applies a structured result message to queue state. Malformed
// payloads, unknown task ids and duplicate results are logged no-ops so a
// misbehaving agent can never corrupt the plan.
func (o *Orchestrator) correlate(msg *core.Message) {
	res, ok := protocol.ParseResult(msg.Content)
	if !ok {
		o.logger.Debug("ignoring malformed result payload message_id=%s", msg.ID)
		return
	}

	applied, err := o.queue.MarkExecutionResult(res.TaskID, *res)
	if err != nil {
		o.logger.Warn("result for unknown task ignored task_id=%s", res.TaskID)
		return
	}
	if !applied {
		o.logger.Debug("duplicate result ignored task_id=%s", res.TaskID)
		return
	}

	o.recordLatency(res)
	o.logger.Info("result applied task_id=%s status=%s from=%s", res.TaskID, res.Status, msg.FromAgent)
	o.emitProgress()
}

// recordLatency prefers the agent-reported execution duration and falls back
// to the dispatch-to-result wall time.
func (o *Orchestrator) recordLatency(res *core.ExecutionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if res.DurationMs > 0 {
		o.latency[res.TaskID] = time.Duration(res.DurationMs) * time.Millisecond
	} else if at, ok := o.dispatchedAt[res.TaskID]; ok {
		o.latency[res.TaskID] = o.now().Sub(at)
	}
	delete(o.dispatchedAt, res.TaskID)
}

// TaskLatency returns the recorded execution latency for a resolved task.
func (o *Orchestrator) TaskLatency(taskID string) (time.Duration, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.latency[taskID]
	return d, ok
}

// Progress derives the aggregate plan snapshot from queue state. Dispatched
// counts every task that consumed at least one attempt; InProgress counts
// tasks currently awaiting a result.
func (o *Orchestrator) Progress() core.MissionProgress {
	p := core.MissionProgress{PlanID: o.planID}
	for _, t := range o.queue.Tasks() {
		p.Total++
		if t.Attempts > 0 {
			p.Dispatched++
		}
		switch t.Status {
		case core.TaskCompleted:
			p.Completed++
		case core.TaskFailed:
			p.Failed++
		case core.TaskDispatched:
			p.InProgress++
		}
	}
	return p
}

func (o *Orchestrator) emitProgress() {
	if o.events == nil {
		return
	}
	p := o.Progress()
	o.events.Emit(event.Event{Type: event.MissionProgress, Progress: &p})
}

func (o *Orchestrator) record(taskID, agentID, sessionID string, attempt int) {
	if o.auditor == nil {
		return
	}
	_ = o.auditor.Record(context.Background(), audit.Entry{
		Component: "orchestrator",
		Category:  "task_dispatched",
		TaskID:    taskID,
		AgentID:   agentID,
		SessionID: sessionID,
		Detail:    map[string]any{"attempt": attempt},
		Timestamp: o.now().UTC(),
	})
}
