package registry

import (
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/event"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/monitor"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// HeartbeatTimeout is the maximum heartbeat age before an agent is
	// evicted (marked offline) on the next discovery or sweep pass.
	HeartbeatTimeout time.Duration
	// Events receives agent_registered notifications. Optional.
	Events *event.Bus
	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
	// Monitor receives operation outcomes. Defaults to NoOp.
	Monitor monitor.Monitor
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// Registry holds descriptors of registered agents and supports
// capability-based discovery with heartbeat-driven eviction. All exported
// methods are safe for concurrent use; mutation is funneled through them.
type Registry struct {
	mu               sync.RWMutex
	agents           map[string]*core.AgentDescriptor
	order            []string // registration order for deterministic discovery
	heartbeatTimeout time.Duration
	now              func() time.Time
	events           *event.Bus
	logger           logging.Logger
	monitor          monitor.Monitor
}

// New constructs a Registry with optional overrides.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		HeartbeatTimeout: 2 * time.Minute,
		Logger:           logging.NoOpLogger{},
		Monitor:          monitor.NoOp{},
		Clock:            time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		agents:           make(map[string]*core.AgentDescriptor),
		heartbeatTimeout: opts.HeartbeatTimeout,
		now:              opts.Clock,
		events:           opts.Events,
		logger:           opts.Logger,
		monitor:          opts.Monitor,
	}
}

// Register upserts an agent descriptor by id and returns the agent id. A
// descriptor without an id gets one generated. Registration is idempotent:
// re-registering an id overwrites metadata last-write-wins while preserving
// the original RegisteredAt. Fails with a VALIDATION error when the
// capability set is empty.
func (r *Registry) Register(desc core.AgentDescriptor) (string, error) {
	done := monitor.Track(r.monitor, "registry.register")

	if len(desc.Capabilities) == 0 {
		err := core.NewValidationError("agent %q requires at least one capability", desc.Name)
		done(err)
		return "", err
	}
	if desc.ID == "" {
		desc.ID = core.NewID()
	}

	now := r.now().UTC()

	r.mu.Lock()
	stored := desc.Clone()
	stored.Status = core.AgentOnline
	stored.LastHeartbeat = now
	if existing, ok := r.agents[desc.ID]; ok {
		stored.RegisteredAt = existing.RegisteredAt
	} else {
		stored.RegisteredAt = now
		r.order = append(r.order, desc.ID)
	}
	r.agents[desc.ID] = &stored
	r.mu.Unlock()

	r.logger.Debug("agent registered id=%s name=%s capabilities=%v", stored.ID, stored.Name, stored.Capabilities)
	if r.events != nil {
		r.events.Emit(event.Event{Type: event.AgentRegistered, AgentID: stored.ID})
	}

	done(nil)
	return stored.ID, nil
}

// Discover returns agents whose capability set intersects the query. An empty
// query returns all online agents. Agents with an expired heartbeat are
// evicted before matching. Results are clones in registration order.
func (r *Registry) Discover(capabilities []string) []core.AgentDescriptor {
	done := monitor.Track(r.monitor, "registry.discover")
	defer done(nil)

	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictStaleLocked(now)

	var matches []core.AgentDescriptor
	for _, id := range r.order {
		d := r.agents[id]
		if d.Status != core.AgentOnline {
			continue
		}
		if d.MatchesAny(capabilities) {
			matches = append(matches, d.Clone())
		}
	}
	return matches
}

// Heartbeat refreshes the agent's liveness timestamp and restores an evicted
// agent to online. Fails with AGENT_NOT_FOUND for unknown ids.
func (r *Registry) Heartbeat(agentID string) error {
	done := monitor.Track(r.monitor, "registry.heartbeat")

	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.agents[agentID]
	if !ok {
		err := core.NewError(core.CodeAgentNotFound, "agent %s not registered", agentID)
		done(err)
		return err
	}
	d.LastHeartbeat = r.now().UTC()
	d.Status = core.AgentOnline
	done(nil)
	return nil
}

// Sweep evicts agents whose heartbeat age exceeds the timeout at the given
// instant and returns the ids marked offline. Tests drive it with synthetic
// clock values; Discover performs the same pass implicitly.
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictStaleLocked(now)
}

func (r *Registry) evictStaleLocked(now time.Time) []string {
	var evicted []string
	for _, id := range r.order {
		d := r.agents[id]
		if d.Status != core.AgentOnline {
			continue
		}
		if now.Sub(d.LastHeartbeat) > r.heartbeatTimeout {
			d.Status = core.AgentOffline
			evicted = append(evicted, id)
			r.logger.Info("agent evicted after heartbeat timeout id=%s last_heartbeat=%s", id, d.LastHeartbeat)
		}
	}
	return evicted
}

// Shutdown marks an agent offline on explicit departure. Fails with
// AGENT_NOT_FOUND for unknown ids.
func (r *Registry) Shutdown(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.agents[agentID]
	if !ok {
		return core.NewError(core.CodeAgentNotFound, "agent %s not registered", agentID)
	}
	d.Status = core.AgentOffline
	return nil
}

// Get returns a clone of the descriptor for agentID.
func (r *Registry) Get(agentID string) (core.AgentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.agents[agentID]
	if !ok {
		return core.AgentDescriptor{}, false
	}
	return d.Clone(), true
}
