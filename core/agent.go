package core

import "time"

// AgentStatus describes the liveness state of a registered agent.
type AgentStatus string

const (
	// AgentOnline marks an agent as reachable and eligible for discovery.
	AgentOnline AgentStatus = "online"
	// AgentOffline marks an agent as shut down or evicted after a heartbeat
	// timeout. Offline agents are excluded from discovery results.
	AgentOffline AgentStatus = "offline"
)

// AgentDescriptor holds the registry record for a single agent: identity,
// advertised capabilities and liveness metadata. Descriptors are value types;
// the registry hands out copies so callers can never mutate registry state.
type AgentDescriptor struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Capabilities  []string    `json:"capabilities"`
	Status        AgentStatus `json:"status"`
	RegisteredAt  time.Time   `json:"registered_at"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
}

// HasCapability reports whether the descriptor advertises the given capability.
func (d AgentDescriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// MatchesAny reports whether the descriptor's capability set intersects the
// query. An empty query matches every agent.
func (d AgentDescriptor) MatchesAny(capabilities []string) bool {
	if len(capabilities) == 0 {
		return true
	}
	for _, c := range capabilities {
		if d.HasCapability(c) {
			return true
		}
	}
	return false
}

// Clone returns a copy with an independent capability slice.
func (d AgentDescriptor) Clone() AgentDescriptor {
	caps := make([]string, len(d.Capabilities))
	copy(caps, d.Capabilities)
	d.Capabilities = caps
	return d
}
