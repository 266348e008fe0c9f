// Package runtime contains the agent-side execution machinery: the Runtime
// interface that turns an incoming message into output, a model-backed
// implementation, and the Worker that subscribes an agent to its session
// deliveries, executes referenced tasks and reports structured results back
// over the bus.
package runtime
