// Package core provides the foundational domain types and interfaces used by
// TaskMesh. It defines the core abstractions for:
//
//   - Agent descriptors (identity, capabilities, liveness status)
//   - Sessions (bounded conversational containers with ordered message history)
//   - Messages (immutable session-scoped communication records)
//   - Tasks (retryable units of delegated work with bounded attempts)
//   - Execution results and mission progress (correlated task outcomes)
//   - The coded error taxonomy shared by all components
//
// The package intentionally keeps implementation concerns (stores, the message
// bus, the orchestrator) out of scope, exposing small interfaces so custom
// backends can be substituted without changing call sites. All exported
// identifiers include concise documentation to aid discoverability.
package core
