// Package queue implements the retryable task delegation queue: harvesting
// tasks from an analysis provider, direct submission, atomic status
// transitions, idempotent result application and deadline-driven requeues
// with deterministic backoff. The requeue pass is an explicit tick function
// decoupled from any timer so tests can drive it with synthetic clocks; the
// Scheduler wraps it for interval-driven production use.
package queue
