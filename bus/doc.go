// Package bus implements the session-scoped message bus: direct sends and
// broadcasts with membership validation, per-sender sliding-window rate
// limiting, strictly ordered history and synchronous lifecycle event
// emission (message_sent, then message_received once per intended recipient).
package bus
