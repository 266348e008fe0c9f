// Package event implements the in-process publish/subscribe bus used for
// lifecycle notifications: agent registration, message delivery, task
// dispatch and mission progress. Handler registration and removal are
// symmetric (On returns an id consumed by Off) and removing a handler for one
// event type never disturbs handlers of other types, so test instances can be
// torn down without leaking state.
package event
