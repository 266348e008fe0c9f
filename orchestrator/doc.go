// Package orchestrator coordinates the delegation loop: it drains queued
// tasks, matches each to a capable session participant via the registry,
// dispatches task references over the message bus and correlates the
// structured results that come back into queue transitions and aggregate
// mission progress.
package orchestrator
