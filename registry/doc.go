// Package registry implements the agent registry: idempotent registration,
// capability-based discovery, heartbeats and timeout-driven eviction. The
// registry is an explicitly constructed, injectable component; discovery
// results are defensive copies.
package registry
