// Package session provides the in-memory core.SessionStore implementation.
// Sessions are created explicitly with a fixed, non-empty participant set;
// message sequence numbers are assigned inside the store under a per-session
// point of serialization.
package session
