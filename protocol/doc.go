// Package protocol defines the structured execution-result wire shape agents
// emit out-of-band from their normal replies, plus the task-reference
// convention embedded in dispatch messages. Parsing is deliberately lenient:
// the agent runtime is an untrusted, best-effort collaborator, so malformed
// payloads are reported as not-a-result instead of errors and unknown fields
// are ignored.
package protocol
