// Package audit defines the optional persistence/audit collaborator. Core
// components hand task and discussion-update records to a Recorder with
// canonical fields (component, category, tags); the Async wrapper decouples
// slow or absent sinks from message delivery with a bounded, drop-on-full
// buffer.
package audit
