package core

import (
	"context"
	"time"
)

// TaskStatus is the delegation state of a task.
//
// Lifecycle: queued → dispatched → {completed | failed}, with failed → queued
// via requeue until attempts are exhausted, after which failed is terminal.
type TaskStatus string

const (
	// TaskQueued means the task awaits dispatch.
	TaskQueued TaskStatus = "queued"
	// TaskDispatched means the task was handed to an agent and awaits a result.
	TaskDispatched TaskStatus = "dispatched"
	// TaskCompleted means the assigned agent reported success. Terminal.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means the assigned agent reported failure. Terminal once
	// Attempts == MaxAttempts, otherwise eligible for requeue after backoff.
	TaskFailed TaskStatus = "failed"
)

// Task is a retryable unit of delegated work. Tasks are never deleted, only
// transitioned; Attempts counts dispatch attempts and never exceeds
// MaxAttempts. All mutation is funneled through the delegation queue.
type Task struct {
	ID              string     `json:"id"`
	CreatedAt       time.Time  `json:"createdAt"`
	Source          string     `json:"source"`
	Finding         string     `json:"finding"`
	Action          string     `json:"action"`
	Status          TaskStatus `json:"status"`
	Attempts        int        `json:"attempts"`
	MaxAttempts     int        `json:"maxAttempts"`
	NextAttemptUnix int64      `json:"nextAttemptUnix,omitempty"`
	AssignedAgent   string     `json:"assignedAgent,omitempty"`
	ErrorCode       string     `json:"errorCode,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	DurationMs      int64      `json:"durationMs,omitempty"`
	SnapshotHash    string     `json:"snapshotHash,omitempty"`
}

// Terminal reports whether the task can no longer transition: completed, or
// failed with all attempts consumed.
func (t Task) Terminal() bool {
	if t.Status == TaskCompleted {
		return true
	}
	return t.Status == TaskFailed && t.Attempts >= t.MaxAttempts
}

// ResultStatus is the outcome reported by an agent runtime for one dispatch.
type ResultStatus string

const (
	// ResultCompleted signals successful task execution.
	ResultCompleted ResultStatus = "completed"
	// ResultFailed signals task execution failure; ErrorCode carries the
	// agent-supplied failure code.
	ResultFailed ResultStatus = "failed"
)

// ExecutionResult is the structured completion/failure signal an agent
// runtime emits for a specific task id. It is produced exactly once per
// dispatch attempt; duplicates for an already-resolved task are ignored.
type ExecutionResult struct {
	TaskID       string       `json:"taskId"`
	Status       ResultStatus `json:"status"`
	ErrorCode    string       `json:"errorCode,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	DurationMs   int64        `json:"durationMs,omitempty"`
	SessionID    string       `json:"sessionId,omitempty"`
}

// MissionProgress is an aggregate snapshot of a task plan. It is derived from
// queue state after each orchestration cycle and each correlated result,
// never independently mutated.
type MissionProgress struct {
	PlanID     string `json:"planId"`
	Total      int    `json:"total"`
	Dispatched int    `json:"dispatched"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	InProgress int    `json:"inProgress"`
}

// AnalysisReport is the submission shape produced by an analysis provider:
// one task is queued per recommended action.
type AnalysisReport struct {
	Summary            string   `json:"summary"`
	RecommendedActions []string `json:"recommendedActions"`
	SnapshotHash       string   `json:"snapshotHash,omitempty"`
}

// AnalysisProvider produces a finding summary plus recommended actions for
// harvesting. Providers may be slow (offline analysis runs), hence the
// context.
type AnalysisProvider func(ctx context.Context) (*AnalysisReport, error)
