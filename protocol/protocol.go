package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/taskmesh/core"
)

// TypeTaskResult is the discriminator value of a structured result payload.
const TypeTaskResult = "task_result"

// taskRefPattern matches the structured task reference embedded in dispatch
// message content so agent runtimes can correlate their results.
var taskRefPattern = regexp.MustCompile(`TASK_ID:\s*([A-Za-z0-9-]+)`)

// FormatTaskRef renders the structured task reference line.
func FormatTaskRef(taskID string) string { return "TASK_ID: " + taskID }

// AppendTaskRef appends the task reference to message content on its own
// line.
func AppendTaskRef(content, taskID string) string {
	return content + "\n\n" + FormatTaskRef(taskID)
}

// ExtractTaskID returns the first task id referenced in content, if any.
func ExtractTaskID(content string) (string, bool) {
	m := taskRefPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// wireResult is the JSON shape of a structured execution result.
type wireResult struct {
	Type         string `json:"type"`
	TaskID       string `json:"taskId"`
	Status       string `json:"status"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	DurationMs   int64  `json:"durationMs,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
}

// MarshalResult encodes a result as the wire payload carried in a
// task_result message body.
func MarshalResult(res core.ExecutionResult) (string, error) {
	if res.TaskID == "" {
		return "", core.NewValidationError("execution result requires a taskId")
	}
	raw, err := json.Marshal(wireResult{
		Type:         TypeTaskResult,
		TaskID:       res.TaskID,
		Status:       string(res.Status),
		ErrorCode:    res.ErrorCode,
		ErrorMessage: res.ErrorMessage,
		DurationMs:   res.DurationMs,
		SessionID:    res.SessionID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal execution result: %w", err)
	}
	return string(raw), nil
}

// ParseResult defensively decodes a structured result from message content.
// It returns ok == false (never an error) when the content is not valid
// JSON, is not a task_result payload, lacks a taskId or carries an unknown
// status. Extra fields are ignored for forward compatibility.
func ParseResult(content string) (*core.ExecutionResult, bool) {
	if !gjson.Valid(content) {
		return nil, false
	}
	root := gjson.Parse(content)
	if !root.IsObject() {
		return nil, false
	}
	if root.Get("type").String() != TypeTaskResult {
		return nil, false
	}
	taskID := root.Get("taskId").String()
	if taskID == "" {
		return nil, false
	}

	status := core.ResultStatus(root.Get("status").String())
	if status != core.ResultCompleted && status != core.ResultFailed {
		return nil, false
	}

	res := &core.ExecutionResult{
		TaskID:       taskID,
		Status:       status,
		ErrorMessage: root.Get("errorMessage").String(),
		DurationMs:   root.Get("durationMs").Int(),
		SessionID:    root.Get("sessionId").String(),
	}
	if status == core.ResultFailed {
		res.ErrorCode = root.Get("errorCode").String()
		if res.ErrorCode == "" {
			res.ErrorCode = core.CodeExecutionFailure
		}
	}
	return res, true
}
