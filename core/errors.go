package core

import (
	"errors"
	"fmt"
)

// Error codes shared across components. Callers should compare via CodeOf /
// IsCode rather than string-matching error messages.
const (
	// CodeValidation indicates malformed registration, session or message input.
	CodeValidation = "VALIDATION"
	// CodeRateLimitExceeded indicates a sender exhausted its sliding-window quota.
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	// CodeAgentNotFound indicates the referenced agent is not registered.
	CodeAgentNotFound = "AGENT_NOT_FOUND"
	// CodeCapabilityMismatch indicates no eligible agent exists for a task.
	CodeCapabilityMismatch = "CAPABILITY_MISMATCH"
	// CodeTaskNotFound indicates result correlation referenced an unknown task id.
	CodeTaskNotFound = "TASK_NOT_FOUND"
	// CodeExecutionFailure prefixes agent-reported task failures. The concrete
	// failure code is supplied by the agent runtime, not generated locally.
	CodeExecutionFailure = "EXECUTION_FAILURE"
)

// Error is a coded error carrying a machine-readable Code from the taxonomy
// above plus a human-readable message. It supports errors.As so wrapped
// instances remain classifiable.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Code + ": " + e.Message }

// NewError constructs a coded error with a formatted message.
func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError constructs a VALIDATION error.
func NewValidationError(format string, args ...any) *Error {
	return NewError(CodeValidation, format, args...)
}

// CodeOf extracts the taxonomy code from err, unwrapping as needed. Returns
// the empty string for nil or uncoded errors.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code string) bool { return CodeOf(err) == code }
