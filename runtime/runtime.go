package runtime

import (
	"context"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/model"
)

// Runtime processes one delivered message and returns the textual output of
// the work it performed. Implementations must be safe for concurrent use; a
// returned error marks the referenced task as failed.
type Runtime interface {
	ProcessMessage(ctx context.Context, msg *core.Message) (string, error)
}

// Func adapts an ordinary function to the Runtime interface.
type Func func(ctx context.Context, msg *core.Message) (string, error)

// ProcessMessage implements Runtime.
func (f Func) ProcessMessage(ctx context.Context, msg *core.Message) (string, error) {
	return f(ctx, msg)
}

// ModelRuntimeOptions configures a ModelRuntime.
type ModelRuntimeOptions struct {
	// Instructions is the system prompt prepended to every task execution.
	Instructions string
}

// ModelRuntime executes delivered tasks with a generation model: the message
// content becomes the prompt, the configured instructions the system block.
type ModelRuntime struct {
	model        model.Model
	instructions string
}

// NewModelRuntime constructs a ModelRuntime around the given model.
func NewModelRuntime(m model.Model, optFns ...func(o *ModelRuntimeOptions)) *ModelRuntime {
	opts := ModelRuntimeOptions{
		Instructions: "You are a task-executing agent. Complete the delegated task and report your result concisely.",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelRuntime{model: m, instructions: opts.Instructions}
}

// ProcessMessage implements Runtime by running one generation round.
func (r *ModelRuntime) ProcessMessage(ctx context.Context, msg *core.Message) (string, error) {
	resp, err := r.model.Generate(ctx, model.Request{
		Instructions: r.instructions,
		Prompt:       msg.Content,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

var _ Runtime = (*ModelRuntime)(nil)
var _ Runtime = Func(nil)
