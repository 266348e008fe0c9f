package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/model"
)

func TestModelRuntime_ProcessMessage(t *testing.T) {
	mock := model.NewMock("test-model")
	mock.AddResponse("do the thing", "the thing is done")

	rt := NewModelRuntime(mock)
	out, err := rt.ProcessMessage(context.Background(), &core.Message{Content: "do the thing"})
	require.NoError(t, err)
	assert.Equal(t, "the thing is done", out)
}

func TestModelRuntime_PropagatesError(t *testing.T) {
	mock := model.NewMock("test-model")
	mock.FailWith(errors.New("model unavailable"))

	rt := NewModelRuntime(mock)
	_, err := rt.ProcessMessage(context.Background(), &core.Message{Content: "x"})
	assert.Error(t, err)
}

func TestFunc_Adapts(t *testing.T) {
	rt := Func(func(_ context.Context, msg *core.Message) (string, error) {
		return "echo: " + msg.Content, nil
	})
	out, err := rt.ProcessMessage(context.Background(), &core.Message{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}
