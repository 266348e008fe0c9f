package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/taskmesh/core"
)

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)

func TestInMemoryStore_CreateValidation(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.Create(core.CreateSessionParams{Name: "empty"})
	assert.True(t, core.IsCode(err, core.CodeValidation))

	_, err = store.Create(core.CreateSessionParams{Participants: []string{"a1", ""}})
	assert.True(t, core.IsCode(err, core.CodeValidation))

	sess, err := store.Create(core.CreateSessionParams{Name: "ok", Participants: []string{"a1", "a2"}})
	assert.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, []string{"a1", "a2"}, sess.Participants)
}

func TestInMemoryStore_GetUnknown(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Get("missing")
	assert.True(t, core.IsCode(err, core.CodeValidation))
}

func TestInMemoryStore_AppendAndHistory(t *testing.T) {
	store := NewInMemoryStore()
	sess, err := store.Create(core.CreateSessionParams{Participants: []string{"a1"}})
	assert.NoError(t, err)

	first, err := store.Append(sess.ID, core.Message{Content: "one"})
	assert.NoError(t, err)
	second, err := store.Append(sess.ID, core.Message{Content: "two"})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)

	history, err := store.History(sess.ID, 1)
	assert.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, "two", history[0].Content)

	_, err = store.Append("missing", core.Message{})
	assert.True(t, core.IsCode(err, core.CodeValidation))
}
