package memstore

import (
	"context"
	"testing"

	"github.com/councilml/council/internal/council"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_EnforcesLimit(t *testing.T) {
	s := New(1)
	ctx := context.Background()

	_, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	_, err = s.Create(ctx, "u1")
	require.Error(t, err)
	var limitErr *ErrSessionLimitReached
	assert.ErrorAs(t, err, &limitErr)
}

func TestAppendAssistant_ThenGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	sess, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	err = s.AppendAssistant(ctx, "u1", sess.SessionID,
		council.UserMessage{Content: "hi"},
		council.AssistantMessage{Stage1: []council.Stage1Answer{{Model: "m1", Response: "hello"}}})
	require.NoError(t, err)

	got, ok, err := s.Get(ctx, "u1", sess.SessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].User.Content)
	assert.Equal(t, "hello", got.Messages[0].Assistant.Stage1[0].Response)
}

func TestGet_Missing(t *testing.T) {
	s := New(0)
	_, ok, err := s.Get(context.Background(), "u1", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetTitle(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	sess, err := s.Create(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, s.SetTitle(ctx, "u1", sess.SessionID, "My Title"))
	got, _, _ := s.Get(ctx, "u1", sess.SessionID)
	assert.Equal(t, "My Title", got.Title)
}
