package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

func TestDiscoverFeedsFansOutDiscoveredLinks(t *testing.T) {
	h := newHarness(t)
	h.HTTP.queue("https://blog.example/feed", fetchResponse{body: "posts: https://blog.example/post1 https://blog.example/post2"})

	env := &task.Envelope{TaskType: store.TaskTypeDiscoverFeeds, Payload: map[string]any{
		"user_id": int64(7),
		"sources": []any{"https://blog.example/feed"},
	}}
	result := DiscoverFeeds(context.Background(), env, h.Context)
	require.True(t, result.Success)

	c1, err := h.Store.GetContentByURL(context.Background(), "https://blog.example/post1")
	require.NoError(t, err)
	require.NotNil(t, c1)
	c2, err := h.Store.GetContentByURL(context.Background(), "https://blog.example/post2")
	require.NoError(t, err)
	require.NotNil(t, c2)
}

func TestDiscoverFeedsRequiresUserID(t *testing.T) {
	h := newHarness(t)
	env := &task.Envelope{TaskType: store.TaskTypeDiscoverFeeds, Payload: map[string]any{"sources": []any{"https://blog.example/feed"}}}
	result := DiscoverFeeds(context.Background(), env, h.Context)
	require.False(t, result.Success)
}

func TestDiscoverFeedsNoopWithoutSources(t *testing.T) {
	h := newHarness(t)
	env := &task.Envelope{TaskType: store.TaskTypeDiscoverFeeds, Payload: map[string]any{"user_id": int64(7)}}
	result := DiscoverFeeds(context.Background(), env, h.Context)
	require.True(t, result.Success)
	assert.Empty(t, h.HTTP.calls)
}
