package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

func TestSyncIntegrationFansOutBookmarksAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.HTTP.queue("https://api.x.com/2/users/5/bookmarks", fetchResponse{body: "https://bookmarked.example/one"})

	env := &task.Envelope{TaskType: store.TaskTypeSyncIntegration, Payload: map[string]any{"user_id": int64(5)}}
	result := SyncIntegration(context.Background(), env, h.Context)
	require.True(t, result.Success)

	c, err := h.Store.GetContentByURL(context.Background(), "https://bookmarked.example/one")
	require.NoError(t, err)
	require.NotNil(t, c)

	require.Len(t, h.Chat.posts, 1)
	assert.Equal(t, int64(5), h.Chat.posts[0].chatID)
}

func TestSyncIntegrationRejectsUnsupportedProvider(t *testing.T) {
	h := newHarness(t)
	env := &task.Envelope{TaskType: store.TaskTypeSyncIntegration, Payload: map[string]any{"user_id": int64(5), "provider": "unsupported"}}
	result := SyncIntegration(context.Background(), env, h.Context)
	require.False(t, result.Success)
	assert.False(t, result.Network)
}
