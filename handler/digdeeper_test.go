package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

func TestDigDeeperPostsPromptAndRecordsThreadRef(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	title := "An Interesting Article"
	c := createContent(t, h, &store.CreateContent{URL: "https://example.com/article", ContentType: store.ContentTypeArticle, Source: &source, Title: &title})

	env := &task.Envelope{TaskType: store.TaskTypeDigDeeper, ContentID: &c.ID, Payload: map[string]any{"user_id": int64(42)}}
	result := DigDeeper(context.Background(), env, h.Context)
	require.True(t, result.Success)

	require.Len(t, h.Chat.posts, 1)
	assert.Equal(t, int64(42), h.Chat.posts[0].chatID)
	assert.Contains(t, h.Chat.posts[0].text, title)

	reloaded := reloadContent(t, h, c.ID)
	flat := metadata.FlatView(reloaded.Metadata)
	assert.NotEmpty(t, flat["dig_deeper_thread_ref"])
}

func TestDigDeeperFailsWithoutUserID(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{URL: "https://example.com/article", ContentType: store.ContentTypeArticle, Source: &source})

	env := &task.Envelope{TaskType: store.TaskTypeDigDeeper, ContentID: &c.ID, Payload: map[string]any{}}
	result := DigDeeper(context.Background(), env, h.Context)
	require.False(t, result.Success)
}
