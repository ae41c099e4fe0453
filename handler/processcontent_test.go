package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

func TestProcessContentExtractsAndEnqueuesSummarizeForArticle(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	articleType := store.ContentTypeArticle
	c := createContent(t, h, &store.CreateContent{URL: "https://example.com/article", ContentType: articleType, Source: &source})
	h.HTTP.queue(c.URL, fetchResponse{body: "the article body"})

	env := &task.Envelope{TaskType: store.TaskTypeProcessContent, ContentID: &c.ID, Payload: map[string]any{}}
	result := ProcessContent(context.Background(), env, h.Context)
	require.True(t, result.Success)

	reloaded := reloadContent(t, h, c.ID)
	assert.Equal(t, store.ContentStatusProcessing, reloaded.Status)

	stats, err := h.Queue.Stats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusPending])
}

func TestProcessContentNewsAlsoEnqueuesFetchDiscussion(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	newsType := store.ContentTypeNews
	c := createContent(t, h, &store.CreateContent{URL: "https://news.example/story", ContentType: newsType, Source: &source})
	h.HTTP.queue(c.URL, fetchResponse{body: "the news body"})

	env := &task.Envelope{TaskType: store.TaskTypeProcessContent, ContentID: &c.ID, Payload: map[string]any{}}
	result := ProcessContent(context.Background(), env, h.Context)
	require.True(t, result.Success)

	stats, err := h.Queue.Stats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusPending])
}

func TestProcessContentShortCircuitsOnTerminalFailure(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{URL: "https://example.com/broken", Source: &source})
	failed := store.ContentStatusFailed
	_, err := h.Store.UpdateContent(context.Background(), &store.UpdateContent{ID: c.ID, Status: &failed})
	require.NoError(t, err)

	env := &task.Envelope{TaskType: store.TaskTypeProcessContent, ContentID: &c.ID, Payload: map[string]any{}}
	result := ProcessContent(context.Background(), env, h.Context)
	require.True(t, result.Success)
	assert.Empty(t, h.HTTP.calls, "a terminally failed content must never be re-fetched")
}

func TestProcessContentFetchFailureFailsContent(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{URL: "https://example.com/unreachable", Source: &source})
	h.HTTP.queue(c.URL, fetchResponse{err: simpleErr("connection refused")})

	env := &task.Envelope{TaskType: store.TaskTypeProcessContent, ContentID: &c.ID, Payload: map[string]any{}}
	result := ProcessContent(context.Background(), env, h.Context)
	require.False(t, result.Success)

	reloaded := reloadContent(t, h, c.ID)
	assert.Equal(t, store.ContentStatusFailed, reloaded.Status)
}
