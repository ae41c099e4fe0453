package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/gateway"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

func TestSummarizeCompletesArticleAndEnqueuesImage(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{
		URL:         "https://example.com/article",
		ContentType: store.ContentTypeArticle,
		Source:      &source,
		Metadata:    map[string]any{"content_to_summarize": "the article body"},
	})
	h.LLM.summary = &gateway.SummaryResult{Markdown: "a tight summary"}

	env := &task.Envelope{TaskType: store.TaskTypeSummarize, ContentID: &c.ID}
	result := Summarize(context.Background(), env, h.Context)
	require.True(t, result.Success)

	reloaded := reloadContent(t, h, c.ID)
	assert.Equal(t, store.ContentStatusCompleted, reloaded.Status)

	stats, err := h.Queue.Stats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusPending])
}

func TestSummarizeNewsEnqueuesThumbnailNotImage(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{
		URL:         "https://news.example/story",
		ContentType: store.ContentTypeNews,
		Source:      &source,
		Metadata:    map[string]any{"content_to_summarize": "the news body"},
	})

	env := &task.Envelope{TaskType: store.TaskTypeSummarize, ContentID: &c.ID}
	result := Summarize(context.Background(), env, h.Context)
	require.True(t, result.Success)

	tasks, err := h.Store.ListTasks(context.Background(), &store.FindTask{ContentID: &c.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, store.TaskTypeGenerateThumbnail, tasks[0].TaskType)
}

func TestSummarizeFailsContentWhenSourceTextMissing(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{URL: "https://example.com/empty", ContentType: store.ContentTypeArticle, Source: &source})

	env := &task.Envelope{TaskType: store.TaskTypeSummarize, ContentID: &c.ID}
	result := Summarize(context.Background(), env, h.Context)
	require.False(t, result.Success)

	reloaded := reloadContent(t, h, c.ID)
	assert.Equal(t, store.ContentStatusFailed, reloaded.Status)
}
