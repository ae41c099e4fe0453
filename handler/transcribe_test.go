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

func TestTranscribeFailsContentWhenNoAudioPath(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{URL: "https://podcasts.example/ep1.mp3", ContentType: store.ContentTypePodcast, Source: &source})

	env := &task.Envelope{TaskType: store.TaskTypeTranscribe, ContentID: &c.ID}
	result := Transcribe(context.Background(), env, h.Context)
	require.False(t, result.Success)

	reloaded := reloadContent(t, h, c.ID)
	assert.Equal(t, store.ContentStatusFailed, reloaded.Status)
}

func TestTranscribeRecordsTranscriptAndEnqueuesSummarize(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{
		URL:         "https://podcasts.example/ep1.mp3",
		ContentType: store.ContentTypePodcast,
		Source:      &source,
		Metadata:    map[string]any{"audio_path": "https://podcasts.example/ep1.mp3"},
	})
	h.HTTP.queue("https://podcasts.example/ep1.mp3", fetchResponse{body: "transcribed words"})

	env := &task.Envelope{TaskType: store.TaskTypeTranscribe, ContentID: &c.ID}
	result := Transcribe(context.Background(), env, h.Context)
	require.True(t, result.Success)

	reloaded := reloadContent(t, h, c.ID)
	flat := metadata.FlatView(reloaded.Metadata)
	assert.Equal(t, "transcribed words", flat["content_to_summarize"])

	stats, err := h.Queue.Stats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusPending])
}
