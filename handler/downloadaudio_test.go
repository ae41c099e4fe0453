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

func TestDownloadAudioFetchesAndEnqueuesTranscribe(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{URL: "https://podcasts.example/ep1.mp3", ContentType: store.ContentTypePodcast, Source: &source})
	h.HTTP.queue(c.URL, fetchResponse{body: "audio-bytes", contentType: "audio/mpeg"})

	env := &task.Envelope{TaskType: store.TaskTypeDownloadAudio, ContentID: &c.ID}
	result := DownloadAudio(context.Background(), env, h.Context)
	require.True(t, result.Success)

	reloaded := reloadContent(t, h, c.ID)
	flat := metadata.FlatView(reloaded.Metadata)
	assert.Equal(t, c.URL, flat["audio_path"])

	stats, err := h.Queue.Stats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByQueueAndStatus[store.QueueTranscribe][store.TaskStatusPending])
}

func TestDownloadAudioSkipsFetchWhenAlreadyDownloaded(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{
		URL:         "https://podcasts.example/ep2.mp3",
		ContentType: store.ContentTypePodcast,
		Source:      &source,
		Metadata:    map[string]any{"audio_path": "https://podcasts.example/ep2.mp3"},
	})

	env := &task.Envelope{TaskType: store.TaskTypeDownloadAudio, ContentID: &c.ID}
	result := DownloadAudio(context.Background(), env, h.Context)
	require.True(t, result.Success)
	assert.Empty(t, h.HTTP.calls)
}
