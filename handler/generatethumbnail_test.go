package handler

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

func encodeTestJPEG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.String()
}

func TestGenerateThumbnailResizesScreenshot(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{URL: "https://news.example/story", ContentType: store.ContentTypeNews, Source: &source})
	h.HTTP.queue(c.URL, fetchResponse{body: encodeTestJPEG(t)})

	env := &task.Envelope{TaskType: store.TaskTypeGenerateThumbnail, ContentID: &c.ID}
	result := GenerateThumbnail(context.Background(), env, h.Context)
	require.True(t, result.Success)

	reloaded := reloadContent(t, h, c.ID)
	flat := metadata.FlatView(reloaded.Metadata)
	assert.NotEmpty(t, flat["thumbnail_url"])
}

func TestGenerateThumbnailSkipsNonNewsContent(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{URL: "https://example.com/article", ContentType: store.ContentTypeArticle, Source: &source})

	env := &task.Envelope{TaskType: store.TaskTypeGenerateThumbnail, ContentID: &c.ID}
	result := GenerateThumbnail(context.Background(), env, h.Context)
	require.True(t, result.Success)
	assert.Empty(t, h.HTTP.calls)
}

func TestGenerateThumbnailFailsOnUndecodableScreenshot(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{URL: "https://news.example/broken", ContentType: store.ContentTypeNews, Source: &source})
	h.HTTP.queue(c.URL, fetchResponse{body: "not an image"})

	env := &task.Envelope{TaskType: store.TaskTypeGenerateThumbnail, ContentID: &c.ID}
	result := GenerateThumbnail(context.Background(), env, h.Context)
	require.False(t, result.Success)
	assert.False(t, result.Network)
	assert.False(t, result.Retryable, "a non-image response is a non-retryable upstream condition")
}
