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

func TestGenerateImageRecordsImageURL(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{
		URL:         "https://example.com/article",
		ContentType: store.ContentTypeArticle,
		Source:      &source,
		Metadata:    map[string]any{"summary": "a summary to illustrate"},
	})
	h.LLM.imageURL = "https://images.example/custom.png"

	env := &task.Envelope{TaskType: store.TaskTypeGenerateImage, ContentID: &c.ID}
	result := GenerateImage(context.Background(), env, h.Context)
	require.True(t, result.Success)

	reloaded := reloadContent(t, h, c.ID)
	flat := metadata.FlatView(reloaded.Metadata)
	assert.Equal(t, "https://images.example/custom.png", flat["image_url"])
}

func TestGenerateImageSkipsNewsContent(t *testing.T) {
	h := newHarness(t)
	source := "self submission"
	c := createContent(t, h, &store.CreateContent{URL: "https://news.example/story", ContentType: store.ContentTypeNews, Source: &source})

	env := &task.Envelope{TaskType: store.TaskTypeGenerateImage, ContentID: &c.ID}
	result := GenerateImage(context.Background(), env, h.Context)
	require.True(t, result.Success)

	reloaded := reloadContent(t, h, c.ID)
	flat := metadata.FlatView(reloaded.Metadata)
	assert.Nil(t, flat["image_url"])
}
