package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

// GenerateImage produces an AI illustration for non-news content. News
// content gets a screenshot-based thumbnail instead (GenerateThumbnail),
// so this handler is a no-op for it.
func GenerateImage(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	content, failResult := loadContent(ctx, tctx.Store, env)
	if failResult != nil {
		return failResult
	}
	if content.ContentType == store.ContentTypeNews {
		return task.Ok()
	}

	base := content.Metadata
	flat := metadata.FlatView(base)
	summary, _ := flat["summary"].(string)
	if summary == "" {
		summary = content.URL
	}

	imageURL, err := tctx.LLM.GenerateImage(ctx, summary)
	if err != nil {
		return task.FailNetwork(fmt.Sprintf("image generation failed for %d: %v", content.ID, err))
	}

	updated := metadata.UpdateProcessing(base, map[string]any{
		"image_url":          imageURL,
		"image_generated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record generated image for %d: %v", content.ID, err))
	}
	return task.Ok()
}
