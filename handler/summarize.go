package handler

import (
	"context"
	"fmt"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/gateway"
	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

// Summarize calls the LLM summarizer with content-type-appropriate
// parameters, persists the summary, marks the content completed, and
// enqueues the follow-up media generation stage. It fails the content
// (not just the task) when the summarizer errors or the source text is
// missing, since there is no further stage that could recover it.
func Summarize(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	content, failResult := loadContent(ctx, tctx.Store, env)
	if failResult != nil {
		return failResult
	}
	if content.Status == store.ContentStatusCompleted {
		return task.Ok()
	}
	if content.Status == store.ContentStatusFailed {
		return task.Ok()
	}

	base := content.Metadata
	flat := metadata.FlatView(base)
	sourceText, _ := flat["content_to_summarize"].(string)
	if sourceText == "" {
		return failContent(ctx, tctx.Store, content, store.TaskTypeSummarize, "no content_to_summarize available")
	}

	req := summarizeRequest(content, sourceText)
	result, err := tctx.LLM.Summarize(ctx, req)
	if err != nil {
		return failContent(ctx, tctx.Store, content, store.TaskTypeSummarize, fmt.Sprintf("summarizer failed: %v", err))
	}

	updated := metadata.UpdateProcessing(base, map[string]any{
		"summary": result.Markdown,
	})
	completed := store.ContentStatusCompleted
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record summary for %d: %v", content.ID, err))
	}
	if _, err := tctx.Store.UpdateContent(ctx, &store.UpdateContent{ID: content.ID, Status: &completed}); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to mark content %d completed: %v", content.ID, err))
	}

	return enqueueMediaStage(ctx, tctx, content)
}

func summarizeRequest(content *store.Content, sourceText string) *gateway.SummaryRequest {
	title := ""
	if content.Title != nil {
		title = *content.Title
	}

	req := &gateway.SummaryRequest{
		Content:         sourceText,
		ContentType:     content.ContentType,
		Title:           title,
		MaxBulletPoints: 6,
		MaxQuotes:       8,
	}
	if content.ContentType == store.ContentTypeNews {
		req.MaxBulletPoints = 4
	}
	return req
}

// enqueueMediaStage routes completed content to the thumbnail-for-news
// or image-for-everything-else follow-up stage.
func enqueueMediaStage(ctx context.Context, tctx *dispatcher.Context, content *store.Content) *task.Result {
	nextType := store.TaskTypeGenerateImage
	if content.ContentType == store.ContentTypeNews {
		nextType = store.TaskTypeGenerateThumbnail
	}
	if _, err := tctx.Queue.Enqueue(ctx, nextType, &content.ID, nil, nil); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to enqueue %s for %d: %v", nextType, content.ID, err))
	}
	return task.Ok()
}
