package handler

import (
	"context"
	"fmt"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

// ProcessContent fetches raw content for the URL, extracts normalized
// fields into metadata, and enqueues the next pipeline stage: summarize
// for articles/news, download_audio for podcasts. When a prior attempt
// already stored content_to_summarize, the fetch is skipped and the same
// next stage is enqueued; existing transcript or summary artifacts do not
// change which stage comes next.
func ProcessContent(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	content, failResult := loadContent(ctx, tctx.Store, env)
	if failResult != nil {
		return failResult
	}
	if content.Status == store.ContentStatusFailed {
		// A terminally failed content is treated as done: no further retry.
		return task.Ok()
	}
	if content.Status == store.ContentStatusCompleted {
		return task.Ok()
	}

	base := content.Metadata
	flat := metadata.FlatView(base)

	if text, ok := flat["content_to_summarize"].(string); ok && text != "" {
		return enqueueNextStage(ctx, tctx, content)
	}

	body, _, err := tctx.HTTP.Fetch(ctx, content.URL)
	if err != nil {
		return failContent(ctx, tctx.Store, content, store.TaskTypeProcessContent, fmt.Sprintf("fetch failed: %v", err))
	}

	updated := metadata.UpdateProcessing(base, map[string]any{
		"content_to_summarize": body,
	})
	processing := store.ContentStatusProcessing
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record extracted content for %d: %v", content.ID, err))
	}
	if _, err := tctx.Store.UpdateContent(ctx, &store.UpdateContent{ID: content.ID, Status: &processing}); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to mark content %d processing: %v", content.ID, err))
	}

	return enqueueNextStage(ctx, tctx, content)
}

// enqueueNextStage implements the workflow helper's next_task_type: news
// additionally gets a fetch_discussion pass ahead of summarize, so the
// summarizer has comment/discussion context to work with.
func enqueueNextStage(ctx context.Context, tctx *dispatcher.Context, content *store.Content) *task.Result {
	var nextType string
	switch content.ContentType {
	case store.ContentTypeArticle, store.ContentTypeNews:
		nextType = store.TaskTypeSummarize
	case store.ContentTypePodcast:
		nextType = store.TaskTypeDownloadAudio
	default:
		return task.Ok()
	}

	if content.ContentType == store.ContentTypeNews {
		if _, err := tctx.Queue.Enqueue(ctx, store.TaskTypeFetchDiscussion, &content.ID, nil, nil); err != nil {
			return task.FailNetwork(fmt.Sprintf("failed to enqueue fetch_discussion for %d: %v", content.ID, err))
		}
	}

	if _, err := tctx.Queue.Enqueue(ctx, nextType, &content.ID, nil, nil); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to enqueue %s for %d: %v", nextType, content.ID, err))
	}
	return task.Ok()
}
