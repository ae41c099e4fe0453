package handler

import (
	"context"
	"fmt"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

// DownloadAudio fetches the podcast's audio asset and records its location
// in metadata, then chains to transcribe. The concrete download mechanics
// (resolving an enclosure URL, streaming to storage) are delegated to the
// HTTP gateway; this handler only owns the pipeline bookkeeping.
func DownloadAudio(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	content, failResult := loadContent(ctx, tctx.Store, env)
	if failResult != nil {
		return failResult
	}
	if content.Status == store.ContentStatusFailed || content.Status == store.ContentStatusCompleted {
		return task.Ok()
	}

	base := content.Metadata
	flat := metadata.FlatView(base)
	if path, ok := flat["audio_path"].(string); ok && path != "" {
		return enqueueTranscribe(ctx, tctx, content.ID)
	}

	body, contentType, err := tctx.HTTP.Fetch(ctx, content.URL)
	if err != nil {
		return failContent(ctx, tctx.Store, content, store.TaskTypeDownloadAudio, fmt.Sprintf("audio fetch failed: %v", err))
	}

	updated := metadata.UpdateProcessing(base, map[string]any{
		"audio_path":     content.URL,
		"audio_bytes":    len(body),
		"audio_mimetype": contentType,
	})
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record audio download for %d: %v", content.ID, err))
	}

	return enqueueTranscribe(ctx, tctx, content.ID)
}

func enqueueTranscribe(ctx context.Context, tctx *dispatcher.Context, contentID int64) *task.Result {
	if _, err := tctx.Queue.Enqueue(ctx, store.TaskTypeTranscribe, &contentID, nil, nil); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to enqueue transcribe for %d: %v", contentID, err))
	}
	return task.Ok()
}
