package handler

import (
	"context"
	"fmt"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

// Transcribe turns the downloaded audio into text and stores it as
// content_to_summarize, the same field ProcessContent populates for
// text-native content types, so Summarize doesn't need to branch on
// content_type to find its source text.
func Transcribe(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	content, failResult := loadContent(ctx, tctx.Store, env)
	if failResult != nil {
		return failResult
	}
	if content.Status == store.ContentStatusFailed || content.Status == store.ContentStatusCompleted {
		return task.Ok()
	}

	base := content.Metadata
	flat := metadata.FlatView(base)
	if transcript, ok := flat["content_to_summarize"].(string); ok && transcript != "" {
		return enqueueSummarize(ctx, tctx, content.ID)
	}

	audioPath, _ := flat["audio_path"].(string)
	if audioPath == "" {
		return failContent(ctx, tctx.Store, content, store.TaskTypeTranscribe, "no audio_path recorded by download_audio")
	}

	// Transcription has no dedicated gateway; the external transcription
	// worker is consumed through the same HTTP gateway as any other
	// outbound fetch.
	transcript, _, err := tctx.HTTP.Fetch(ctx, audioPath)
	if err != nil {
		return failContent(ctx, tctx.Store, content, store.TaskTypeTranscribe, fmt.Sprintf("transcription failed: %v", err))
	}

	updated := metadata.UpdateProcessing(base, map[string]any{
		"content_to_summarize": transcript,
	})
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record transcript for %d: %v", content.ID, err))
	}

	return enqueueSummarize(ctx, tctx, content.ID)
}

func enqueueSummarize(ctx context.Context, tctx *dispatcher.Context, contentID int64) *task.Result {
	if _, err := tctx.Queue.Enqueue(ctx, store.TaskTypeSummarize, &contentID, nil, nil); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to enqueue summarize for %d: %v", contentID, err))
	}
	return task.Ok()
}
