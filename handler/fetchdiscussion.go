package handler

import (
	"context"
	"fmt"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

// FetchDiscussion runs ahead of summarize for news content, fetching
// aggregator comment threads so the summarizer has discussion context.
// Fetch failures are tolerated: discussion context is an enrichment, not a
// prerequisite, so the handler always succeeds once it has tried.
func FetchDiscussion(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	content, failResult := loadContent(ctx, tctx.Store, env)
	if failResult != nil {
		return failResult
	}

	base := content.Metadata
	body, _, err := tctx.HTTP.Fetch(ctx, content.URL)
	discussion := ""
	if err == nil {
		discussion = body
	}

	updated := metadata.UpdateProcessing(base, map[string]any{
		"discussion_context": discussion,
	})
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record discussion context for %d: %v", content.ID, err))
	}
	return task.Ok()
}
