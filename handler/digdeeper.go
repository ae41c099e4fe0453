package handler

import (
	"context"
	"fmt"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/task"
)

// DigDeeper posts a discussion-prompt message for processed content to the
// requesting user's chat, recording the resulting thread reference in
// metadata so a reply handler (out of core scope) can find it later.
func DigDeeper(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	content, failResult := loadContent(ctx, tctx.Store, env)
	if failResult != nil {
		return failResult
	}
	userID, ok := payloadInt(env.Payload, "user_id")
	if !ok {
		return task.Fail("missing user_id", false)
	}

	title := content.URL
	if content.Title != nil && *content.Title != "" {
		title = *content.Title
	}
	prompt := fmt.Sprintf("Want to dig deeper into %q? Ask me anything about it.", title)

	threadRef, err := tctx.Chat.PostMessage(ctx, userID, prompt)
	if err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to post dig-deeper prompt for content %d: %v", content.ID, err))
	}

	base := content.Metadata
	updated := metadata.UpdateProcessing(base, map[string]any{
		"dig_deeper_thread_ref": threadRef,
	})
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record dig-deeper thread for %d: %v", content.ID, err))
	}
	return task.Ok()
}
