package handler

import (
	"context"
	"fmt"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/task"
)

// SyncIntegration runs a scheduled external-integration sync for a user
// (bookmark import, etc.) and notifies the user's chat with the outcome.
// Only the "x" provider is recognized; anything else is a non-retryable
// configuration error.
func SyncIntegration(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	userID, ok := payloadInt(env.Payload, "user_id")
	if !ok {
		return task.Fail("missing user_id in sync_integration payload", false)
	}
	provider, _ := env.Payload["provider"].(string)
	if provider == "" {
		provider = "x"
	}
	if provider != "x" {
		return task.Fail(fmt.Sprintf("unsupported integration provider: %s", provider), false)
	}

	body, _, err := tctx.HTTP.Fetch(ctx, fmt.Sprintf("https://api.x.com/2/users/%d/bookmarks", userID))
	if err != nil {
		return task.FailNetwork(fmt.Sprintf("bookmark sync fetch failed for user %d: %v", userID, err))
	}

	links := dedupeLinks(externalLinkPattern.FindAllString(body, -1))
	for _, link := range links {
		if err := fanoutChildURL(ctx, tctx, link); err != nil {
			return task.FailNetwork(err.Error())
		}
	}

	// Notification failure doesn't undo a sync that already succeeded.
	_, _ = tctx.Chat.PostMessage(ctx, userID, fmt.Sprintf("Synced %d new bookmarks.", len(links)))
	return task.Ok()
}
