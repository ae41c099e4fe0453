package handler

import (
	"context"
	"fmt"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

// OnboardingDiscover seeds a new user's initial reading list: it takes the
// onboarding-flow's inferred topics/sources, creates a Content row per
// source, and checks them out as a batch so a concurrent scrape/checkout
// pass can't double-claim the seeds this handler just created.
func OnboardingDiscover(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	userID, ok := payloadInt(env.Payload, "user_id")
	if !ok {
		return task.Fail("missing user_id", false)
	}
	sources := payloadStrings(env.Payload, "sources")
	if len(sources) == 0 {
		return task.Ok()
	}

	submittedVia := fmt.Sprintf("onboarding:%d", userID)
	var createdIDs []int64
	for _, source := range sources {
		c, _, err := tctx.Store.CreateContent(ctx, &store.CreateContent{URL: source, Source: &submittedVia})
		if err != nil {
			return task.FailNetwork(fmt.Sprintf("failed to create onboarding content for %s: %v", source, err))
		}
		createdIDs = append(createdIDs, c.ID)
	}

	// Check the freshly created rows out as a batch so a concurrent
	// scrape/checkout pass can't claim them mid-enqueue, then release each
	// back to "new" (not "completed" — the rows still need analyze_url to
	// run) once its follow-up task is queued.
	err := tctx.Checkout.Batch(ctx, tctx.WorkerID, nil, len(createdIDs), func(ctx context.Context, contentIDs []int64) error {
		for _, id := range contentIDs {
			if err := tctx.Checkout.CheckinOne(ctx, id, tctx.WorkerID, store.ContentStatusNew, nil); err != nil {
				return fmt.Errorf("failed to release onboarding content %d: %w", id, err)
			}
			if _, err := tctx.Queue.Enqueue(ctx, store.TaskTypeAnalyzeURL, &id, nil, nil); err != nil {
				return fmt.Errorf("failed to enqueue analyze_url for onboarding content %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return task.FailNetwork(fmt.Sprintf("onboarding discovery batch failed for user %d: %v", userID, err))
	}
	return task.Ok()
}
