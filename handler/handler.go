// Package handler implements the pipeline's task handlers: one function per
// task_type, each matching the dispatcher.Handler signature. Handlers are
// pure with respect to their inputs — all side effects land on the content
// store (via metadata.RefreshMerge) or as follow-up queue enqueues.
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

// Register wires every canonical handler into d, matching the fixed
// task_type set the queue and store packages already know about.
func Register(d *dispatcher.Dispatcher) {
	d.MustRegister(store.TaskTypeScrape, Scrape)
	d.MustRegister(store.TaskTypeAnalyzeURL, AnalyzeURL)
	d.MustRegister(store.TaskTypeProcessContent, ProcessContent)
	d.MustRegister(store.TaskTypeDownloadAudio, DownloadAudio)
	d.MustRegister(store.TaskTypeTranscribe, Transcribe)
	d.MustRegister(store.TaskTypeSummarize, Summarize)
	d.MustRegister(store.TaskTypeFetchDiscussion, FetchDiscussion)
	d.MustRegister(store.TaskTypeGenerateImage, GenerateImage)
	d.MustRegister(store.TaskTypeGenerateThumbnail, GenerateThumbnail)
	d.MustRegister(store.TaskTypeDiscoverFeeds, DiscoverFeeds)
	d.MustRegister(store.TaskTypeOnboardingDiscover, OnboardingDiscover)
	d.MustRegister(store.TaskTypeDigDeeper, DigDeeper)
	d.MustRegister(store.TaskTypeSyncIntegration, SyncIntegration)
}

// contentID extracts the content id a task applies to, checking the
// envelope's dedicated field before falling back to the payload.
func contentID(env *task.Envelope) (int64, bool) {
	if env.ContentID != nil {
		return *env.ContentID, true
	}
	if raw, ok := env.Payload["content_id"]; ok {
		switch v := raw.(type) {
		case int64:
			return v, true
		case float64:
			return int64(v), true
		case int:
			return int64(v), true
		}
	}
	return 0, false
}

// loadContent fetches the content row a handler needs, failing the task
// non-retryably when the id is missing or the row no longer exists.
func loadContent(ctx context.Context, s *store.Store, env *task.Envelope) (*store.Content, *task.Result) {
	id, ok := contentID(env)
	if !ok {
		return nil, task.Fail("no content_id provided", false)
	}
	content, err := s.GetContent(ctx, id)
	if err != nil {
		return nil, task.FailNetwork(fmt.Sprintf("failed to load content %d: %v", id, err))
	}
	if content == nil {
		return nil, task.Fail(fmt.Sprintf("content %d not found", id), false)
	}
	return content, nil
}

// mergeMetadata re-reads content's current metadata, computes updated
// against the original "base" snapshot, and writes the merge back,
// reducing clobbering of concurrent writes to unrelated keys. It returns
// the content row reflecting the write.
func mergeMetadata(ctx context.Context, s *store.Store, contentID int64, base, updated map[string]any, preserveKeys ...string) (*store.Content, error) {
	latestContent, err := s.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if latestContent == nil {
		return nil, fmt.Errorf("content %d no longer exists", contentID)
	}
	merged := metadata.RefreshMerge(latestContent.Metadata, base, updated, preserveKeys...)
	return s.UpdateContent(ctx, &store.UpdateContent{ID: contentID, Metadata: merged})
}

// failContent records a processing_errors ledger entry, marks the content
// row failed, and returns a retryable TaskResult.fail for the handler: a
// later retry re-reads the content, finds it already status=failed, and
// short-circuits to TaskResult.ok rather than redoing the work.
func failContent(ctx context.Context, s *store.Store, c *store.Content, stage, reason string) *task.Result {
	updated := metadata.AppendProcessingError(c.Metadata, stage, reason, time.Now())
	failedStatus := store.ContentStatusFailed
	if _, err := s.UpdateContent(ctx, &store.UpdateContent{
		ID:           c.ID,
		Status:       &failedStatus,
		Metadata:     updated,
		ErrorMessage: &reason,
	}); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record failure for content %d: %v", c.ID, err))
	}
	return task.Fail(reason, true)
}
