// Package checkout implements content-level exclusion, separate from the
// task-level queue claim: a worker checks out a batch of content rows,
// processes them exclusively, and checks each one back in with a terminal
// (or requeued) status.
package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/contentpipe/store"
)

// Manager checks content in and out on behalf of a worker.
type Manager struct {
	store          *store.Store
	timeoutMinutes int
}

func New(s *store.Store, timeoutMinutes int) *Manager {
	return &Manager{store: s, timeoutMinutes: timeoutMinutes}
}

// Batch checks out up to batchSize content rows (optionally filtered by
// contentType) and runs fn with their ids. If fn returns nil, every
// checked-out row is checked back in as completed; if fn returns an error,
// every row is checked back in as failed with that error recorded. This
// mirrors a context-manager's guaranteed check-in on both the success and
// exception paths.
func (m *Manager) Batch(ctx context.Context, workerID string, contentType *string, batchSize int, fn func(ctx context.Context, contentIDs []int64) error) error {
	contentIDs, err := m.store.CheckoutBatch(ctx, workerID, contentType, batchSize)
	if err != nil {
		return errors.Wrap(err, "failed to check out content batch")
	}
	if len(contentIDs) == 0 {
		return nil
	}
	slog.Info("checked out content batch", slog.String("workerID", workerID), slog.Int("count", len(contentIDs)))

	runErr := fn(ctx, contentIDs)

	status := store.ContentStatusCompleted
	var errMsg *string
	if runErr != nil {
		status = store.ContentStatusFailed
		msg := runErr.Error()
		errMsg = &msg
		slog.Error("checkout batch processing failed", slog.String("workerID", workerID), slog.Any("err", runErr))
	}

	for _, id := range contentIDs {
		if _, cerr := m.store.CheckinContent(ctx, id, workerID, status, errMsg); cerr != nil {
			slog.Error("failed to check in content", slog.Int64("contentID", id), slog.Any("err", cerr))
		}
	}

	return runErr
}

// CheckinOne checks a single content row back in with an explicit status,
// for handlers that resolve each item in a batch independently rather than
// all-succeed-or-all-fail.
func (m *Manager) CheckinOne(ctx context.Context, contentID int64, workerID, status string, errMsg *string) error {
	ok, err := m.store.CheckinContent(ctx, contentID, workerID, status, errMsg)
	if err != nil {
		return errors.Wrapf(err, "failed to check in content %d", contentID)
	}
	if !ok {
		slog.Warn("checkin skipped: content no longer checked out by this worker", slog.Int64("contentID", contentID), slog.String("workerID", workerID))
	}
	return nil
}

// ReleaseStale clears checkouts that have exceeded the timeout, returning
// content to status "new" so another worker can claim it, for the
// watchdog's recovery pass.
func (m *Manager) ReleaseStale(ctx context.Context) (int64, error) {
	n, err := m.store.ReleaseStaleCheckouts(ctx, time.Duration(m.timeoutMinutes)*time.Minute)
	if err != nil {
		return 0, errors.Wrap(err, "failed to release stale checkouts")
	}
	if n > 0 {
		slog.Warn("released stale checkouts", slog.Int64("count", n))
	}
	return n, nil
}

// Stats reports per-worker checkout counts.
func (m *Manager) Stats(ctx context.Context) (map[string]int64, error) {
	counts, err := m.store.CheckoutCounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute checkout stats")
	}
	return counts, nil
}
