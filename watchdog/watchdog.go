// Package watchdog runs the out-of-band recovery pass: it moves misrouted
// tasks back to their correct queue, reclaims processing tasks abandoned by
// a crashed worker, and releases content checkouts nobody checked back in.
// It runs as a separate periodic process from the task workers.
package watchdog

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/contentpipe/checkout"
	"github.com/hrygo/contentpipe/gateway/webhook"
	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/store"
)

// Watchdog runs one reclaim pass at a time; Loop schedules repeated passes.
type Watchdog struct {
	Store    *store.Store
	Checkout *checkout.Manager
	Profile  *profile.Profile

	// DryRun, when true, makes RunOnce return an empty run without touching
	// the store: no action runs, nothing is journaled or recorded, and what
	// a pass would have changed is not computed.
	DryRun bool
}

func New(s *store.Store, c *checkout.Manager, p *profile.Profile, dryRun bool) *Watchdog {
	return &Watchdog{Store: s, Checkout: c, Profile: p, DryRun: dryRun}
}

// RunOnce performs one watchdog pass: move misrouted transcribe tasks,
// requeue stale processing tasks, release stale content checkouts, and
// clean up old completed tasks. Every action is journaled to the event log;
// the pass itself is recorded as a run summary. An alert fires if any
// single recovery action (transcribe move, stale requeue, checkout
// release) touched at least Profile.AlertThreshold rows.
func (w *Watchdog) RunOnce(ctx context.Context) (*store.WatchdogRun, error) {
	runID := shortuuid.New()
	run := &store.WatchdogRun{RunID: runID, StartedAt: time.Now().UTC()}

	slog.Info("watchdog pass starting", slog.String("runID", runID), slog.Bool("dryRun", w.DryRun))

	if w.DryRun {
		run.CompletedAt = time.Now().UTC()
		return run, nil
	}

	moved, err := w.Store.MoveMisroutedTranscribeTasks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to move misrouted transcribe tasks")
	}
	run.TranscribeMoved = moved
	if err := w.logEvent(ctx, runID, "move_transcribe", "moved mis-queued transcribe tasks back to the transcribe queue", moved); err != nil {
		return nil, err
	}

	staleTaskIDs, err := w.Store.RequeueStaleProcessing(ctx, w.staleProcessingThreshold())
	if err != nil {
		return nil, errors.Wrap(err, "failed to requeue stale processing tasks")
	}
	run.StaleReclaimed = int64(len(staleTaskIDs))
	if err := w.logEvent(ctx, runID, "requeue_stale_processing", "requeued tasks stuck in processing past the stale threshold", run.StaleReclaimed); err != nil {
		return nil, err
	}

	released, err := w.Checkout.ReleaseStale(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to release stale checkouts")
	}
	run.ChecksReleased = released
	if err := w.logEvent(ctx, runID, "release_stale_checkouts", "released content checkouts past the checkout timeout", released); err != nil {
		return nil, err
	}

	cleaned, err := w.Store.CleanupOldTasks(ctx, time.Duration(w.Profile.CleanupDays)*24*time.Hour)
	if err != nil {
		return nil, errors.Wrap(err, "failed to clean up old tasks")
	}
	run.TasksCleanedUp = cleaned
	if err := w.logEvent(ctx, runID, "cleanup_old_tasks", "deleted completed tasks past the cleanup retention window", cleaned); err != nil {
		return nil, err
	}

	run.AlertFired = w.maybeAlert(run)
	run.CompletedAt = time.Now().UTC()

	if err := w.Store.RecordRun(ctx, run); err != nil {
		return nil, errors.Wrap(err, "failed to record watchdog run summary")
	}

	slog.Info("watchdog pass complete",
		slog.String("runID", runID),
		slog.Int64("transcribeMoved", run.TranscribeMoved),
		slog.Int64("staleReclaimed", run.StaleReclaimed),
		slog.Int64("checksReleased", run.ChecksReleased),
		slog.Int64("tasksCleanedUp", run.TasksCleanedUp),
		slog.Bool("alertFired", run.AlertFired))
	return run, nil
}

// Loop runs RunOnce on a fixed interval until ctx is cancelled.
func (w *Watchdog) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			slog.Error("watchdog pass failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watchdog) logEvent(ctx context.Context, runID, eventType, detail string, rowCount int64) error {
	if err := w.Store.LogEvent(ctx, &store.WatchdogEvent{RunID: runID, EventType: eventType, Detail: detail, RowCount: rowCount}); err != nil {
		return errors.Wrapf(err, "failed to log watchdog event %s", eventType)
	}
	return nil
}

// staleProcessingThreshold applies the process-content threshold to every
// task type, transcribe included; Profile.WatchdogStaleHoursTranscribe is
// not consulted.
func (w *Watchdog) staleProcessingThreshold() time.Duration {
	return time.Duration(w.Profile.WatchdogStaleHoursProcessContent) * time.Hour
}

// maybeAlert fires a webhook notification when any single recovery action
// in run (transcribe move, stale requeue, checkout release) touched at
// least the configured alert threshold of rows; the cleanup count is not
// compared.
func (w *Watchdog) maybeAlert(run *store.WatchdogRun) bool {
	if w.Profile.WebhookAlertURL == "" {
		return false
	}
	threshold := int64(w.Profile.AlertThreshold)
	touched := run.TranscribeMoved
	if run.StaleReclaimed > touched {
		touched = run.StaleReclaimed
	}
	if run.ChecksReleased > touched {
		touched = run.ChecksReleased
	}
	if touched < threshold {
		return false
	}

	webhook.PostAsync(&webhook.AlertPayload{
		URL:       w.Profile.WebhookAlertURL,
		EventType: "watchdog_recovery_spike",
		Summary:   "watchdog recovery pass touched an unusual number of rows",
		Details: map[string]any{
			"runID":           run.RunID,
			"transcribeMoved": run.TranscribeMoved,
			"staleReclaimed":  run.StaleReclaimed,
			"checksReleased":  run.ChecksReleased,
		},
	})
	return true
}
