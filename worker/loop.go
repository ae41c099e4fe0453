// Package worker runs the sequential task loop: dequeue, dispatch, record
// outcome, reschedule on retryable failure. One Loop instance serves one
// queue partition; a host typically runs several, one process each.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/queue"
	"github.com/hrygo/contentpipe/task"
)

// startupPollBudget is how many empty polls after startup use the fast
// interval, to drain any backlog quickly before backing off.
const startupPollBudget = 10

// emptyPollsBeforeBackoff is how many consecutive empty polls (past the
// startup budget) are tolerated at the fast interval before the loop
// switches to the slow interval.
const emptyPollsBeforeBackoff = 5

// Loop polls a single queue partition and dispatches whatever it finds.
type Loop struct {
	Queue      *queue.Service
	Dispatcher *dispatcher.Dispatcher
	Context    *dispatcher.Context
	QueueName  string
	Profile    *profile.Profile
}

// New builds a Loop bound to queueName, the slice of work this process
// drains.
func New(q *queue.Service, d *dispatcher.Dispatcher, tctx *dispatcher.Context, queueName string, p *profile.Profile) *Loop {
	return &Loop{Queue: q, Dispatcher: d, Context: tctx, QueueName: queueName, Profile: p}
}

// Run processes tasks until ctx is cancelled or, when maxTasks > 0, until
// that many tasks have been processed (whichever comes first). maxTasks<=0
// means unlimited, the normal long-running mode. Run returns nil on a clean
// shutdown; ctx cancellation is not itself an error.
func (l *Loop) Run(ctx context.Context, maxTasks int) error {
	slog.Info("worker loop starting", slog.String("queue", l.QueueName), slog.String("workerID", l.Context.WorkerID))

	startupInterval := time.Duration(l.Profile.PollStartupIntervalMS) * time.Millisecond
	backoffInterval := time.Duration(l.Profile.PollBackoffMaxMS) * time.Millisecond
	fastInterval := time.Duration(l.Profile.PollBackoffMinMS) * time.Millisecond

	processed := 0
	startupPolls := 0
	consecutiveEmpty := 0

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker loop shutting down", slog.String("queue", l.QueueName), slog.Int("processed", processed))
			return nil
		default:
		}

		t, err := l.Queue.Dequeue(ctx, l.QueueName)
		if err != nil {
			slog.Error("dequeue failed", slog.String("queue", l.QueueName), slog.Any("error", err))
			if !sleepOrDone(ctx, backoffInterval) {
				return nil
			}
			continue
		}

		if t == nil {
			startupPolls++
			consecutiveEmpty++

			interval := fastInterval
			switch {
			case startupPolls <= startupPollBudget:
				interval = startupInterval
			case consecutiveEmpty >= emptyPollsBeforeBackoff:
				interval = backoffInterval
			}
			if !sleepOrDone(ctx, interval) {
				return nil
			}
			continue
		}

		consecutiveEmpty = 0
		env := task.FromTask(t)
		result := l.Dispatcher.Dispatch(ctx, env, l.Context)

		var errMsg *string
		if !result.Success {
			errMsg = &result.ErrorMessage
		}
		if err := l.Queue.CompleteTask(ctx, env.ID, result.Success, errMsg); err != nil {
			slog.Error("failed to record task completion", slog.Int64("taskID", env.ID), slog.Any("error", err))
		}

		processed++
		switch {
		case result.Success:
		case !result.Retryable:
			slog.Error("task failed with a non-retryable error, not rescheduling",
				slog.Int64("taskID", env.ID), slog.String("error", result.ErrorMessage))
		case env.RetryCount < l.Profile.MaxRetries:
			delay := queue.RetryDelay(env.RetryCount, result.Network)
			if err := l.Queue.Retry(ctx, env.ID, errMsg, delay); err != nil {
				slog.Error("failed to schedule retry", slog.Int64("taskID", env.ID), slog.Any("error", err))
			} else {
				slog.Info("task scheduled for retry",
					slog.Int64("taskID", env.ID),
					slog.Int("attempt", env.RetryCount+1),
					slog.Duration("delay", delay))
			}
		default:
			slog.Error("task exceeded max retries", slog.Int64("taskID", env.ID), slog.Int("retryCount", env.RetryCount))
		}

		if maxTasks > 0 && processed >= maxTasks {
			slog.Info("reached max tasks, stopping", slog.Int("maxTasks", maxTasks))
			return nil
		}
	}
}

// sleepOrDone waits for d, returning false early (without waiting out the
// full interval) if ctx is cancelled first. Using ctx.Done() here takes the
// place of the 100ms shutdown-flag poll granularity a thread-per-process
// model needs: cancellation wakes the select immediately.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
