// Package queue is the database-backed task queue: enqueue, the
// compare-and-set dequeue loop, completion, and retry scheduling.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/contentpipe/store"
)

// claimAttempts bounds how many times Dequeue retries a lost
// compare-and-set race against another worker before giving up and
// reporting the queue empty. Five mirrors the margin used for the
// equivalent retry loop in the originating pipeline.
const claimAttempts = 5

// baseRetryDelaySeconds and maxRetryDelaySeconds bound the exponential
// backoff applied between a task's failure and its next eligible attempt.
const (
	baseRetryDelaySeconds    = 60
	maxRetryDelaySeconds     = 3600
	maxNetworkDelaySeconds   = 7200
)

// Service is a thin, stateless wrapper over the store's task methods. It
// owns the routing/dedup/backoff policy the store itself stays agnostic
// of.
type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service {
	return &Service{store: s}
}

// EnqueueOptions customizes Enqueue's default routing/dedup behavior.
type EnqueueOptions struct {
	// QueueName overrides the routing table in store.TaskTypeQueue.
	QueueName string
	// Dedupe overrides store.DedupEligible for this call.
	Dedupe *bool
}

// Enqueue adds a task to the queue, returning its id. If the task type is
// dedup-eligible and a non-terminal task already exists for the same
// content, the existing task's id is returned instead of inserting a
// duplicate row.
func (s *Service) Enqueue(ctx context.Context, taskType string, contentID *int64, payload map[string]any, opts *EnqueueOptions) (int64, error) {
	create := &store.CreateTask{TaskType: taskType, ContentID: contentID, Payload: payload}
	if opts != nil {
		create.QueueName = opts.QueueName
		create.Dedupe = opts.Dedupe
	}

	task, created, err := s.store.CreateTask(ctx, create)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to enqueue task type %s", taskType)
	}

	if created {
		slog.Info("enqueued task", slog.Int64("taskID", task.ID), slog.String("taskType", taskType), slog.String("queue", task.QueueName))
	} else {
		slog.Info("reused existing task", slog.Int64("taskID", task.ID), slog.String("taskType", taskType))
	}
	return task.ID, nil
}

// Dequeue claims the next pending task from queueName (or any queue, if
// empty), retrying a bounded number of times when another worker wins the
// race for the same row. It returns (nil, nil) when the queue is
// genuinely empty.
func (s *Service) Dequeue(ctx context.Context, queueName string) (*store.Task, error) {
	for i := 0; i < claimAttempts; i++ {
		task, ok, err := s.store.TryClaimNext(ctx, queueName)
		if err != nil {
			return nil, errors.Wrap(err, "failed to claim task")
		}
		if task != nil {
			return task, nil
		}
		if !ok {
			// A candidate row existed but another worker claimed it first;
			// try again immediately rather than waiting for the next poll.
			continue
		}
		// No pending rows at all: the queue is empty.
		return nil, nil
	}
	return nil, nil
}

// CompleteTask marks a task completed or failed.
func (s *Service) CompleteTask(ctx context.Context, taskID int64, success bool, errMsg *string) error {
	if !success && (errMsg == nil || *errMsg == "") {
		msg := "task failed without error details"
		errMsg = &msg
	}
	if err := s.store.CompleteTask(ctx, taskID, success, errMsg); err != nil {
		return errors.Wrapf(err, "failed to complete task %d", taskID)
	}
	return nil
}

// RetryDelay computes the exponential backoff delay before a failed task's
// next attempt. network indicates a network-class failure, which is
// allowed to back off further before capping out.
func RetryDelay(retryCount int, network bool) time.Duration {
	delay := baseRetryDelaySeconds * (1 << retryCount)
	ceiling := maxRetryDelaySeconds
	if network {
		ceiling = maxNetworkDelaySeconds
	}
	if delay > ceiling {
		delay = ceiling
	}
	return time.Duration(delay) * time.Second
}

// Retry schedules a failed task for another attempt after delay elapses;
// the task stays invisible to Dequeue until then.
func (s *Service) Retry(ctx context.Context, taskID int64, errMsg *string, delay time.Duration) error {
	if err := s.store.RetryTask(ctx, taskID, errMsg, delay); err != nil {
		return errors.Wrapf(err, "failed to retry task %d", taskID)
	}
	return nil
}

// Stats reports queue depth for the queue status CLI command.
func (s *Service) Stats(ctx context.Context, recentFailureLimit int) (*store.TaskStats, error) {
	stats, err := s.store.Stats(ctx, recentFailureLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute queue stats")
	}
	return stats, nil
}

// Cleanup removes completed tasks older than olderThan.
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.store.CleanupOldTasks(ctx, olderThan)
	if err != nil {
		return 0, errors.Wrap(err, "failed to clean up old tasks")
	}
	if n > 0 {
		slog.Info("cleaned up old tasks", slog.Int64("count", n))
	}
	return n, nil
}
