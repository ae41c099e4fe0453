package store

import (
	"context"
	"time"
)

// Task statuses.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Task types, each bound to exactly one QueueName by TaskTypeQueue.
const (
	TaskTypeAnalyzeURL         = "analyze_url"
	TaskTypeScrape             = "scrape"
	TaskTypeProcessContent     = "process_content"
	TaskTypeDownloadAudio      = "download_audio"
	TaskTypeTranscribe         = "transcribe"
	TaskTypeSummarize          = "summarize"
	TaskTypeFetchDiscussion    = "fetch_discussion"
	TaskTypeGenerateImage      = "generate_image"
	TaskTypeGenerateThumbnail  = "generate_thumbnail"
	TaskTypeDiscoverFeeds      = "discover_feeds"
	TaskTypeOnboardingDiscover = "onboarding_discover"
	TaskTypeDigDeeper          = "dig_deeper"
	TaskTypeSyncIntegration    = "sync_integration"
)

// Queue partitions.
const (
	QueueContent    = "content"
	QueueTranscribe = "transcribe"
	QueueOnboarding = "onboarding"
	QueueChat       = "chat"
)

// TaskTypeQueue is the fixed task_type -> queue_name routing table.
var TaskTypeQueue = map[string]string{
	TaskTypeAnalyzeURL:         QueueContent,
	TaskTypeScrape:             QueueContent,
	TaskTypeProcessContent:     QueueContent,
	TaskTypeDownloadAudio:      QueueContent,
	TaskTypeTranscribe:         QueueTranscribe,
	TaskTypeSummarize:          QueueContent,
	TaskTypeFetchDiscussion:    QueueContent,
	TaskTypeGenerateImage:      QueueContent,
	TaskTypeGenerateThumbnail:  QueueContent,
	TaskTypeDiscoverFeeds:      QueueContent,
	TaskTypeOnboardingDiscover: QueueOnboarding,
	TaskTypeDigDeeper:          QueueChat,
	TaskTypeSyncIntegration:    QueueContent,
}

// DedupEligible is the set of task types for which CreateTask folds a new
// request into an existing non-terminal row for the same content instead of
// inserting a duplicate. analyze_url and scrape are deliberately excluded,
// matching the source system's observed (if perhaps accidental) behavior.
var DedupEligible = map[string]bool{
	TaskTypeProcessContent: true,
	TaskTypeSummarize:      true,
	TaskTypeGenerateImage:  true,
}

// Task is a unit of work enqueued for a worker.
type Task struct {
	ID           int64
	TaskType     string
	QueueName    string
	ContentID    *int64
	Payload      map[string]any
	Status       string
	RetryCount   int
	ErrorMessage *string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// CreateTask is the argument to TaskStore.CreateTask.
type CreateTask struct {
	TaskType  string
	ContentID *int64
	Payload   map[string]any
	// QueueName overrides the TaskTypeQueue routing table when set.
	QueueName string
	// Dedupe overrides DedupEligible when set.
	Dedupe *bool
}

// FindTask filters ListTasks. Nil fields are not applied.
type FindTask struct {
	Status    *string
	TaskType  *string
	QueueName *string
	ContentID *int64
	Limit     *int
}

// TaskStats summarizes queue depth for the queue status CLI command.
type TaskStats struct {
	ByQueueAndStatus map[string]map[string]int64
	RecentFailures   []*Task
}

// TaskStore persists Task rows and implements the durable claim protocol:
// single-statement conditional UPDATEs take the place of SELECT ... FOR
// UPDATE SKIP LOCKED on engines that lack it.
type TaskStore interface {
	// CreateTask inserts a new task. If taskType is dedup-eligible and a
	// pending or processing row already exists for the same (taskType,
	// contentID), CreateTask returns that row instead (created=false).
	CreateTask(ctx context.Context, create *CreateTask) (t *Task, created bool, err error)
	GetTask(ctx context.Context, id int64) (*Task, error)
	ListTasks(ctx context.Context, find *FindTask) ([]*Task, error)

	// TryClaimNext attempts to atomically claim one pending task from
	// queueName (or any queue, if empty), moving it to processing and
	// stamping started_at. A row with created_at in the future is not a
	// candidate: it is invisible until its retry backoff (or initial
	// delay) elapses. ok is false with a nil task when a candidate row was
	// claimed by another worker first (a lost compare-and-set race), which
	// callers retry a bounded number of times; ok is true with a nil task
	// when there was no pending, visible row at all ("queue empty").
	TryClaimNext(ctx context.Context, queueName string) (task *Task, ok bool, err error)

	// CompleteTask marks a processing task completed or failed.
	CompleteTask(ctx context.Context, id int64, success bool, errMsg *string) error

	// RetryTask returns a failed/processing task to pending, incrementing
	// retry_count and advancing created_at by delay so TryClaimNext's
	// visibility predicate hides the row until the backoff elapses.
	RetryTask(ctx context.Context, id int64, errMsg *string, delay time.Duration) error

	// CleanupOldTasks deletes completed tasks older than olderThan,
	// returning the number of rows removed.
	CleanupOldTasks(ctx context.Context, olderThan time.Duration) (int64, error)

	// Stats reports queue depth and recent failures for the queue status
	// CLI command.
	Stats(ctx context.Context, recentFailureLimit int) (*TaskStats, error)

	// RequeueStaleProcessing resets tasks stuck in processing longer than
	// threshold back to pending, returning their ids.
	RequeueStaleProcessing(ctx context.Context, threshold time.Duration) ([]int64, error)

	// MoveMisroutedTranscribeTasks moves every row whose queue_name differs
	// from its task type's TaskTypeQueue entry (transcribe rows included)
	// back to that queue, returning the number of rows corrected.
	MoveMisroutedTranscribeTasks(ctx context.Context) (int64, error)
}
