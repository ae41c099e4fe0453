package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/store/storetest"
)

func newTestService(t *testing.T) (*Service, *storetest.Driver) {
	t.Helper()
	mock := storetest.New()
	s := store.New(mock, &profile.Profile{})
	return New(s), mock
}

func TestEnqueueThenDequeueHappyPath(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	contentID := int64(42)
	taskID, err := svc.Enqueue(ctx, store.TaskTypeScrape, &contentID, map[string]any{"url": "https://example.com"}, nil)
	require.NoError(t, err)
	assert.NotZero(t, taskID)

	task, err := svc.Dequeue(ctx, store.QueueContent)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, store.TaskStatusProcessing, task.Status)

	require.NoError(t, svc.CompleteTask(ctx, task.ID, true, nil))

	stats, err := svc.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusCompleted])
}

func TestDequeueReturnsNilWhenEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	task, err := svc.Dequeue(context.Background(), store.QueueContent)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestEnqueueDedupesEligibleTaskTypesForSameContent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	contentID := int64(7)

	first, err := svc.Enqueue(ctx, store.TaskTypeSummarize, &contentID, nil, nil)
	require.NoError(t, err)

	second, err := svc.Enqueue(ctx, store.TaskTypeSummarize, &contentID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second, "a second summarize enqueue for the same content reuses the pending task")
}

func TestEnqueueDoesNotDedupeAnalyzeURLOrScrape(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	contentID := int64(8)

	first, err := svc.Enqueue(ctx, store.TaskTypeAnalyzeURL, &contentID, nil, nil)
	require.NoError(t, err)
	second, err := svc.Enqueue(ctx, store.TaskTypeAnalyzeURL, &contentID, nil, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "analyze_url is excluded from dedup even for the same content")
}

func TestCompleteTaskFailureFillsInDefaultErrorMessage(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	taskID, err := svc.Enqueue(ctx, store.TaskTypeScrape, nil, nil, nil)
	require.NoError(t, err)
	_, err = svc.Dequeue(ctx, store.QueueContent)
	require.NoError(t, err)

	require.NoError(t, svc.CompleteTask(ctx, taskID, false, nil))

	task, err := mock.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.NotNil(t, task.ErrorMessage)
	assert.NotEmpty(t, *task.ErrorMessage)
}

func TestRetryDelayGrowsExponentiallyAndCaps(t *testing.T) {
	assert.Equal(t, 60*time.Second, RetryDelay(0, false))
	assert.Equal(t, 120*time.Second, RetryDelay(1, false))
	assert.Equal(t, 3600*time.Second, RetryDelay(10, false), "non-network delay caps at 3600s")
	assert.Equal(t, 7200*time.Second, RetryDelay(10, true), "network-class delay caps at 7200s")
}

func TestRetrySchedulesTaskBackToPending(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	taskID, err := svc.Enqueue(ctx, store.TaskTypeScrape, nil, nil, nil)
	require.NoError(t, err)
	_, err = svc.Dequeue(ctx, store.QueueContent)
	require.NoError(t, err)

	msg := "timed out"
	require.NoError(t, svc.Retry(ctx, taskID, &msg, RetryDelay(0, false)))

	task, err := mock.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskStatusPending, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.True(t, task.CreatedAt.After(time.Now().Add(50*time.Second)), "created_at should be pushed out by the backoff delay")
}

func TestRetriedTaskIsInvisibleUntilBackoffElapses(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	taskID, err := svc.Enqueue(ctx, store.TaskTypeScrape, nil, nil, nil)
	require.NoError(t, err)
	_, err = svc.Dequeue(ctx, store.QueueContent)
	require.NoError(t, err)

	base := time.Now()
	mock.Now = func() time.Time { return base }

	msg := "timed out"
	require.NoError(t, svc.Retry(ctx, taskID, &msg, RetryDelay(0, false)))

	task, err := svc.Dequeue(ctx, store.QueueContent)
	require.NoError(t, err)
	assert.Nil(t, task, "a retried task must not be dequeued before its backoff delay elapses")

	mock.Now = func() time.Time { return base.Add(RetryDelay(0, false) + time.Second) }

	task, err = svc.Dequeue(ctx, store.QueueContent)
	require.NoError(t, err)
	require.NotNil(t, task, "the task becomes dequeueable once the backoff delay has elapsed")
	assert.Equal(t, taskID, task.ID)
}
