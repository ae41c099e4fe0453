package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/queue"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/store/storetest"
	"github.com/hrygo/contentpipe/task"
)

func newTestLoop(t *testing.T) (*Loop, *queue.Service, *storetest.Driver) {
	t.Helper()
	mock := storetest.New()
	p := &profile.Profile{
		MaxRetries:            3,
		PollStartupIntervalMS: 1,
		PollBackoffMinMS:      1,
		PollBackoffMaxMS:      1,
	}
	s := store.New(mock, p)
	q := queue.New(s)
	return New(q, dispatcher.New(), &dispatcher.Context{Store: s, Queue: q, WorkerID: "test-worker"}, store.QueueContent, p), q, mock
}

func TestRunProcessesUntilMaxTasks(t *testing.T) {
	l, q, _ := newTestLoop(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, store.TaskTypeScrape, nil, nil, nil)
		require.NoError(t, err)
	}

	var seen int
	l.Dispatcher.MustRegister(store.TaskTypeScrape, func(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
		seen++
		return task.Ok()
	})

	err := l.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, seen)

	stats, err := q.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusPending])
	assert.Equal(t, int64(2), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusCompleted])
}

func TestRunStopsOnContextCancel(t *testing.T) {
	l, _, _ := newTestLoop(t)
	ctx, cancel := context.WithCancel(context.Background())

	l.Dispatcher.MustRegister(store.TaskTypeScrape, func(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
		return task.Ok()
	})

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, 0) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}
}

func TestRunRetriesFailedTaskUntilMaxRetries(t *testing.T) {
	l, q, mock := newTestLoop(t)
	l.Profile.MaxRetries = 1
	ctx := context.Background()

	_, err := q.Enqueue(ctx, store.TaskTypeScrape, nil, nil, nil)
	require.NoError(t, err)

	var attempts int
	l.Dispatcher.MustRegister(store.TaskTypeScrape, func(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
		attempts++
		return task.Fail("boom", true)
	})

	// First pass: task fails, gets rescheduled (retry_count 0 < max 1).
	require.NoError(t, l.Run(ctx, 1))
	assert.Equal(t, 1, attempts)

	stats, err := q.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusPending])

	// The retry's backoff delay leaves created_at in the future, so the
	// task is invisible to Dequeue until the mock clock catches up.
	base := time.Now()
	mock.Now = func() time.Time { return base.Add(queue.RetryDelay(0, false) + time.Second) }

	// Second pass: retry_count is now 1, equal to max, so this failure is
	// terminal and the task is not rescheduled again.
	require.NoError(t, l.Run(ctx, 1))
	assert.Equal(t, 2, attempts)

	stats, err = q.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusFailed])
}
