package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/checkout"
	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/store/storetest"
)

func newTestWatchdog(t *testing.T) (*Watchdog, *storetest.Driver) {
	t.Helper()
	mock := storetest.New()
	p := &profile.Profile{
		WatchdogStaleHoursProcessContent: 2,
		CheckoutTimeoutMinutes:           30,
		CleanupDays:                      7,
		AlertThreshold:                   1,
	}
	s := store.New(mock, p)
	return New(s, checkout.New(s, p.CheckoutTimeoutMinutes), p, false), mock
}

func TestRunOnceRequeuesStaleProcessingTask(t *testing.T) {
	wd, mock := newTestWatchdog(t)
	ctx := context.Background()

	contentID := int64(1)
	taskID, _, err := mock.CreateTask(ctx, &store.CreateTask{TaskType: store.TaskTypeProcessContent, ContentID: &contentID})
	require.NoError(t, err)

	claimed, ok, err := mock.TryClaimNext(ctx, store.QueueContent)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, taskID.ID, claimed.ID)

	mock.Now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	run, err := wd.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.StaleReclaimed)

	stats, err := mock.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusPending])

	runs, err := mock.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].RunID)
}

func TestRunOnceMovesMisroutedTranscribeTasks(t *testing.T) {
	wd, mock := newTestWatchdog(t)
	ctx := context.Background()

	taskID, _, err := mock.CreateTask(ctx, &store.CreateTask{TaskType: store.TaskTypeTranscribe})
	require.NoError(t, err)
	task, err := mock.GetTask(ctx, taskID.ID)
	require.NoError(t, err)
	require.Equal(t, store.QueueTranscribe, task.QueueName)

	// Simulate a misroute a buggy enqueue call might have produced.
	mock.SetTaskQueueName(taskID.ID, store.QueueContent)

	run, err := wd.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.TranscribeMoved)

	fixed, err := mock.GetTask(ctx, taskID.ID)
	require.NoError(t, err)
	assert.Equal(t, store.QueueTranscribe, fixed.QueueName)
}

func TestRunOnceDryRunTouchesNothing(t *testing.T) {
	wd, mock := newTestWatchdog(t)
	wd.DryRun = true
	ctx := context.Background()

	contentID := int64(1)
	_, _, err := mock.CreateTask(ctx, &store.CreateTask{TaskType: store.TaskTypeProcessContent, ContentID: &contentID})
	require.NoError(t, err)
	_, _, err = mock.TryClaimNext(ctx, store.QueueContent)
	require.NoError(t, err)
	mock.Now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	run, err := wd.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, run.StaleReclaimed)

	stats, err := mock.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusProcessing])
}
