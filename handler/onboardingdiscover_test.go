package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

func TestOnboardingDiscoverSeedsContentAndEnqueuesAnalysis(t *testing.T) {
	h := newHarness(t)
	env := &task.Envelope{TaskType: store.TaskTypeOnboardingDiscover, Payload: map[string]any{
		"user_id": int64(99),
		"sources": []any{"https://a.example", "https://b.example"},
	}}
	result := OnboardingDiscover(context.Background(), env, h.Context)
	require.True(t, result.Success)

	a, err := h.Store.GetContentByURL(context.Background(), "https://a.example")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, store.ContentStatusNew, a.Status)

	stats, err := h.Queue.Stats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusPending])
}

func TestOnboardingDiscoverRequiresUserID(t *testing.T) {
	h := newHarness(t)
	env := &task.Envelope{TaskType: store.TaskTypeOnboardingDiscover, Payload: map[string]any{"sources": []any{"https://a.example"}}}
	result := OnboardingDiscover(context.Background(), env, h.Context)
	require.False(t, result.Success)
}
