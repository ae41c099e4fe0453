package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/store/storetest"
)

func newTestManager(t *testing.T) (*Manager, *storetest.Driver) {
	t.Helper()
	mock := storetest.New()
	s := store.New(mock, &profile.Profile{})
	return New(s, 30), mock
}

func seedContent(t *testing.T, mock *storetest.Driver, url string) *store.Content {
	t.Helper()
	c, _, err := mock.CreateContent(context.Background(), &store.CreateContent{URL: url, ContentType: store.ContentTypeArticle})
	require.NoError(t, err)
	return c
}

func TestBatchChecksInAsCompletedOnSuccess(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := context.Background()
	c := seedContent(t, mock, "https://example.com/a")

	var seen []int64
	err := mgr.Batch(ctx, "worker-1", nil, 10, func(ctx context.Context, contentIDs []int64) error {
		seen = contentIDs
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, seen)

	got, err := mock.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ContentStatusCompleted, got.Status)
	assert.Nil(t, got.CheckedOutBy)
}

func TestBatchChecksInAsFailedWhenFnErrors(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := context.Background()
	c := seedContent(t, mock, "https://example.com/b")

	boom := errors.New("boom")
	err := mgr.Batch(ctx, "worker-1", nil, 10, func(ctx context.Context, contentIDs []int64) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := mock.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ContentStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)
	assert.Equal(t, 1, got.RetryCount)
}

func TestBatchIsNoOpWhenNothingAvailable(t *testing.T) {
	mgr, _ := newTestManager(t)
	called := false
	err := mgr.Batch(context.Background(), "worker-1", nil, 10, func(ctx context.Context, contentIDs []int64) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestReleaseStaleReturnsContentToNew(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := context.Background()
	c := seedContent(t, mock, "https://example.com/c")

	_, err := mock.CheckoutBatch(ctx, "worker-1", nil, 10)
	require.NoError(t, err)

	mock.Now = func() time.Time { return time.Now().Add(time.Hour) }

	n, err := mgr.ReleaseStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := mock.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ContentStatusNew, got.Status)
	assert.Nil(t, got.CheckedOutBy)
	assert.Equal(t, 1, got.RetryCount)
}
