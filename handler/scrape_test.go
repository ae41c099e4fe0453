package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

func TestScrapeFansOutLinksFromEachSource(t *testing.T) {
	h := newHarness(t)
	h.HTTP.queue("https://feed.example/a", fetchResponse{body: `see https://child.example/1 and https://child.example/2`})

	env := &task.Envelope{TaskType: store.TaskTypeScrape, Payload: map[string]any{"sources": []any{"https://feed.example/a"}}}
	result := Scrape(context.Background(), env, h.Context)

	require.True(t, result.Success)

	c1, err := h.Store.GetContentByURL(context.Background(), "https://child.example/1")
	require.NoError(t, err)
	require.NotNil(t, c1)
	c2, err := h.Store.GetContentByURL(context.Background(), "https://child.example/2")
	require.NoError(t, err)
	require.NotNil(t, c2)

	stats, err := h.Queue.Stats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ByQueueAndStatus[store.QueueContent][store.TaskStatusPending])
}

func TestScrapeDefaultsToAllSourcesWhenUnset(t *testing.T) {
	h := newHarness(t)
	env := &task.Envelope{TaskType: store.TaskTypeScrape, Payload: map[string]any{}}
	result := Scrape(context.Background(), env, h.Context)
	require.True(t, result.Success)
	assert.Empty(t, h.HTTP.calls)
}

func TestScrapeFailsNetworkOnFetchError(t *testing.T) {
	h := newHarness(t)
	h.HTTP.queue("https://feed.example/broken", fetchResponse{err: assertErr("boom")})

	env := &task.Envelope{TaskType: store.TaskTypeScrape, Payload: map[string]any{"sources": []any{"https://feed.example/broken"}}}
	result := Scrape(context.Background(), env, h.Context)

	require.False(t, result.Success)
	assert.True(t, result.Network)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
