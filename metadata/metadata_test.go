package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeShapeSplitsKnownProcessingFields(t *testing.T) {
	raw := map[string]any{
		"title":             "Some Article",
		"platform_hint":     "twitter",
		"processing_errors": []any{"boom"},
	}
	out := NormalizeShape(raw)

	domain := out[DomainKey].(map[string]any)
	processing := out[ProcessingKey].(map[string]any)

	assert.Equal(t, "Some Article", domain["title"])
	assert.Equal(t, "twitter", processing["platform_hint"])
	assert.Contains(t, processing, "processing_errors")
	assert.Equal(t, "Some Article", out["title"], "top-level mirror is preserved")
}

func TestFlatViewOverlaysProcessingOverDomain(t *testing.T) {
	raw := map[string]any{
		"domain":     map[string]any{"title": "Old", "author": "A"},
		"processing": map[string]any{"title": "New"},
	}
	flat := FlatView(raw)
	assert.Equal(t, "New", flat["title"])
	assert.Equal(t, "A", flat["author"])
}

func TestComputePatchDetectsAddedChangedAndRemoved(t *testing.T) {
	base := map[string]any{"a": 1, "b": 2, "c": 3}
	updated := map[string]any{"a": 1, "b": 20, "d": 4}

	updates, removed := ComputePatch(base, updated)

	assert.Equal(t, map[string]any{"b": 20, "d": 4}, updates)
	assert.True(t, removed["c"])
	assert.False(t, removed["a"])
}

func TestRefreshMergeAppliesPatchOnTopOfLatestWithoutClobberingConcurrentKeys(t *testing.T) {
	// Handler A read base, computed updated locally, but by the time it
	// writes, handler B has already persisted a change to "other_key".
	base := map[string]any{"title": "Draft", "other_key": "before"}
	updated := map[string]any{"title": "Final", "other_key": "before"}
	latest := map[string]any{"title": "Draft", "other_key": "after-concurrent-write"}

	merged := RefreshMerge(latest, base, updated)

	assert.Equal(t, "Final", merged["title"])
	assert.Equal(t, "after-concurrent-write", merged["other_key"], "concurrent unrelated key survives the merge")
}

func TestRefreshMergePreservesLatestOwnedKeys(t *testing.T) {
	base := map[string]any{"processing_errors": []any{"old"}}
	updated := map[string]any{"processing_errors": []any{}}
	latest := map[string]any{"processing_errors": []any{"old", "new-from-another-handler"}}

	merged := RefreshMerge(latest, base, updated, "processing_errors")

	assert.Equal(t, latest["processing_errors"], merged["processing_errors"])
}

func TestUpdateProcessingSetsBothNamespaceAndMirror(t *testing.T) {
	out := UpdateProcessing(map[string]any{}, map[string]any{"detected_feed": "https://example.com/feed"})

	processing := out[ProcessingKey].(map[string]any)
	assert.Equal(t, "https://example.com/feed", processing["detected_feed"])
	assert.Equal(t, "https://example.com/feed", out["detected_feed"])
}
