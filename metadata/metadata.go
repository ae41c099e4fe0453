// Package metadata implements the content metadata shape and the
// conflict-reducing patch/merge used when two concurrent handlers update
// the same content row's metadata.
package metadata

import (
	"reflect"
	"time"
)

// DomainKey and ProcessingKey are the two namespaces content metadata is
// organized under. Top-level keys are kept alongside them for older
// readers, matching the dual-write migration strategy the shape was
// carried over from.
const (
	DomainKey     = "domain"
	ProcessingKey = "processing"
)

// ProcessingFields are the runtime/operational keys that belong under the
// processing namespace rather than domain.
var ProcessingFields = map[string]bool{
	"subscribe_to_feed":        true,
	"feed_subscription":        true,
	"detected_feed":            true,
	"all_detected_feeds":       true,
	"share_and_chat_user_ids":  true,
	"submitted_by_user_id":     true,
	"submitted_via":            true,
	"platform_hint":            true,
	"content_to_summarize":     true,
	"processing_errors":        true,
	"canonical_content_id":     true,
	"tweet_enrichment":         true,
	"tweet_only":               true,
}

// NormalizeShape returns metadata with explicit domain/processing
// namespaces materialized, preserving any existing top-level keys.
func NormalizeShape(raw map[string]any) map[string]any {
	out := cloneShallow(raw)

	domain, _ := out[DomainKey].(map[string]any)
	if domain == nil {
		domain = map[string]any{}
	}
	processing, _ := out[ProcessingKey].(map[string]any)
	if processing == nil {
		processing = map[string]any{}
	}

	for key, value := range out {
		if key == DomainKey || key == ProcessingKey {
			continue
		}
		if ProcessingFields[key] {
			setDefault(processing, key, value)
		} else {
			setDefault(domain, key, value)
		}
	}

	out[DomainKey] = domain
	out[ProcessingKey] = processing
	return out
}

// FlatView returns a flat compatibility view with domain values overlaid
// by processing values, for handlers and tests that don't care about the
// namespace split.
func FlatView(raw map[string]any) map[string]any {
	normalized := NormalizeShape(raw)
	merged := map[string]any{}
	if domain, ok := normalized[DomainKey].(map[string]any); ok {
		for k, v := range domain {
			merged[k] = v
		}
	}
	if processing, ok := normalized[ProcessingKey].(map[string]any); ok {
		for k, v := range processing {
			merged[k] = v
		}
	}
	return merged
}

// UpdateProcessing sets the given processing fields, preserving the
// top-level compatibility mirror.
func UpdateProcessing(raw map[string]any, fields map[string]any) map[string]any {
	normalized := NormalizeShape(raw)
	processing, _ := normalized[ProcessingKey].(map[string]any)
	processing = cloneShallow(processing)
	for k, v := range fields {
		processing[k] = v
	}
	normalized[ProcessingKey] = processing
	for k, v := range fields {
		normalized[k] = v
	}
	return normalized
}

// ComputePatch diffs base against updated, returning the keys that changed
// or were added (updates) and the keys present in base but absent from
// updated (removed).
func ComputePatch(base, updated map[string]any) (updates map[string]any, removed map[string]bool) {
	updates = map[string]any{}
	removed = map[string]bool{}

	for key, value := range updated {
		if baseValue, ok := base[key]; !ok || !deepEqual(baseValue, value) {
			updates[key] = value
		}
	}
	for key := range base {
		if _, ok := updated[key]; !ok {
			removed[key] = true
		}
	}
	return updates, removed
}

// RefreshMerge applies the patch between base and updated onto latest (the
// freshest metadata read from the store just before the write), reducing
// the chance that a long-running handler clobbers a concurrent update to
// an unrelated key. preserveLatestKeys names keys that should always keep
// latest's value regardless of the local patch (used for fields another
// in-flight handler owns, such as processing_errors).
func RefreshMerge(latest, base, updated map[string]any, preserveLatestKeys ...string) map[string]any {
	updates, removed := ComputePatch(base, updated)

	merged := cloneShallow(latest)
	for key := range removed {
		delete(merged, key)
	}
	for key, value := range updates {
		merged[key] = value
	}

	for _, key := range preserveLatestKeys {
		if value, ok := latest[key]; ok {
			merged[key] = value
		} else {
			delete(merged, key)
		}
	}
	return merged
}

// AppendProcessingError records a structured failure entry under
// processing.processing_errors, alongside (not instead of) the content
// row's error_message column.
func AppendProcessingError(raw map[string]any, stage, reason string, at time.Time) map[string]any {
	normalized := NormalizeShape(raw)
	processing, _ := normalized[ProcessingKey].(map[string]any)
	processing = cloneShallow(processing)

	var existing []any
	if v, ok := processing["processing_errors"].([]any); ok {
		existing = v
	}
	entry := map[string]any{
		"stage":  stage,
		"reason": reason,
		"at":     at.UTC().Format(time.RFC3339),
	}
	processing["processing_errors"] = append(append([]any{}, existing...), entry)

	normalized[ProcessingKey] = processing
	normalized["processing_errors"] = processing["processing_errors"]
	return normalized
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func cloneShallow(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func deepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
