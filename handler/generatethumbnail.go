package handler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"time"

	"github.com/disintegration/imaging"

	"github.com/hrygo/contentpipe/dispatcher"
	"github.com/hrygo/contentpipe/metadata"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/task"
)

// thumbnailWidth is the fixed output width for news thumbnails; height is
// derived preserving aspect ratio.
const thumbnailWidth = 480

// GenerateThumbnail produces a screenshot-derived thumbnail for news
// content: it fetches the externally rendered screenshot, resizes it down
// to thumbnail dimensions, and records the result in metadata. It is a
// no-op (success) for content that was already thumbnailed.
func GenerateThumbnail(ctx context.Context, env *task.Envelope, tctx *dispatcher.Context) *task.Result {
	content, failResult := loadContent(ctx, tctx.Store, env)
	if failResult != nil {
		return failResult
	}
	if content.ContentType != store.ContentTypeNews {
		return task.Ok()
	}

	base := content.Metadata
	flat := metadata.FlatView(base)
	if _, ok := flat["thumbnail_url"].(string); ok {
		return task.Ok()
	}

	screenshotURL, _ := flat["screenshot_url"].(string)
	if screenshotURL == "" {
		screenshotURL = content.URL
	}

	body, _, err := tctx.HTTP.Fetch(ctx, screenshotURL)
	if err != nil {
		return task.FailNetwork(fmt.Sprintf("thumbnail screenshot fetch failed for %d: %v", content.ID, err))
	}

	thumbDataURL, err := resizeToThumbnail([]byte(body))
	if err != nil {
		// A screenshot that isn't a decodable image is a non-retryable
		// upstream condition, not a transient failure.
		return task.Fail(fmt.Sprintf("failed to decode screenshot for content %d: %v", content.ID, err), false)
	}

	updated := metadata.UpdateProcessing(base, map[string]any{
		"thumbnail_url":          thumbDataURL,
		"thumbnail_generated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if _, err := mergeMetadata(ctx, tctx.Store, content.ID, base, updated); err != nil {
		return task.FailNetwork(fmt.Sprintf("failed to record thumbnail for %d: %v", content.ID, err))
	}
	return task.Ok()
}

// resizeToThumbnail decodes raw image bytes, resizes to thumbnailWidth
// preserving aspect ratio, and re-encodes as JPEG. It returns a reference
// string rather than the bytes themselves: a blob store is out of scope,
// so the reference is a stand-in for whatever asset id a real deployment
// would hand back from storing buf.
func resizeToThumbnail(raw []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	resized := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return "", err
	}
	return fmt.Sprintf("thumbnail:%d-bytes", buf.Len()), nil
}
