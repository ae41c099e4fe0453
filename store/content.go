package store

import (
	"context"
	"time"
)

// Content statuses, following the content lifecycle in the pipeline.
const (
	ContentStatusNew        = "new"
	ContentStatusPending    = "pending"
	ContentStatusProcessing = "processing"
	ContentStatusCompleted  = "completed"
	ContentStatusFailed     = "failed"
	ContentStatusSkipped    = "skipped"
)

// Content types recognized by the analyze stage.
const (
	ContentTypeArticle = "article"
	ContentTypePodcast = "podcast"
	ContentTypeNews    = "news"
	ContentTypeUnknown = "unknown"
)

// Content is a single submitted URL moving through the pipeline.
type Content struct {
	ID           int64
	URL          string
	ContentType  string
	Platform     *string
	Source       *string
	Title        *string
	Status       string
	ErrorMessage *string
	RetryCount   int
	CheckedOutBy *string
	CheckedOutAt *time.Time
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ProcessedAt  *time.Time
}

// CreateContent is the argument to ContentStore.CreateContent. A row with
// the same URL is never duplicated: CreateContent falls through to the
// existing row instead.
type CreateContent struct {
	URL         string
	ContentType string
	Platform    *string
	Source      *string
	Title       *string
	Metadata    map[string]any
}

// FindContent filters ListContent. Nil fields are not applied.
type FindContent struct {
	ID           *int64
	URL          *string
	Status       *string
	ContentType  *string
	CheckedOutBy *string
	Limit        *int
}

// UpdateContent patches a content row. Nil fields are left untouched.
// Metadata, when set, replaces the stored value wholesale: callers that
// need conflict-reducing merge semantics build the new value with the
// metadata package's RefreshMerge against a freshly read row first.
type UpdateContent struct {
	ID           int64
	URL          *string
	ContentType  *string
	Platform     *string
	Source       *string
	Title        *string
	Status       *string
	ErrorMessage *string
	ClearError   bool
	RetryCount   *int
	Metadata     map[string]any
	ProcessedAt  *time.Time
}

// ContentStore persists Content rows and implements the checkout/check-in
// claim protocol used by handlers that need exclusive, short-lived access
// to a piece of content (as distinct from the task-level queue claim).
type ContentStore interface {
	// CreateContent inserts a new content row, or returns the existing row
	// for the URL (created=false) if one is already present.
	CreateContent(ctx context.Context, create *CreateContent) (c *Content, created bool, err error)
	GetContent(ctx context.Context, id int64) (*Content, error)
	GetContentByURL(ctx context.Context, url string) (*Content, error)
	ListContent(ctx context.Context, find *FindContent) ([]*Content, error)
	UpdateContent(ctx context.Context, update *UpdateContent) (*Content, error)

	// CheckoutBatch atomically claims up to limit content rows in status
	// "new" (optionally filtered by contentType), marking them checked out
	// by workerID, and returns their ids. It is implemented as a single
	// UPDATE ... WHERE id IN (SELECT ...) statement so it is safe under
	// concurrent callers on both postgres and sqlite without relying on
	// SELECT ... FOR UPDATE SKIP LOCKED.
	CheckoutBatch(ctx context.Context, workerID string, contentType *string, limit int) ([]int64, error)

	// CheckinContent releases a checked-out row, setting its terminal (or
	// re-queued) status. The update only applies if checkedOutBy still
	// matches workerID, so a checkout that has already been reclaimed by
	// the watchdog is not clobbered.
	CheckinContent(ctx context.Context, id int64, workerID string, status string, errMsg *string) (bool, error)

	// ReleaseStaleCheckouts clears checkouts older than timeout, returning
	// the number of rows released, for the watchdog's recovery pass.
	ReleaseStaleCheckouts(ctx context.Context, timeout time.Duration) (int64, error)

	// CheckoutCounts reports the number of rows currently checked out per
	// worker id, for queue status reporting.
	CheckoutCounts(ctx context.Context) (map[string]int64, error)
}
