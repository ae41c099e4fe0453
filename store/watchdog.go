package store

import (
	"context"
	"time"
)

// WatchdogEvent is a single recovery action taken during a watchdog pass,
// persisted so operators can audit what the watchdog has been doing.
type WatchdogEvent struct {
	ID        int64
	RunID     string
	EventType string
	Detail    string
	RowCount  int64
	CreatedAt time.Time
}

// WatchdogRun summarizes one watchdog pass.
type WatchdogRun struct {
	ID               int64
	RunID            string
	StartedAt        time.Time
	CompletedAt      time.Time
	StaleReclaimed   int64
	ChecksReleased   int64
	TasksCleanedUp   int64
	TranscribeMoved  int64
	AlertFired       bool
}

// WatchdogStore persists watchdog event log rows and run summaries.
type WatchdogStore interface {
	LogEvent(ctx context.Context, event *WatchdogEvent) error
	RecordRun(ctx context.Context, run *WatchdogRun) error
	RecentRuns(ctx context.Context, limit int) ([]*WatchdogRun, error)
}
