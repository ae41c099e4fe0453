package store

import (
	"context"
	"time"

	"github.com/hrygo/contentpipe/internal/profile"
)

// Store is the single entry point the rest of the pipeline uses to reach
// persistence. It delegates every method to the underlying Driver; unlike
// the driver, it is safe to pass around by value as a thin handle.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New wraps a connected Driver.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{driver: driver, profile: profile}
}

// Driver returns the underlying driver, for callers (migrations, the
// queue CLI) that need direct access.
func (s *Store) Driver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.driver.Ping(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Content

func (s *Store) CreateContent(ctx context.Context, create *CreateContent) (*Content, bool, error) {
	return s.driver.CreateContent(ctx, create)
}

func (s *Store) GetContent(ctx context.Context, id int64) (*Content, error) {
	return s.driver.GetContent(ctx, id)
}

func (s *Store) GetContentByURL(ctx context.Context, url string) (*Content, error) {
	return s.driver.GetContentByURL(ctx, url)
}

func (s *Store) ListContent(ctx context.Context, find *FindContent) ([]*Content, error) {
	return s.driver.ListContent(ctx, find)
}

func (s *Store) UpdateContent(ctx context.Context, update *UpdateContent) (*Content, error) {
	return s.driver.UpdateContent(ctx, update)
}

func (s *Store) CheckoutBatch(ctx context.Context, workerID string, contentType *string, limit int) ([]int64, error) {
	return s.driver.CheckoutBatch(ctx, workerID, contentType, limit)
}

func (s *Store) CheckinContent(ctx context.Context, id int64, workerID string, status string, errMsg *string) (bool, error) {
	return s.driver.CheckinContent(ctx, id, workerID, status, errMsg)
}

func (s *Store) ReleaseStaleCheckouts(ctx context.Context, timeout time.Duration) (int64, error) {
	return s.driver.ReleaseStaleCheckouts(ctx, timeout)
}

func (s *Store) CheckoutCounts(ctx context.Context) (map[string]int64, error) {
	return s.driver.CheckoutCounts(ctx)
}

// Task

func (s *Store) CreateTask(ctx context.Context, create *CreateTask) (*Task, bool, error) {
	return s.driver.CreateTask(ctx, create)
}

func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	return s.driver.GetTask(ctx, id)
}

func (s *Store) ListTasks(ctx context.Context, find *FindTask) ([]*Task, error) {
	return s.driver.ListTasks(ctx, find)
}

func (s *Store) TryClaimNext(ctx context.Context, queueName string) (*Task, bool, error) {
	return s.driver.TryClaimNext(ctx, queueName)
}

func (s *Store) CompleteTask(ctx context.Context, id int64, success bool, errMsg *string) error {
	return s.driver.CompleteTask(ctx, id, success, errMsg)
}

func (s *Store) RetryTask(ctx context.Context, id int64, errMsg *string, delay time.Duration) error {
	return s.driver.RetryTask(ctx, id, errMsg, delay)
}

func (s *Store) CleanupOldTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.driver.CleanupOldTasks(ctx, olderThan)
}

func (s *Store) Stats(ctx context.Context, recentFailureLimit int) (*TaskStats, error) {
	return s.driver.Stats(ctx, recentFailureLimit)
}

func (s *Store) RequeueStaleProcessing(ctx context.Context, threshold time.Duration) ([]int64, error) {
	return s.driver.RequeueStaleProcessing(ctx, threshold)
}

func (s *Store) MoveMisroutedTranscribeTasks(ctx context.Context) (int64, error) {
	return s.driver.MoveMisroutedTranscribeTasks(ctx)
}

// Watchdog

func (s *Store) LogEvent(ctx context.Context, event *WatchdogEvent) error {
	return s.driver.LogEvent(ctx, event)
}

func (s *Store) RecordRun(ctx context.Context, run *WatchdogRun) error {
	return s.driver.RecordRun(ctx, run)
}

func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*WatchdogRun, error) {
	return s.driver.RecentRuns(ctx, limit)
}
