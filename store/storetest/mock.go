// Package storetest provides an in-memory store.Driver double for unit
// tests across queue, checkout, dispatcher, worker and watchdog packages,
// a hand-written mock store rather than a real database connection.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hrygo/contentpipe/store"
)

// Driver is an in-memory store.Driver implementation.
type Driver struct {
	mu sync.Mutex

	nextContentID int64
	content       map[int64]*store.Content

	nextTaskID int64
	tasks      map[int64]*store.Task

	events []*store.WatchdogEvent
	runs   []*store.WatchdogRun

	// Now lets tests control the clock; defaults to time.Now.
	Now func() time.Time
}

func New() *Driver {
	return &Driver{
		nextContentID: 1,
		content:       map[int64]*store.Content{},
		nextTaskID:    1,
		tasks:         map[int64]*store.Task{},
		Now:           time.Now,
	}
}

func (d *Driver) Migrate(ctx context.Context) error { return nil }
func (d *Driver) Ping(ctx context.Context) error    { return nil }
func (d *Driver) Close() error                      { return nil }

func (d *Driver) now() time.Time { return d.Now() }

// -- ContentStore --

func (d *Driver) CreateContent(ctx context.Context, create *store.CreateContent) (*store.Content, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range d.content {
		if c.URL == create.URL {
			return clone(c), false, nil
		}
	}

	now := d.now()
	c := &store.Content{
		ID:          d.nextContentID,
		URL:         create.URL,
		ContentType: create.ContentType,
		Platform:    create.Platform,
		Source:      create.Source,
		Title:       create.Title,
		Status:      store.ContentStatusNew,
		Metadata:    create.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.ContentType == "" {
		c.ContentType = store.ContentTypeUnknown
	}
	d.content[c.ID] = c
	d.nextContentID++
	return clone(c), true, nil
}

func (d *Driver) GetContent(ctx context.Context, id int64) (*store.Content, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.content[id]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

func (d *Driver) GetContentByURL(ctx context.Context, url string) (*store.Content, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.content {
		if c.URL == url {
			return clone(c), nil
		}
	}
	return nil, nil
}

func (d *Driver) ListContent(ctx context.Context, find *store.FindContent) ([]*store.Content, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*store.Content
	for _, c := range d.content {
		if find != nil {
			if find.ID != nil && c.ID != *find.ID {
				continue
			}
			if find.URL != nil && c.URL != *find.URL {
				continue
			}
			if find.Status != nil && c.Status != *find.Status {
				continue
			}
			if find.ContentType != nil && c.ContentType != *find.ContentType {
				continue
			}
			if find.CheckedOutBy != nil && (c.CheckedOutBy == nil || *c.CheckedOutBy != *find.CheckedOutBy) {
				continue
			}
		}
		out = append(out, clone(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if find != nil && find.Limit != nil && len(out) > *find.Limit {
		out = out[:*find.Limit]
	}
	return out, nil
}

func (d *Driver) UpdateContent(ctx context.Context, update *store.UpdateContent) (*store.Content, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.content[update.ID]
	if !ok {
		return nil, nil
	}
	if update.URL != nil {
		c.URL = *update.URL
	}
	if update.ContentType != nil {
		c.ContentType = *update.ContentType
	}
	if update.Platform != nil {
		c.Platform = update.Platform
	}
	if update.Source != nil {
		c.Source = update.Source
	}
	if update.Title != nil {
		c.Title = update.Title
	}
	if update.Status != nil {
		c.Status = *update.Status
	}
	if update.ClearError {
		c.ErrorMessage = nil
	} else if update.ErrorMessage != nil {
		c.ErrorMessage = update.ErrorMessage
	}
	if update.RetryCount != nil {
		c.RetryCount = *update.RetryCount
	}
	if update.Metadata != nil {
		c.Metadata = update.Metadata
	}
	if update.ProcessedAt != nil {
		c.ProcessedAt = update.ProcessedAt
	}
	c.UpdatedAt = d.now()
	return clone(c), nil
}

func (d *Driver) CheckoutBatch(ctx context.Context, workerID string, contentType *string, limit int) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var candidates []*store.Content
	for _, c := range d.content {
		if c.Status != store.ContentStatusNew || c.CheckedOutBy != nil {
			continue
		}
		if contentType != nil && c.ContentType != *contentType {
			continue
		}
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RetryCount != candidates[j].RetryCount {
			return candidates[i].RetryCount < candidates[j].RetryCount
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	now := d.now()
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		worker := workerID
		c.CheckedOutBy = &worker
		c.CheckedOutAt = &now
		c.Status = store.ContentStatusProcessing
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (d *Driver) CheckinContent(ctx context.Context, id int64, workerID string, status string, errMsg *string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.content[id]
	if !ok || c.CheckedOutBy == nil || *c.CheckedOutBy != workerID {
		return false, nil
	}
	c.Status = status
	c.CheckedOutBy = nil
	c.CheckedOutAt = nil
	now := d.now()
	switch status {
	case store.ContentStatusCompleted:
		c.ProcessedAt = &now
	case store.ContentStatusFailed:
		c.ErrorMessage = errMsg
		c.RetryCount++
	}
	return true, nil
}

func (d *Driver) ReleaseStaleCheckouts(ctx context.Context, timeout time.Duration) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	threshold := d.now().Add(-timeout)
	var n int64
	for _, c := range d.content {
		if c.CheckedOutBy == nil || c.CheckedOutAt == nil || !c.CheckedOutAt.Before(threshold) {
			continue
		}
		c.CheckedOutBy = nil
		c.CheckedOutAt = nil
		c.Status = store.ContentStatusNew
		c.RetryCount++
		n++
	}
	return n, nil
}

func (d *Driver) CheckoutCounts(ctx context.Context) (map[string]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := map[string]int64{}
	for _, c := range d.content {
		if c.CheckedOutBy != nil {
			out[*c.CheckedOutBy]++
		}
	}
	return out, nil
}

// -- TaskStore --

func (d *Driver) CreateTask(ctx context.Context, create *store.CreateTask) (*store.Task, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	queueName := create.QueueName
	if queueName == "" {
		queueName = store.TaskTypeQueue[create.TaskType]
	}

	dedupe := store.DedupEligible[create.TaskType]
	if create.Dedupe != nil {
		dedupe = *create.Dedupe
	}
	if dedupe && create.ContentID != nil {
		for _, t := range d.tasks {
			if t.TaskType == create.TaskType && t.ContentID != nil && *t.ContentID == *create.ContentID &&
				(t.Status == store.TaskStatusPending || t.Status == store.TaskStatusProcessing) {
				return clone2(t), false, nil
			}
		}
	}

	t := &store.Task{
		ID:        d.nextTaskID,
		TaskType:  create.TaskType,
		QueueName: queueName,
		ContentID: create.ContentID,
		Payload:   create.Payload,
		Status:    store.TaskStatusPending,
		CreatedAt: d.now(),
	}
	d.tasks[t.ID] = t
	d.nextTaskID++
	return clone2(t), true, nil
}

func (d *Driver) GetTask(ctx context.Context, id int64) (*store.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[id]
	if !ok {
		return nil, nil
	}
	return clone2(t), nil
}

func (d *Driver) ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*store.Task
	for _, t := range d.tasks {
		if find != nil {
			if find.Status != nil && t.Status != *find.Status {
				continue
			}
			if find.TaskType != nil && t.TaskType != *find.TaskType {
				continue
			}
			if find.QueueName != nil && t.QueueName != *find.QueueName {
				continue
			}
			if find.ContentID != nil && (t.ContentID == nil || *t.ContentID != *find.ContentID) {
				continue
			}
		}
		out = append(out, clone2(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if find != nil && find.Limit != nil && len(out) > *find.Limit {
		out = out[:*find.Limit]
	}
	return out, nil
}

func (d *Driver) TryClaimNext(ctx context.Context, queueName string) (*store.Task, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	visibleNow := d.now()
	var candidates []*store.Task
	for _, t := range d.tasks {
		if t.Status != store.TaskStatusPending {
			continue
		}
		if t.CreatedAt.After(visibleNow) {
			continue
		}
		if queueName != "" && t.QueueName != queueName {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, true, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RetryCount != candidates[j].RetryCount {
			return candidates[i].RetryCount < candidates[j].RetryCount
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	t := candidates[0]
	now := d.now()
	t.Status = store.TaskStatusProcessing
	t.StartedAt = &now
	return clone2(t), true, nil
}

func (d *Driver) CompleteTask(ctx context.Context, id int64, success bool, errMsg *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tasks[id]
	if !ok {
		return nil
	}
	now := d.now()
	t.CompletedAt = &now
	if success {
		t.Status = store.TaskStatusCompleted
	} else {
		t.Status = store.TaskStatusFailed
		t.ErrorMessage = errMsg
	}
	return nil
}

func (d *Driver) RetryTask(ctx context.Context, id int64, errMsg *string, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tasks[id]
	if !ok {
		return nil
	}
	t.Status = store.TaskStatusPending
	t.RetryCount++
	t.StartedAt = nil
	t.CompletedAt = nil
	t.ErrorMessage = errMsg
	t.CreatedAt = d.now().Add(delay)
	return nil
}

func (d *Driver) CleanupOldTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	threshold := d.now().Add(-olderThan)
	var n int64
	for id, t := range d.tasks {
		if t.Status == store.TaskStatusCompleted && t.CompletedAt != nil && t.CompletedAt.Before(threshold) {
			delete(d.tasks, id)
			n++
		}
	}
	return n, nil
}

func (d *Driver) Stats(ctx context.Context, recentFailureLimit int) (*store.TaskStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	byQueueStatus := map[string]map[string]int64{}
	var failures []*store.Task
	for _, t := range d.tasks {
		if byQueueStatus[t.QueueName] == nil {
			byQueueStatus[t.QueueName] = map[string]int64{}
		}
		byQueueStatus[t.QueueName][t.Status]++
		if t.Status == store.TaskStatusFailed {
			failures = append(failures, clone2(t))
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].ID > failures[j].ID })
	if len(failures) > recentFailureLimit {
		failures = failures[:recentFailureLimit]
	}
	return &store.TaskStats{ByQueueAndStatus: byQueueStatus, RecentFailures: failures}, nil
}

func (d *Driver) RequeueStaleProcessing(ctx context.Context, threshold time.Duration) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	cutoff := now.Add(-threshold)
	var ids []int64
	for _, t := range d.tasks {
		if t.Status != store.TaskStatusProcessing {
			continue
		}
		ref := t.CreatedAt
		if t.StartedAt != nil {
			ref = *t.StartedAt
		}
		if ref.Before(cutoff) {
			t.Status = store.TaskStatusPending
			t.StartedAt = nil
			t.RetryCount++
			t.CreatedAt = now
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (d *Driver) MoveMisroutedTranscribeTasks(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var n int64
	for _, t := range d.tasks {
		want := store.TaskTypeQueue[t.TaskType]
		if want != "" && t.QueueName != want {
			t.QueueName = want
			n++
		}
	}
	return n, nil
}

// SetTaskQueueName directly rewrites a task's queue_name, bypassing the
// routing table. Test-only: lets watchdog tests set up a misrouted task
// without a production code path to create one.
func (d *Driver) SetTaskQueueName(id int64, queueName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tasks[id]; ok {
		t.QueueName = queueName
	}
}

// -- WatchdogStore --

func (d *Driver) LogEvent(ctx context.Context, event *store.WatchdogEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	event.ID = int64(len(d.events) + 1)
	event.CreatedAt = d.now()
	d.events = append(d.events, event)
	return nil
}

func (d *Driver) RecordRun(ctx context.Context, run *store.WatchdogRun) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	run.ID = int64(len(d.runs) + 1)
	d.runs = append(d.runs, run)
	return nil
}

func (d *Driver) RecentRuns(ctx context.Context, limit int) ([]*store.WatchdogRun, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]*store.WatchdogRun(nil), d.runs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(c *store.Content) *store.Content {
	cp := *c
	return &cp
}

func clone2(t *store.Task) *store.Task {
	cp := *t
	return &cp
}
