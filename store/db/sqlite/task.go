package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hrygo/contentpipe/store"
)

func (d *DB) CreateTask(ctx context.Context, create *store.CreateTask) (*store.Task, bool, error) {
	queueName := create.QueueName
	if queueName == "" {
		var ok bool
		queueName, ok = store.TaskTypeQueue[create.TaskType]
		if !ok {
			return nil, false, fmt.Errorf("unknown task type %q", create.TaskType)
		}
	}

	dedupe := store.DedupEligible[create.TaskType]
	if create.Dedupe != nil {
		dedupe = *create.Dedupe
	}
	if dedupe && create.ContentID != nil {
		existing, err := d.findDedupTask(ctx, create.TaskType, *create.ContentID, queueName)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	payloadJSON, err := marshalMetadata(create.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	insert := `
		INSERT INTO processing_task (task_type, queue_name, content_id, payload)
		VALUES (?, ?, ?, ?)
		RETURNING ` + taskColumns
	t, err := scanTask(d.db.QueryRowContext(ctx, insert, create.TaskType, queueName, create.ContentID, payloadJSON))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create task: %w", err)
	}
	return t, true, nil
}

func (d *DB) findDedupTask(ctx context.Context, taskType string, contentID int64, queueName string) (*store.Task, error) {
	query := taskSelect + `
		WHERE task_type = ? AND content_id = ? AND queue_name = ? AND status IN ('pending', 'processing')
		ORDER BY created_at DESC
		LIMIT 1
	`
	t, err := scanTask(d.db.QueryRowContext(ctx, query, taskType, contentID, queueName))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up dedup task: %w", err)
	}
	return t, nil
}

func (d *DB) GetTask(ctx context.Context, id int64) (*store.Task, error) {
	t, err := scanTask(d.db.QueryRowContext(ctx, taskSelect+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return t, nil
}

func (d *DB) ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error) {
	query := taskSelect + ` WHERE 1=1`
	var args []interface{}

	if find != nil {
		if find.Status != nil {
			query += " AND status = ?"
			args = append(args, *find.Status)
		}
		if find.TaskType != nil {
			query += " AND task_type = ?"
			args = append(args, *find.TaskType)
		}
		if find.QueueName != nil {
			query += " AND queue_name = ?"
			args = append(args, *find.QueueName)
		}
		if find.ContentID != nil {
			query += " AND content_id = ?"
			args = append(args, *find.ContentID)
		}
	}
	query += " ORDER BY id"
	if find != nil && find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []*store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d *DB) TryClaimNext(ctx context.Context, queueName string) (*store.Task, bool, error) {
	selectQuery := `SELECT id FROM processing_task WHERE status = 'pending' AND created_at <= ?`
	args := []interface{}{nowUTC()}
	if queueName != "" {
		selectQuery += " AND queue_name = ?"
		args = append(args, queueName)
	}
	selectQuery += " ORDER BY retry_count, created_at LIMIT 1"

	var id int64
	err := d.db.QueryRowContext(ctx, selectQuery, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to select candidate task: %w", err)
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE processing_task SET status = 'processing', started_at = ?
		WHERE id = ? AND status = 'pending'
	`, nowUTC(), id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to count claim rows affected: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}

	task, err := d.GetTask(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func (d *DB) CompleteTask(ctx context.Context, id int64, success bool, errMsg *string) error {
	status := store.TaskStatusCompleted
	if !success {
		status = store.TaskStatusFailed
	}
	if _, err := d.db.ExecContext(ctx, `
		UPDATE processing_task SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, status, errMsg, nowUTC(), id); err != nil {
		return fmt.Errorf("failed to complete task %d: %w", id, err)
	}
	return nil
}

func (d *DB) RetryTask(ctx context.Context, id int64, errMsg *string, delay time.Duration) error {
	if _, err := d.db.ExecContext(ctx, `
		UPDATE processing_task SET
			status = 'pending',
			retry_count = retry_count + 1,
			started_at = NULL,
			completed_at = NULL,
			error_message = ?,
			created_at = ?
		WHERE id = ?
	`, errMsg, nowUTC().Add(delay), id); err != nil {
		return fmt.Errorf("failed to retry task %d: %w", id, err)
	}
	return nil
}

func (d *DB) CleanupOldTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM processing_task
		WHERE status = 'completed' AND completed_at < ?
	`, nowUTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old tasks: %w", err)
	}
	return res.RowsAffected()
}

func (d *DB) Stats(ctx context.Context, recentFailureLimit int) (*store.TaskStats, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT queue_name, status, COUNT(*) FROM processing_task GROUP BY queue_name, status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute task stats: %w", err)
	}
	defer rows.Close()

	byQueueStatus := map[string]map[string]int64{}
	for rows.Next() {
		var queueName, status string
		var count int64
		if err := rows.Scan(&queueName, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan task stat row: %w", err)
		}
		if byQueueStatus[queueName] == nil {
			byQueueStatus[queueName] = map[string]int64{}
		}
		byQueueStatus[queueName][status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	failRows, err := d.db.QueryContext(ctx, taskSelect+`
		WHERE status = 'failed' ORDER BY completed_at DESC LIMIT ?
	`, recentFailureLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent task failures: %w", err)
	}
	defer failRows.Close()

	var failures []*store.Task
	for failRows.Next() {
		t, err := scanTask(failRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failed task: %w", err)
		}
		failures = append(failures, t)
	}
	if err := failRows.Err(); err != nil {
		return nil, err
	}

	return &store.TaskStats{ByQueueAndStatus: byQueueStatus, RecentFailures: failures}, nil
}

func (d *DB) RequeueStaleProcessing(ctx context.Context, threshold time.Duration) ([]int64, error) {
	now := nowUTC()
	cutoff := now.Add(-threshold)
	rows, err := d.db.QueryContext(ctx, `
		UPDATE processing_task SET
			status = 'pending',
			started_at = NULL,
			retry_count = retry_count + 1,
			created_at = ?
		WHERE status = 'processing' AND COALESCE(started_at, created_at) < ?
		RETURNING id
	`, now, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue stale processing tasks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan requeued task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *DB) MoveMisroutedTranscribeTasks(ctx context.Context) (int64, error) {
	var total int64
	for taskType, wantQueue := range store.TaskTypeQueue {
		res, err := d.db.ExecContext(ctx, `
			UPDATE processing_task SET queue_name = ? WHERE task_type = ? AND queue_name != ?
		`, wantQueue, taskType, wantQueue)
		if err != nil {
			return total, fmt.Errorf("failed to move misrouted %s tasks: %w", taskType, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to count moved %s tasks: %w", taskType, err)
		}
		total += n
	}
	return total, nil
}

const taskColumns = `id, task_type, queue_name, content_id, payload, status, retry_count, error_message,
		created_at, started_at, completed_at`

const taskSelect = `SELECT ` + taskColumns + ` FROM processing_task`

func scanTask(row rowScanner) (*store.Task, error) {
	var t store.Task
	var contentID sql.NullInt64
	var errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime
	var payloadJSON []byte

	err := row.Scan(
		&t.ID, &t.TaskType, &t.QueueName, &contentID, &payloadJSON, &t.Status, &t.RetryCount,
		&errorMessage, &t.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if contentID.Valid {
		t.ContentID = &contentID.Int64
	}
	if errorMessage.Valid {
		t.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	t.Payload = map[string]any{}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &t.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task payload: %w", err)
		}
	}
	return &t, nil
}
