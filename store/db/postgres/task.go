package postgres

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
		VALUES ($1, $2, $3, $4)
		RETURNING id, task_type, queue_name, content_id, payload, status, retry_count, error_message,
			created_at, started_at, completed_at
	`
	t, err := scanTask(d.db.QueryRowContext(ctx, insert, create.TaskType, queueName, create.ContentID, payloadJSON))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create task: %w", err)
	}
	return t, true, nil
}

func (d *DB) findDedupTask(ctx context.Context, taskType string, contentID int64, queueName string) (*store.Task, error) {
	query := taskSelect + `
		WHERE task_type = $1 AND content_id = $2 AND queue_name = $3 AND status IN ('pending', 'processing')
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
	t, err := scanTask(d.db.QueryRowContext(ctx, taskSelect+" WHERE id = $1", id))
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
	argIndex := 1

	if find != nil {
		if find.Status != nil {
			query += fmt.Sprintf(" AND status = $%d", argIndex)
			args = append(args, *find.Status)
			argIndex++
		}
		if find.TaskType != nil {
			query += fmt.Sprintf(" AND task_type = $%d", argIndex)
			args = append(args, *find.TaskType)
			argIndex++
		}
		if find.QueueName != nil {
			query += fmt.Sprintf(" AND queue_name = $%d", argIndex)
			args = append(args, *find.QueueName)
			argIndex++
		}
		if find.ContentID != nil {
			query += fmt.Sprintf(" AND content_id = $%d", argIndex)
			args = append(args, *find.ContentID)
			argIndex++
		}
	}
	query += " ORDER BY id"
	if find != nil && find.Limit != nil {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, *find.Limit)
		argIndex++
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

// TryClaimNext selects the best pending candidate, then attempts a
// conditional UPDATE against it. If the row was already claimed by a
// concurrent worker between the SELECT and the UPDATE, zero rows are
// affected and ok is false with a nil task; the caller
// (queue.Service.Dequeue) retries. No candidate at all yields ok true with
// a nil task.
func (d *DB) TryClaimNext(ctx context.Context, queueName string) (*store.Task, bool, error) {
	selectQuery := `
		SELECT id FROM processing_task
		WHERE status = 'pending' AND created_at <= now()
	`
	var args []interface{}
	if queueName != "" {
		selectQuery += " AND queue_name = $1"
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

	updateQuery := `
		UPDATE processing_task SET status = 'processing', started_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	res, err := d.db.ExecContext(ctx, updateQuery, id)
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
	query := `
		UPDATE processing_task SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1
	`
	if _, err := d.db.ExecContext(ctx, query, id, status, errMsg); err != nil {
		return fmt.Errorf("failed to complete task %d: %w", id, err)
	}
	return nil
}

func (d *DB) RetryTask(ctx context.Context, id int64, errMsg *string, delay time.Duration) error {
	query := `
		UPDATE processing_task SET
			status = 'pending',
			retry_count = retry_count + 1,
			started_at = NULL,
			completed_at = NULL,
			error_message = $2,
			created_at = now() + ($3 * INTERVAL '1 second')
		WHERE id = $1
	`
	if _, err := d.db.ExecContext(ctx, query, id, errMsg, delay.Seconds()); err != nil {
		return fmt.Errorf("failed to retry task %d: %w", id, err)
	}
	return nil
}

func (d *DB) CleanupOldTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM processing_task
		WHERE status = 'completed' AND completed_at < $1
	`
	res, err := d.db.ExecContext(ctx, query, time.Now().UTC().Add(-olderThan))
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
		WHERE status = 'failed' ORDER BY completed_at DESC NULLS LAST LIMIT $1
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
	cutoff := time.Now().UTC().Add(-threshold)
	query := `
		UPDATE processing_task SET
			status = 'pending',
			started_at = NULL,
			retry_count = retry_count + 1,
			created_at = now()
		WHERE status = 'processing' AND COALESCE(started_at, created_at) < $1
		RETURNING id
	`
	rows, err := d.db.QueryContext(ctx, query, cutoff)
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
			UPDATE processing_task SET queue_name = $1 WHERE task_type = $2 AND queue_name != $1
		`, wantQueue, taskType)
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

const taskSelect = `
	SELECT id, task_type, queue_name, content_id, payload, status, retry_count, error_message,
		created_at, started_at, completed_at
	FROM processing_task
`

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
