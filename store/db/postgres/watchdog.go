package postgres

import (
	"context"
	"fmt"

	"github.com/hrygo/contentpipe/store"
)

func (d *DB) LogEvent(ctx context.Context, event *store.WatchdogEvent) error {
	query := `
		INSERT INTO watchdog_event (run_id, event_type, detail, row_count)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := d.db.QueryRowContext(ctx, query, event.RunID, event.EventType, event.Detail, event.RowCount).
		Scan(&event.ID, &event.CreatedAt); err != nil {
		return fmt.Errorf("failed to log watchdog event: %w", err)
	}
	return nil
}

func (d *DB) RecordRun(ctx context.Context, run *store.WatchdogRun) error {
	query := `
		INSERT INTO watchdog_run (run_id, started_at, completed_at, stale_reclaimed, checks_released,
			tasks_cleaned_up, transcribe_moved, alert_fired)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			stale_reclaimed = EXCLUDED.stale_reclaimed,
			checks_released = EXCLUDED.checks_released,
			tasks_cleaned_up = EXCLUDED.tasks_cleaned_up,
			transcribe_moved = EXCLUDED.transcribe_moved,
			alert_fired = EXCLUDED.alert_fired
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, query,
		run.RunID, run.StartedAt, run.CompletedAt, run.StaleReclaimed, run.ChecksReleased,
		run.TasksCleanedUp, run.TranscribeMoved, run.AlertFired,
	).Scan(&run.ID); err != nil {
		return fmt.Errorf("failed to record watchdog run: %w", err)
	}
	return nil
}

func (d *DB) RecentRuns(ctx context.Context, limit int) ([]*store.WatchdogRun, error) {
	query := `
		SELECT id, run_id, started_at, completed_at, stale_reclaimed, checks_released,
			tasks_cleaned_up, transcribe_moved, alert_fired
		FROM watchdog_run
		ORDER BY completed_at DESC
		LIMIT $1
	`
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchdog runs: %w", err)
	}
	defer rows.Close()

	var out []*store.WatchdogRun
	for rows.Next() {
		var r store.WatchdogRun
		if err := rows.Scan(&r.ID, &r.RunID, &r.StartedAt, &r.CompletedAt, &r.StaleReclaimed,
			&r.ChecksReleased, &r.TasksCleanedUp, &r.TranscribeMoved, &r.AlertFired); err != nil {
			return nil, fmt.Errorf("failed to scan watchdog run: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
