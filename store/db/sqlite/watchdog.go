package sqlite

import (
	"context"
	"fmt"

	"github.com/hrygo/contentpipe/store"
)

func (d *DB) LogEvent(ctx context.Context, event *store.WatchdogEvent) error {
	query := `
		INSERT INTO watchdog_event (run_id, event_type, detail, row_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := nowUTC()
	res, err := d.db.ExecContext(ctx, query, event.RunID, event.EventType, event.Detail, event.RowCount, now)
	if err != nil {
		return fmt.Errorf("failed to log watchdog event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read watchdog event id: %w", err)
	}
	event.ID = id
	event.CreatedAt = now
	return nil
}

func (d *DB) RecordRun(ctx context.Context, run *store.WatchdogRun) error {
	query := `
		INSERT INTO watchdog_run (run_id, started_at, completed_at, stale_reclaimed, checks_released,
			tasks_cleaned_up, transcribe_moved, alert_fired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			completed_at = excluded.completed_at,
			stale_reclaimed = excluded.stale_reclaimed,
			checks_released = excluded.checks_released,
			tasks_cleaned_up = excluded.tasks_cleaned_up,
			transcribe_moved = excluded.transcribe_moved,
			alert_fired = excluded.alert_fired
	`
	if _, err := d.db.ExecContext(ctx, query,
		run.RunID, run.StartedAt, run.CompletedAt, run.StaleReclaimed, run.ChecksReleased,
		run.TasksCleanedUp, run.TranscribeMoved, run.AlertFired,
	); err != nil {
		return fmt.Errorf("failed to record watchdog run: %w", err)
	}
	return d.db.QueryRowContext(ctx, `SELECT id FROM watchdog_run WHERE run_id = ?`, run.RunID).Scan(&run.ID)
}

func (d *DB) RecentRuns(ctx context.Context, limit int) ([]*store.WatchdogRun, error) {
	query := `
		SELECT id, run_id, started_at, completed_at, stale_reclaimed, checks_released,
			tasks_cleaned_up, transcribe_moved, alert_fired
		FROM watchdog_run
		ORDER BY completed_at DESC
		LIMIT ?
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
