package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/contentpipe/store"
)

func (d *DB) CreateContent(ctx context.Context, create *store.CreateContent) (*store.Content, bool, error) {
	contentType := create.ContentType
	if contentType == "" {
		contentType = store.ContentTypeUnknown
	}
	metadataJSON, err := marshalMetadata(create.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal content metadata: %w", err)
	}

	query := `
		INSERT INTO content (url, content_type, platform, source, title, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING
		RETURNING ` + contentColumns
	c, err := scanContent(d.db.QueryRowContext(ctx, query, create.URL, contentType, create.Platform, create.Source, create.Title, metadataJSON))
	if err == sql.ErrNoRows {
		existing, getErr := d.GetContentByURL(ctx, create.URL)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create content: %w", err)
	}
	return c, true, nil
}

func (d *DB) GetContent(ctx context.Context, id int64) (*store.Content, error) {
	c, err := scanContent(d.db.QueryRowContext(ctx, contentSelect+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content %d: %w", id, err)
	}
	return c, nil
}

func (d *DB) GetContentByURL(ctx context.Context, url string) (*store.Content, error) {
	c, err := scanContent(d.db.QueryRowContext(ctx, contentSelect+" WHERE url = ?", url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content by url: %w", err)
	}
	return c, nil
}

func (d *DB) ListContent(ctx context.Context, find *store.FindContent) ([]*store.Content, error) {
	query := contentSelect + ` WHERE 1=1`
	var args []interface{}

	if find != nil {
		if find.ID != nil {
			query += " AND id = ?"
			args = append(args, *find.ID)
		}
		if find.URL != nil {
			query += " AND url = ?"
			args = append(args, *find.URL)
		}
		if find.Status != nil {
			query += " AND status = ?"
			args = append(args, *find.Status)
		}
		if find.ContentType != nil {
			query += " AND content_type = ?"
			args = append(args, *find.ContentType)
		}
		if find.CheckedOutBy != nil {
			query += " AND checked_out_by = ?"
			args = append(args, *find.CheckedOutBy)
		}
	}
	query += " ORDER BY id"
	if find != nil && find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}
	defer rows.Close()

	var out []*store.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) UpdateContent(ctx context.Context, update *store.UpdateContent) (*store.Content, error) {
	var sets []string
	var args []interface{}

	add := func(col string, val interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if update.URL != nil {
		add("url", *update.URL)
	}
	if update.ContentType != nil {
		add("content_type", *update.ContentType)
	}
	if update.Platform != nil {
		add("platform", *update.Platform)
	}
	if update.Source != nil {
		add("source", *update.Source)
	}
	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.ClearError {
		add("error_message", nil)
	} else if update.ErrorMessage != nil {
		add("error_message", *update.ErrorMessage)
	}
	if update.RetryCount != nil {
		add("retry_count", *update.RetryCount)
	}
	if update.Metadata != nil {
		metadataJSON, err := marshalMetadata(update.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal content metadata: %w", err)
		}
		add("metadata", metadataJSON)
	}
	if update.ProcessedAt != nil {
		add("processed_at", *update.ProcessedAt)
	}
	add("updated_at", nowUTC())

	if len(sets) == 0 {
		return d.GetContent(ctx, update.ID)
	}

	query := fmt.Sprintf(`UPDATE content SET %s WHERE id = ? RETURNING %s`, strings.Join(sets, ", "), contentColumns)
	args = append(args, update.ID)

	c, err := scanContent(d.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update content %d: %w", update.ID, err)
	}
	return c, nil
}

// CheckoutBatch claims candidates with a single UPDATE ... WHERE id IN
// (subquery) statement. SQLite serializes writers at the connection-pool
// level (see NewDB), so there is no SKIP LOCKED race to guard against here.
func (d *DB) CheckoutBatch(ctx context.Context, workerID string, contentType *string, limit int) ([]int64, error) {
	query := `
		UPDATE content SET
			checked_out_by = ?,
			checked_out_at = ?,
			status = 'processing',
			updated_at = ?
		WHERE id IN (
			SELECT id FROM content
			WHERE status = 'new' AND checked_out_by IS NULL
	`
	now := nowUTC()
	args := []interface{}{workerID, now, now}
	if contentType != nil {
		query += " AND content_type = ?"
		args = append(args, *contentType)
	}
	query += " ORDER BY retry_count, created_at LIMIT ?) RETURNING id"
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to check out content batch: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan checked out content id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *DB) CheckinContent(ctx context.Context, id int64, workerID string, status string, errMsg *string) (bool, error) {
	query := `
		UPDATE content SET
			status = ?,
			checked_out_by = NULL,
			checked_out_at = NULL,
			error_message = CASE WHEN ? = 'failed' THEN ? ELSE error_message END,
			retry_count = CASE WHEN ? = 'failed' THEN retry_count + 1 ELSE retry_count END,
			processed_at = CASE WHEN ? = 'completed' THEN ? ELSE processed_at END,
			updated_at = ?
		WHERE id = ? AND checked_out_by = ?
	`
	now := nowUTC()
	res, err := d.db.ExecContext(ctx, query, status, status, errMsg, status, status, now, now, id, workerID)
	if err != nil {
		return false, fmt.Errorf("failed to check in content %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count checkin rows affected: %w", err)
	}
	return n > 0, nil
}

func (d *DB) ReleaseStaleCheckouts(ctx context.Context, timeout time.Duration) (int64, error) {
	query := `
		UPDATE content SET
			checked_out_by = NULL,
			checked_out_at = NULL,
			status = 'new',
			retry_count = retry_count + 1,
			updated_at = ?
		WHERE checked_out_by IS NOT NULL AND checked_out_at < ?
	`
	now := nowUTC()
	res, err := d.db.ExecContext(ctx, query, now, now.Add(-timeout))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale checkouts: %w", err)
	}
	return res.RowsAffected()
}

func (d *DB) CheckoutCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT checked_out_by, COUNT(*) FROM content
		WHERE checked_out_by IS NOT NULL
		GROUP BY checked_out_by
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute checkout counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var worker string
		var count int64
		if err := rows.Scan(&worker, &count); err != nil {
			return nil, fmt.Errorf("failed to scan checkout count: %w", err)
		}
		out[worker] = count
	}
	return out, rows.Err()
}

const contentColumns = `id, url, content_type, platform, source, title, status, error_message,
		retry_count, checked_out_by, checked_out_at, metadata, created_at, updated_at, processed_at`

const contentSelect = `SELECT ` + contentColumns + ` FROM content`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContent(row rowScanner) (*store.Content, error) {
	var c store.Content
	var platform, source, title, errorMessage, checkedOutBy sql.NullString
	var checkedOutAt, processedAt sql.NullTime
	var metadataJSON []byte

	err := row.Scan(
		&c.ID, &c.URL, &c.ContentType, &platform, &source, &title, &c.Status, &errorMessage,
		&c.RetryCount, &checkedOutBy, &checkedOutAt, &metadataJSON, &c.CreatedAt, &c.UpdatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}
	if platform.Valid {
		c.Platform = &platform.String
	}
	if source.Valid {
		c.Source = &source.String
	}
	if title.Valid {
		c.Title = &title.String
	}
	if errorMessage.Valid {
		c.ErrorMessage = &errorMessage.String
	}
	if checkedOutBy.Valid {
		c.CheckedOutBy = &checkedOutBy.String
	}
	if checkedOutAt.Valid {
		c.CheckedOutAt = &checkedOutAt.Time
	}
	if processedAt.Valid {
		c.ProcessedAt = &processedAt.Time
	}
	c.Metadata = map[string]any{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content metadata: %w", err)
		}
	}
	return &c, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}
