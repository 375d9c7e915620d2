package store

import (
	"context"
	"database/sql"

	"github.com/lookervault/lookervault/types"
)

// DLQAdd durably records a failed restoration item. Entries are unique on
// (session_id, content_id): retrying an already-present item bumps
// retry_count and refreshes the diagnostic instead of duplicating the row.
func (s *Store) DLQAdd(ctx context.Context, e *types.DLQEntry) error {
	failedAt := e.FailedAt
	if failedAt.IsZero() {
		failedAt = now()
	}
	return s.withTx(ctx, "dlq_add", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO dlq_entries
			    (session_id, content_type, content_id, error_type, error_message, retry_count, failed_at, content_data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, content_id) DO UPDATE SET
			    error_type    = excluded.error_type,
			    error_message = excluded.error_message,
			    retry_count   = dlq_entries.retry_count + 1,
			    failed_at     = excluded.failed_at`,
			e.SessionID, int(e.ContentType), e.ContentID,
			e.ErrorType, e.ErrorMessage, e.RetryCount, formatTime(failedAt), e.ContentData,
		)
		if err != nil {
			return err
		}
		e.ID, err = res.LastInsertId()
		return err
	})
}

// DLQFilter narrows a DLQList query. Zero values match everything.
type DLQFilter struct {
	SessionID   string
	ContentType types.ContentType
	ErrorType   string
	Limit       int
}

// DLQList returns dead-letter entries, newest failures first. Payloads are
// included: DLQ rows are few and always retried whole.
func (s *Store) DLQList(ctx context.Context, filter DLQFilter) ([]*types.DLQEntry, error) {
	query := `
		SELECT id, session_id, content_type, content_id, error_type, error_message, retry_count, failed_at, content_data
		FROM dlq_entries WHERE 1=1`
	var args []any
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.ContentType != 0 {
		query += " AND content_type = ?"
		args = append(args, int(filter.ContentType))
	}
	if filter.ErrorType != "" {
		query += " AND error_type = ?"
		args = append(args, filter.ErrorType)
	}
	query += " ORDER BY failed_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("dlq_list", err)
	}
	defer rows.Close()

	var entries []*types.DLQEntry
	for rows.Next() {
		e, err := scanDLQEntry(rows)
		if err != nil {
			return nil, wrapErr("dlq_list", err)
		}
		entries = append(entries, e)
	}
	return entries, wrapErr("dlq_list", rows.Err())
}

// DLQGet returns one dead-letter entry by row id, or ErrNotFound.
func (s *Store) DLQGet(ctx context.Context, id int64) (*types.DLQEntry, error) {
	e, err := scanDLQEntry(s.db.QueryRowContext(ctx, `
		SELECT id, session_id, content_type, content_id, error_type, error_message, retry_count, failed_at, content_data
		FROM dlq_entries WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("dlq_get", err)
	}
	return e, nil
}

// DLQTouch bumps the retry count of one entry after a failed retry.
func (s *Store) DLQTouch(ctx context.Context, id int64) error {
	return s.withTx(ctx, "dlq_touch", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE dlq_entries SET retry_count = retry_count + 1, failed_at = ? WHERE id = ?",
			formatTime(now()), id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DLQRemove deletes one dead-letter entry by row id.
func (s *Store) DLQRemove(ctx context.Context, id int64) error {
	return s.withTx(ctx, "dlq_remove", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM dlq_entries WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DLQClear deletes all dead-letter entries, optionally for one session.
// Returns the number of rows removed.
func (s *Store) DLQClear(ctx context.Context, sessionID string) (int64, error) {
	var cleared int64
	err := s.withTx(ctx, "dlq_clear", func(tx *sql.Tx) error {
		query := "DELETE FROM dlq_entries"
		var args []any
		if sessionID != "" {
			query += " WHERE session_id = ?"
			args = append(args, sessionID)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		cleared, err = res.RowsAffected()
		return err
	})
	return cleared, err
}

func scanDLQEntry(row rowScanner) (*types.DLQEntry, error) {
	var e types.DLQEntry
	var ct int
	var failedAt string
	if err := row.Scan(&e.ID, &e.SessionID, &ct, &e.ContentID,
		&e.ErrorType, &e.ErrorMessage, &e.RetryCount, &failedAt, &e.ContentData); err != nil {
		return nil, err
	}
	e.ContentType = types.ContentType(ct)
	var err error
	if e.FailedAt, err = parseTime(failedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
