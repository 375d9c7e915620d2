package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lookervault/lookervault/types"
)

// PutSession inserts a new session row.
func (s *Store) PutSession(ctx context.Context, sess *types.Session) error {
	if err := sess.Validate(); err != nil {
		return &StorageError{Op: "put_session", Err: err}
	}
	configJSON, metadataJSON, err := sessionJSON(sess)
	if err != nil {
		return &StorageError{Op: "put_session", Err: err}
	}

	return s.withTx(ctx, "put_session", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions
			    (id, kind, status, started_at, completed_at, total_items, error_count, config, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, string(sess.Kind), string(sess.Status),
			formatTime(sess.StartedAt), formatTimePtr(sess.CompletedAt),
			sess.TotalItems, sess.ErrorCount, configJSON, metadataJSON,
		)
		return err
	})
}

// UpdateSession replaces the mutable fields of an existing session.
func (s *Store) UpdateSession(ctx context.Context, sess *types.Session) error {
	if err := sess.Validate(); err != nil {
		return &StorageError{Op: "update_session", Err: err}
	}
	configJSON, metadataJSON, err := sessionJSON(sess)
	if err != nil {
		return &StorageError{Op: "update_session", Err: err}
	}

	return s.withTx(ctx, "update_session", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET status = ?, completed_at = ?, total_items = ?, error_count = ?, config = ?, metadata = ?
			WHERE id = ?`,
			string(sess.Status), formatTimePtr(sess.CompletedAt),
			sess.TotalItems, sess.ErrorCount, configJSON, metadataJSON, sess.ID,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetSession returns one session by id, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, kind, status, started_at, completed_at, total_items, error_count, config, metadata
		FROM sessions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get_session", err)
	}
	return sess, nil
}

// ListSessions returns sessions newest first, optionally filtered by kind.
func (s *Store) ListSessions(ctx context.Context, kind types.SessionKind, limit int) ([]*types.Session, error) {
	query := `
		SELECT id, kind, status, started_at, completed_at, total_items, error_count, config, metadata
		FROM sessions`
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list_sessions", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, wrapErr("list_sessions", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, wrapErr("list_sessions", rows.Err())
}

func sessionJSON(sess *types.Session) (string, string, error) {
	config := sess.Config
	if config == nil {
		config = map[string]any{}
	}
	metadata := sess.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return "", "", err
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", "", err
	}
	return string(configJSON), string(metadataJSON), nil
}

func scanSession(row rowScanner) (*types.Session, error) {
	var sess types.Session
	var kind, status, startedAt, configJSON, metadataJSON string
	var completedAt *string

	if err := row.Scan(&sess.ID, &kind, &status, &startedAt, &completedAt,
		&sess.TotalItems, &sess.ErrorCount, &configJSON, &metadataJSON); err != nil {
		return nil, err
	}

	sess.Kind = types.SessionKind(kind)
	sess.Status = types.SessionStatus(status)
	var err error
	if sess.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if sess.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(configJSON), &sess.Config); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadataJSON), &sess.Metadata); err != nil {
		return nil, err
	}
	return &sess, nil
}
