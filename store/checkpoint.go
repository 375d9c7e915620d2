package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lookervault/lookervault/types"
)

// PutCheckpoint inserts the checkpoint when its ID is zero, otherwise
// updates the existing row. The assigned ID is written back. item_count
// for a given checkpoint only ever grows, so updates are monotonic.
func (s *Store) PutCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return &StorageError{Op: "put_checkpoint", Err: err}
	}

	return s.withTx(ctx, "put_checkpoint", func(tx *sql.Tx) error {
		var sessionID *string
		if cp.SessionID != "" {
			sessionID = &cp.SessionID
		}
		var errMsg *string
		if cp.ErrorMessage != "" {
			errMsg = &cp.ErrorMessage
		}

		if cp.ID == 0 {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO checkpoints
				    (session_id, content_type, state, started_at, completed_at, item_count, error_message)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				sessionID, int(cp.ContentType), string(stateJSON),
				formatTime(cp.StartedAt), formatTimePtr(cp.CompletedAt),
				cp.ItemCount, errMsg,
			)
			if err != nil {
				return err
			}
			cp.ID, err = res.LastInsertId()
			return err
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE checkpoints
			SET state = ?, completed_at = ?, item_count = ?, error_message = ?
			WHERE id = ?`,
			string(stateJSON), formatTimePtr(cp.CompletedAt), cp.ItemCount, errMsg, cp.ID,
		)
		return err
	})
}

// LatestIncompleteCheckpoint returns the most recent checkpoint for the
// content type whose completed_at is null, optionally scoped to a session.
// Returns ErrNotFound when there is nothing to resume.
func (s *Store) LatestIncompleteCheckpoint(ctx context.Context, ct types.ContentType, sessionID string) (*types.Checkpoint, error) {
	query := `
		SELECT id, session_id, content_type, state, started_at, completed_at, item_count, error_message
		FROM checkpoints
		WHERE content_type = ? AND completed_at IS NULL`
	args := []any{int(ct)}
	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY id DESC LIMIT 1"

	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get_checkpoint", err)
	}
	return cp, nil
}

// CheckpointsForSession returns every checkpoint of a session, oldest first.
func (s *Store) CheckpointsForSession(ctx context.Context, sessionID string) ([]*types.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, content_type, state, started_at, completed_at, item_count, error_message
		FROM checkpoints WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, wrapErr("list_checkpoints", err)
	}
	defer rows.Close()

	var cps []*types.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, wrapErr("list_checkpoints", err)
		}
		cps = append(cps, cp)
	}
	return cps, wrapErr("list_checkpoints", rows.Err())
}

func scanCheckpoint(row rowScanner) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	var sessionID, completedAt, errMsg *string
	var ct int
	var stateJSON, startedAt string

	if err := row.Scan(&cp.ID, &sessionID, &ct, &stateJSON, &startedAt, &completedAt, &cp.ItemCount, &errMsg); err != nil {
		return nil, err
	}

	cp.ContentType = types.ContentType(ct)
	if sessionID != nil {
		cp.SessionID = *sessionID
	}
	if errMsg != nil {
		cp.ErrorMessage = *errMsg
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, err
	}
	var err error
	if cp.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if cp.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	return &cp, nil
}
