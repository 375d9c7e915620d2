package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lookervault/lookervault/types"
)

// metaColumns are the content_items columns read for metadata-only
// queries. content_data is excluded so the payload bytes are never
// scanned unless the caller asks for them.
const metaColumns = "id, content_type, name, owner_id, owner_email, created_at, updated_at, synced_at, deleted_at, content_size"

// PutContent upserts the item by id. All metadata columns are replaced on
// conflict; synced_at is set to now when unset. Re-extraction of an
// unchanged item is idempotent.
func (s *Store) PutContent(ctx context.Context, item *types.ContentItem) error {
	if err := item.Validate(); err != nil {
		return &StorageError{Op: "put_content", Err: err}
	}
	if item.SyncedAt.IsZero() {
		item.SyncedAt = now()
	}

	return s.withTx(ctx, "put_content", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO content_items
			    (id, content_type, name, owner_id, owner_email,
			     created_at, updated_at, synced_at, deleted_at,
			     content_size, content_data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			    content_type = excluded.content_type,
			    name         = excluded.name,
			    owner_id     = excluded.owner_id,
			    owner_email  = excluded.owner_email,
			    created_at   = excluded.created_at,
			    updated_at   = excluded.updated_at,
			    synced_at    = excluded.synced_at,
			    deleted_at   = excluded.deleted_at,
			    content_size = excluded.content_size,
			    content_data = excluded.content_data`,
			item.ID, int(item.ContentType), item.Name, item.OwnerID, item.OwnerEmail,
			formatTime(item.CreatedAt), formatTime(item.UpdatedAt), formatTime(item.SyncedAt),
			formatTimePtr(item.DeletedAt), item.ContentSize, item.ContentData,
		)
		return err
	})
}

// GetContent returns the full item, including the payload, or ErrNotFound.
func (s *Store) GetContent(ctx context.Context, id string) (*types.ContentItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+metaColumns+", content_data FROM content_items WHERE id = ?", id)

	item, err := scanContentItem(row, true)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get_content", err)
	}
	return item, nil
}

// ListOptions filters a ListContent query.
type ListOptions struct {
	IncludeDeleted bool
	// WithData loads content payloads; the default is metadata only.
	WithData bool
	Limit    int
	Offset   int
}

// ListContent returns items of one type ordered by updated_at descending.
func (s *Store) ListContent(ctx context.Context, ct types.ContentType, opts ListOptions) ([]*types.ContentItem, error) {
	cols := metaColumns
	if opts.WithData {
		cols += ", content_data"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM content_items WHERE content_type = ?", cols)
	args := []any{int(ct)}
	if !opts.IncludeDeleted {
		b.WriteString(" AND deleted_at IS NULL")
	}
	b.WriteString(" ORDER BY updated_at DESC")
	if opts.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			b.WriteString(" OFFSET ?")
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, wrapErr("list_content", err)
	}
	defer rows.Close()

	var items []*types.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows, opts.WithData)
		if err != nil {
			return nil, wrapErr("list_content", err)
		}
		items = append(items, item)
	}
	return items, wrapErr("list_content", rows.Err())
}

// ActiveIDs returns the ids of all non-deleted items of one type.
func (s *Store) ActiveIDs(ctx context.Context, ct types.ContentType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM content_items WHERE content_type = ? AND deleted_at IS NULL", int(ct))
	if err != nil {
		return nil, wrapErr("active_ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("active_ids", err)
		}
		ids = append(ids, id)
	}
	return ids, wrapErr("active_ids", rows.Err())
}

// SoftDelete marks the item deleted, leaving its payload intact.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	return s.withTx(ctx, "soft_delete", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE content_items SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
			formatTime(now()), id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			// Already deleted or absent; both are acceptable here.
			var exists int
			row := tx.QueryRowContext(ctx, "SELECT 1 FROM content_items WHERE id = ?", id)
			if err := row.Scan(&exists); err == sql.ErrNoRows {
				return ErrNotFound
			}
		}
		return nil
	})
}

// SoftDeleteMissing marks every active item of type ct whose id is not in
// seen as deleted. Used by incremental extraction to reflect removals.
// Returns the ids it deleted.
func (s *Store) SoftDeleteMissing(ctx context.Context, ct types.ContentType, seen map[string]struct{}) ([]string, error) {
	active, err := s.ActiveIDs(ctx, ct)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range active {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	deletedAt := formatTime(now())
	err = s.withTx(ctx, "soft_delete_missing", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"UPDATE content_items SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range missing {
			if _, err := stmt.ExecContext(ctx, deletedAt, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return missing, nil
}

// HardDeleteOlderThan purges rows soft-deleted earlier than now minus the
// retention duration. Returns the number of rows removed.
func (s *Store) HardDeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := formatTime(now().Add(-retention))
	var purged int64
	err := s.withTx(ctx, "hard_delete", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM content_items WHERE deleted_at IS NOT NULL AND deleted_at < ?", cutoff)
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	})
	return purged, err
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentItem(row rowScanner, withData bool) (*types.ContentItem, error) {
	var item types.ContentItem
	var ct int
	var createdAt, updatedAt, syncedAt string
	var deletedAt *string

	dest := []any{
		&item.ID, &ct, &item.Name, &item.OwnerID, &item.OwnerEmail,
		&createdAt, &updatedAt, &syncedAt, &deletedAt, &item.ContentSize,
	}
	if withData {
		dest = append(dest, &item.ContentData)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	item.ContentType = types.ContentType(ct)
	var err error
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if item.SyncedAt, err = parseTime(syncedAt); err != nil {
		return nil, err
	}
	if item.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return nil, err
	}
	return &item, nil
}
