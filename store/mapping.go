package store

import (
	"context"
	"database/sql"

	"github.com/lookervault/lookervault/types"
)

// PutIDMapping records a source-to-destination translation. Re-recording
// the same (type, source, destination URL) key replaces the destination id,
// which keeps retries idempotent.
func (s *Store) PutIDMapping(ctx context.Context, m *types.IDMapping) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}
	return s.withTx(ctx, "put_id_mapping", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO id_mappings
			    (content_type, source_id, destination_id, source_instance_url, destination_instance_url, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(content_type, source_id, destination_instance_url) DO UPDATE SET
			    destination_id = excluded.destination_id,
			    source_instance_url = excluded.source_instance_url`,
			int(m.ContentType), m.SourceID, m.DestinationID,
			m.SourceInstanceURL, m.DestinationInstanceURL, formatTime(createdAt),
		)
		return err
	})
}

// DestinationID returns the mapped destination id for a source id on the
// given destination instance, or ErrNotFound.
func (s *Store) DestinationID(ctx context.Context, ct types.ContentType, sourceID, destinationURL string) (string, error) {
	var destID string
	row := s.db.QueryRowContext(ctx, `
		SELECT destination_id FROM id_mappings
		WHERE content_type = ? AND source_id = ? AND destination_instance_url = ?`,
		int(ct), sourceID, destinationURL)
	if err := row.Scan(&destID); err == sql.ErrNoRows {
		return "", ErrNotFound
	} else if err != nil {
		return "", wrapErr("destination_id", err)
	}
	return destID, nil
}

// CountIDMappings returns the number of mapping rows for a destination
// instance.
func (s *Store) CountIDMappings(ctx context.Context, destinationURL string) (int64, error) {
	var n int64
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM id_mappings WHERE destination_instance_url = ?", destinationURL)
	if err := row.Scan(&n); err != nil {
		return 0, wrapErr("count_id_mappings", err)
	}
	return n, nil
}
