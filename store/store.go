package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import for register side-effects.

	"github.com/lookervault/lookervault/types"
)

// busyTimeout is how long a connection waits for another writer before
// failing the statement.
const busyTimeout = 60 * time.Second

// timeLayout is the stored timestamp format: RFC 3339 UTC with
// nanosecond precision.
const timeLayout = time.RFC3339Nano

// Store owns the backing SQLite file. All readers and writers go through
// it. Safe for concurrent use: database/sql checks one connection out per
// operation, so connections are never shared across goroutines, and every
// write runs inside an immediate transaction so lock acquisition happens
// before the first statement rather than on a mid-transaction upgrade.
type Store struct {
	db   *sql.DB
	path string
}

// Options tunes the store at open time.
type Options struct {
	// MaxConns bounds the connection pool. Zero means workers+1 is chosen
	// by the caller; the store defaults to 16.
	MaxConns int
}

// Open opens (creating if needed) the store file at path and applies
// migrations. The WAL journal allows concurrent readers alongside the
// single writer; NORMAL synchronous durability is acceptable because the
// checkpoint mechanism replays anything lost in the last fsync window.
func Open(path string, opts Options) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_busy_timeout=%d&_txlock=immediate&_synchronous=NORMAL&_cache_size=-65536",
		url.PathEscape(path), busyTimeout.Milliseconds(),
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, wrapErr("open", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 16
	}
	db.SetMaxOpenConns(maxConns)

	s := &Store{db: db, path: path}

	// 16 KiB pages suit the ~10 MB blobs this store carries. The page
	// size sticks only while the fresh database is still in its default
	// journal mode, so it runs before the WAL switch, and both pragmas
	// share one connection. No-op on an existing database.
	conn, err := db.Conn(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, wrapErr("open", err)
	}
	for _, pragma := range []string{"PRAGMA page_size = 16384", "PRAGMA journal_mode = WAL"} {
		if _, err := conn.ExecContext(context.Background(), pragma); err != nil {
			_ = conn.Close()
			_ = db.Close()
			return nil, wrapErr("open", err)
		}
	}
	_ = conn.Close()

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the underlying connections.
func (s *Store) Close() error {
	return wrapErr("close", s.db.Close())
}

// migrate applies the base schema and any pending additive migrations.
// All statements are idempotent; re-running against a current database is
// a no-op.
func (s *Store) migrate() error {
	err := s.withTx(context.Background(), "migrate", func(tx *sql.Tx) error {
		if _, err := tx.Exec(schema); err != nil {
			return err
		}

		var version int
		row := tx.QueryRow("SELECT version FROM schema_meta LIMIT 1")
		switch err := row.Scan(&version); err {
		case nil:
		case sql.ErrNoRows:
			if _, err := tx.Exec("INSERT INTO schema_meta (version) VALUES (1)"); err != nil {
				return err
			}
			version = 1
		default:
			return err
		}

		for v := version + 1; v <= schemaVersion; v++ {
			for _, stmt := range migrations[v] {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration to v%d: %w", v, err)
				}
			}
		}
		if version < schemaVersion {
			if _, err := tx.Exec("UPDATE schema_meta SET version = ?", schemaVersion); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// withTx runs fn inside a write transaction. The connection's _txlock is
// immediate, so the write lock is taken at BEGIN; commit or rollback
// happens on every exit path.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return wrapErr(op, err)
	}
	return wrapErr(op, tx.Commit())
}

// Stats summarizes the store contents for status output.
type Stats struct {
	ActiveByType  map[types.ContentType]int64
	DeletedByType map[types.ContentType]int64
	TotalBytes    int64
	DLQCount      int64
	SessionCount  int64
}

// Stats reads aggregate counts. Metadata-only; content blobs are not
// scanned.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ActiveByType:  make(map[types.ContentType]int64),
		DeletedByType: make(map[types.ContentType]int64),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT content_type, deleted_at IS NOT NULL, COUNT(*), COALESCE(SUM(content_size), 0)
		FROM content_items GROUP BY content_type, deleted_at IS NOT NULL`)
	if err != nil {
		return nil, wrapErr("stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ct types.ContentType
		var deleted bool
		var count, size int64
		if err := rows.Scan(&ct, &deleted, &count, &size); err != nil {
			return nil, wrapErr("stats", err)
		}
		if deleted {
			stats.DeletedByType[ct] = count
		} else {
			stats.ActiveByType[ct] = count
		}
		stats.TotalBytes += size
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("stats", err)
	}

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dlq_entries")
	if err := row.Scan(&stats.DLQCount); err != nil {
		return nil, wrapErr("stats", err)
	}
	row = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions")
	if err := row.Scan(&stats.SessionCount); err != nil {
		return nil, wrapErr("stats", err)
	}
	return stats, nil
}

// now returns the canonical "now" used for synced_at and deleted_at.
func now() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Accept second-precision timestamps written by other tooling.
		t, err = time.Parse(time.RFC3339, s)
	}
	return t.UTC(), err
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
