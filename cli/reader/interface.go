package reader

import "context"

// Reader abstracts read-only data access for CLI commands.
// The store-backed implementation is the default; tests substitute
// in-memory fakes.
type Reader interface {
	// Session operations
	SessionStatus(ctx context.Context, sessionID string) (*SessionStatusResponse, error)
	LatestSessionStatus(ctx context.Context, kind string) (*SessionStatusResponse, error)
	ListSessions(ctx context.Context, opts ListSessionsOptions) ([]SessionListItem, error)
	SessionStats(ctx context.Context) (*SessionStats, error)

	// DLQ operations
	DLQList(ctx context.Context, opts DLQListOptions) ([]DLQItem, error)
	DLQShow(ctx context.Context, id int64) (*DLQDetail, error)

	// Store-wide stats
	StoreStats(ctx context.Context) (*StoreStatsResponse, error)
}
