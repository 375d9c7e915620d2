package reader

import (
	"context"
	"errors"
	"time"
)

// StubReader returns shape-correct fixed data for development and for
// command-layer tests that do not want a real store on disk.
type StubReader struct{}

// NewStubReader creates a new stub reader.
func NewStubReader() *StubReader {
	return &StubReader{}
}

func stubStatus(sessionID string) *SessionStatusResponse {
	started := time.Now().Add(-10 * time.Minute)
	completed := time.Now().Add(-time.Minute)
	return &SessionStatusResponse{
		SessionID:   sessionID,
		Kind:        "extraction",
		Status:      "completed",
		StartedAt:   started,
		CompletedAt: &completed,
		TotalItems:  340,
		Checkpoints: []CheckpointView{
			{ContentType: "dashboard", Status: "completed", ItemCount: 250, StartedAt: started, CompletedAt: &completed},
			{ContentType: "look", Status: "completed", ItemCount: 90, StartedAt: started, CompletedAt: &completed},
		},
	}
}

// SessionStatus returns stub session details.
func (r *StubReader) SessionStatus(ctx context.Context, sessionID string) (*SessionStatusResponse, error) {
	return stubStatus(sessionID), nil
}

// LatestSessionStatus returns stub details for the newest session.
func (r *StubReader) LatestSessionStatus(ctx context.Context, kind string) (*SessionStatusResponse, error) {
	return stubStatus("stub-session-001"), nil
}

// ListSessions returns a stub session list.
func (r *StubReader) ListSessions(ctx context.Context, opts ListSessionsOptions) ([]SessionListItem, error) {
	now := time.Now()
	items := []SessionListItem{
		{SessionID: "stub-session-001", Kind: "extraction", Status: "completed", StartedAt: now.Add(-time.Hour), TotalItems: 340},
		{SessionID: "stub-session-002", Kind: "restoration", Status: "failed", StartedAt: now.Add(-30 * time.Minute), TotalItems: 150, ErrorCount: 3},
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

// SessionStats returns stub session statistics.
func (r *StubReader) SessionStats(ctx context.Context) (*SessionStats, error) {
	return &SessionStats{Total: 2, Completed: 1, Failed: 1}, nil
}

// DLQList returns stub dead-letter rows.
func (r *StubReader) DLQList(ctx context.Context, opts DLQListOptions) ([]DLQItem, error) {
	return []DLQItem{
		{
			ID:           1,
			SessionID:    "stub-session-002",
			ContentType:  "dashboard",
			ContentID:    "dashboard::42",
			ErrorType:    "ValidationError",
			ErrorMessage: "folder_id references a missing folder",
			FailedAt:     time.Now().Add(-20 * time.Minute),
		},
	}, nil
}

// DLQShow returns one stub dead-letter entry.
func (r *StubReader) DLQShow(ctx context.Context, id int64) (*DLQDetail, error) {
	items, _ := r.DLQList(ctx, DLQListOptions{})
	for _, item := range items {
		if item.ID == id {
			return &DLQDetail{DLQItem: item}, nil
		}
	}
	return nil, errors.New("dlq entry not found")
}

// StoreStats returns stub store statistics.
func (r *StubReader) StoreStats(ctx context.Context) (*StoreStatsResponse, error) {
	return &StoreStatsResponse{
		ActiveByType: map[string]int64{"dashboard": 250, "look": 90},
		TotalBytes:   1 << 20,
		DLQCount:     1,
		SessionCount: 2,
	}, nil
}

// Verify StubReader implements the Reader interface.
var _ Reader = (*StubReader)(nil)
