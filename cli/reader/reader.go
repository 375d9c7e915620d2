package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/lookervault/lookervault/store"
	"github.com/lookervault/lookervault/types"
)

// StoreReader reads sessions, checkpoints, and dead-letter entries
// directly from the local store.
type StoreReader struct {
	store *store.Store
}

// NewStoreReader creates a reader over an open store.
func NewStoreReader(st *store.Store) *StoreReader {
	return &StoreReader{store: st}
}

// SessionStatus returns the full status of one session, including its
// per-type checkpoints and dead-letter count.
func (r *StoreReader) SessionStatus(ctx context.Context, sessionID string) (*SessionStatusResponse, error) {
	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("session %s not found", sessionID)
		}
		return nil, err
	}
	return r.statusOf(ctx, sess)
}

// LatestSessionStatus returns the newest session, optionally of one kind.
func (r *StoreReader) LatestSessionStatus(ctx context.Context, kind string) (*SessionStatusResponse, error) {
	sessions, err := r.store.ListSessions(ctx, types.SessionKind(kind), 1)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, errors.New("no sessions recorded")
	}
	return r.statusOf(ctx, sessions[0])
}

func (r *StoreReader) statusOf(ctx context.Context, sess *types.Session) (*SessionStatusResponse, error) {
	cps, err := r.store.CheckpointsForSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	dlq, err := r.store.DLQList(ctx, store.DLQFilter{SessionID: sess.ID})
	if err != nil {
		return nil, err
	}

	resp := &SessionStatusResponse{
		SessionID:   sess.ID,
		Kind:        string(sess.Kind),
		Status:      string(sess.Status),
		StartedAt:   sess.StartedAt,
		CompletedAt: sess.CompletedAt,
		TotalItems:  sess.TotalItems,
		ErrorCount:  sess.ErrorCount,
		DLQCount:    int64(len(dlq)),
	}
	for _, cp := range cps {
		resp.Checkpoints = append(resp.Checkpoints, CheckpointView{
			ContentType: cp.ContentType.String(),
			Status:      string(cp.Status()),
			ItemCount:   cp.ItemCount,
			StartedAt:   cp.StartedAt,
			CompletedAt: cp.CompletedAt,
			Error:       cp.ErrorMessage,
		})
	}
	return resp, nil
}

// ListSessions returns sessions newest first.
func (r *StoreReader) ListSessions(ctx context.Context, opts ListSessionsOptions) ([]SessionListItem, error) {
	sessions, err := r.store.ListSessions(ctx, types.SessionKind(opts.Kind), opts.Limit)
	if err != nil {
		return nil, err
	}
	items := make([]SessionListItem, 0, len(sessions))
	for _, sess := range sessions {
		items = append(items, SessionListItem{
			SessionID:  sess.ID,
			Kind:       string(sess.Kind),
			Status:     string(sess.Status),
			StartedAt:  sess.StartedAt,
			TotalItems: sess.TotalItems,
			ErrorCount: sess.ErrorCount,
		})
	}
	return items, nil
}

// SessionStats aggregates session states for the status TUI.
func (r *StoreReader) SessionStats(ctx context.Context) (*SessionStats, error) {
	sessions, err := r.store.ListSessions(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	stats := &SessionStats{Total: len(sessions)}
	for _, sess := range sessions {
		switch sess.Status {
		case types.SessionRunning, types.SessionPending:
			stats.Running++
		case types.SessionCompleted:
			stats.Completed++
		case types.SessionFailed:
			stats.Failed++
		case types.SessionCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// DLQList returns dead-letter rows, newest failures first.
func (r *StoreReader) DLQList(ctx context.Context, opts DLQListOptions) ([]DLQItem, error) {
	entries, err := r.store.DLQList(ctx, store.DLQFilter{
		SessionID: opts.SessionID,
		ErrorType: opts.ErrorType,
		Limit:     opts.Limit,
	})
	if err != nil {
		return nil, err
	}
	items := make([]DLQItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, dlqItem(e))
	}
	return items, nil
}

// DLQShow returns one dead-letter entry with its payload decoded to JSON.
func (r *StoreReader) DLQShow(ctx context.Context, id int64) (*DLQDetail, error) {
	e, err := r.store.DLQGet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("dlq entry %d not found", id)
		}
		return nil, err
	}

	detail := &DLQDetail{DLQItem: dlqItem(e)}
	if payload, err := DecodePayload(e.ContentData); err == nil {
		detail.Payload = payload
	}
	// An undecodable payload still renders: the error fields carry the
	// diagnosis, the raw blob stays in the store for retry.
	return detail, nil
}

// StoreStats summarizes store contents.
func (r *StoreReader) StoreStats(ctx context.Context) (*StoreStatsResponse, error) {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	resp := &StoreStatsResponse{
		ActiveByType:  make(map[string]int64, len(stats.ActiveByType)),
		DeletedByType: make(map[string]int64, len(stats.DeletedByType)),
		TotalBytes:    stats.TotalBytes,
		DLQCount:      stats.DLQCount,
		SessionCount:  stats.SessionCount,
	}
	for ct, n := range stats.ActiveByType {
		resp.ActiveByType[ct.String()] = n
	}
	for ct, n := range stats.DeletedByType {
		resp.DeletedByType[ct.String()] = n
	}
	return resp, nil
}

func dlqItem(e *types.DLQEntry) DLQItem {
	return DLQItem{
		ID:           e.ID,
		SessionID:    e.SessionID,
		ContentType:  e.ContentType.String(),
		ContentID:    e.ContentID,
		ErrorType:    e.ErrorType,
		ErrorMessage: e.ErrorMessage,
		RetryCount:   e.RetryCount,
		FailedAt:     e.FailedAt,
	}
}

// Verify StoreReader implements the Reader interface.
var _ Reader = (*StoreReader)(nil)
