package reader

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/store"
	"github.com/lookervault/lookervault/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "vault.db"), store.Options{})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedSession(t *testing.T, st *store.Store, id string, kind types.SessionKind, status types.SessionStatus, started time.Time) {
	t.Helper()
	sess := &types.Session{
		ID:        id,
		Kind:      kind,
		Status:    status,
		StartedAt: started,
	}
	if status == types.SessionCompleted {
		done := started.Add(time.Minute)
		sess.CompletedAt = &done
	}
	if err := st.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession error: %v", err)
	}
}

func TestSessionStatusIncludesCheckpointsAndDLQ(t *testing.T) {
	st := newTestStore(t)
	r := NewStoreReader(st)
	ctx := context.Background()

	started := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	seedSession(t, st, "sess-1", types.SessionRestoration, types.SessionFailed, started)

	done := started.Add(30 * time.Second)
	cp := &types.Checkpoint{
		SessionID:   "sess-1",
		ContentType: types.ContentTypeDashboard,
		StartedAt:   started,
		CompletedAt: &done,
		ItemCount:   120,
	}
	if err := st.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("PutCheckpoint error: %v", err)
	}

	payload := codec.NewMap()
	payload.Set("id", "42")
	payload.Set("title", "Revenue")
	blob, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	entry := &types.DLQEntry{
		SessionID:    "sess-1",
		ContentType:  types.ContentTypeDashboard,
		ContentID:    "dashboard::42",
		ContentData:  blob,
		ErrorType:    "ValidationError",
		ErrorMessage: "folder_id missing",
		FailedAt:     started.Add(15 * time.Second),
	}
	if err := st.DLQAdd(ctx, entry); err != nil {
		t.Fatalf("DLQAdd error: %v", err)
	}

	status, err := r.SessionStatus(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SessionStatus error: %v", err)
	}
	if status.Kind != "restoration" || status.Status != "failed" {
		t.Errorf("status = %s/%s, want restoration/failed", status.Kind, status.Status)
	}
	if status.DLQCount != 1 {
		t.Errorf("DLQCount = %d, want 1", status.DLQCount)
	}
	if len(status.Checkpoints) != 1 {
		t.Fatalf("Checkpoints = %d, want 1", len(status.Checkpoints))
	}
	cpView := status.Checkpoints[0]
	if cpView.ContentType != "dashboard" || cpView.Status != "completed" || cpView.ItemCount != 120 {
		t.Errorf("checkpoint view = %+v", cpView)
	}
}

func TestSessionStatusUnknownID(t *testing.T) {
	r := NewStoreReader(newTestStore(t))
	if _, err := r.SessionStatus(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestLatestSessionStatus(t *testing.T) {
	st := newTestStore(t)
	r := NewStoreReader(st)
	ctx := context.Background()

	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	seedSession(t, st, "old", types.SessionExtraction, types.SessionCompleted, base)
	seedSession(t, st, "new", types.SessionRestoration, types.SessionRunning, base.Add(time.Hour))

	status, err := r.LatestSessionStatus(ctx, "")
	if err != nil {
		t.Fatalf("LatestSessionStatus error: %v", err)
	}
	if status.SessionID != "new" {
		t.Errorf("SessionID = %q, want new", status.SessionID)
	}

	status, err = r.LatestSessionStatus(ctx, "extraction")
	if err != nil {
		t.Fatalf("LatestSessionStatus error: %v", err)
	}
	if status.SessionID != "old" {
		t.Errorf("SessionID = %q, want old", status.SessionID)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	st := newTestStore(t)
	r := NewStoreReader(st)
	ctx := context.Background()

	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	seedSession(t, st, "a", types.SessionExtraction, types.SessionCompleted, base)
	seedSession(t, st, "b", types.SessionExtraction, types.SessionCompleted, base.Add(time.Hour))
	seedSession(t, st, "c", types.SessionRestoration, types.SessionFailed, base.Add(2*time.Hour))

	items, err := r.ListSessions(ctx, ListSessionsOptions{})
	if err != nil {
		t.Fatalf("ListSessions error: %v", err)
	}
	if len(items) != 3 || items[0].SessionID != "c" || items[2].SessionID != "a" {
		t.Errorf("unexpected order: %+v", items)
	}

	items, err = r.ListSessions(ctx, ListSessionsOptions{Kind: "restoration"})
	if err != nil {
		t.Fatalf("ListSessions error: %v", err)
	}
	if len(items) != 1 || items[0].SessionID != "c" {
		t.Errorf("kind filter returned %+v", items)
	}
}

func TestSessionStats(t *testing.T) {
	st := newTestStore(t)
	r := NewStoreReader(st)
	ctx := context.Background()

	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	seedSession(t, st, "a", types.SessionExtraction, types.SessionCompleted, base)
	seedSession(t, st, "b", types.SessionExtraction, types.SessionRunning, base.Add(time.Minute))
	seedSession(t, st, "c", types.SessionRestoration, types.SessionFailed, base.Add(2*time.Minute))
	seedSession(t, st, "d", types.SessionRestoration, types.SessionCancelled, base.Add(3*time.Minute))

	stats, err := r.SessionStats(ctx)
	if err != nil {
		t.Fatalf("SessionStats error: %v", err)
	}
	want := SessionStats{Total: 4, Running: 1, Completed: 1, Failed: 1, Cancelled: 1}
	if *stats != want {
		t.Errorf("SessionStats = %+v, want %+v", *stats, want)
	}
}

func TestDLQShowDecodesPayload(t *testing.T) {
	st := newTestStore(t)
	r := NewStoreReader(st)
	ctx := context.Background()

	seedSession(t, st, "sess-1", types.SessionRestoration, types.SessionFailed,
		time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC))

	payload := codec.NewMap()
	payload.Set("id", "7")
	payload.Set("name", "Finance")
	blob, _ := codec.Encode(payload)
	entry := &types.DLQEntry{
		SessionID:   "sess-1",
		ContentType: types.ContentTypeFolder,
		ContentID:   "folder::7",
		ContentData: blob,
		ErrorType:   "APIError",
	}
	if err := st.DLQAdd(ctx, entry); err != nil {
		t.Fatalf("DLQAdd error: %v", err)
	}

	detail, err := r.DLQShow(ctx, entry.ID)
	if err != nil {
		t.Fatalf("DLQShow error: %v", err)
	}
	if detail.ContentID != "folder::7" || detail.ErrorType != "APIError" {
		t.Errorf("detail = %+v", detail.DLQItem)
	}
	if string(detail.Payload) != `{"id":"7","name":"Finance"}` {
		t.Errorf("Payload = %s", detail.Payload)
	}
}

func TestDLQShowUnknownID(t *testing.T) {
	r := NewStoreReader(newTestStore(t))
	if _, err := r.DLQShow(context.Background(), 999); err == nil {
		t.Fatal("expected error for unknown dlq id")
	}
}

func TestStoreStats(t *testing.T) {
	st := newTestStore(t)
	r := NewStoreReader(st)
	ctx := context.Background()

	payload := codec.NewMap()
	payload.Set("id", "1")
	blob, _ := codec.Encode(payload)
	item := &types.ContentItem{
		ID:          "dashboard::1",
		ContentType: types.ContentTypeDashboard,
		Name:        "d",
		UpdatedAt:   time.Now().UTC(),
		ContentSize: int64(len(blob)),
		ContentData: blob,
	}
	if err := st.PutContent(ctx, item); err != nil {
		t.Fatalf("PutContent error: %v", err)
	}

	stats, err := r.StoreStats(ctx)
	if err != nil {
		t.Fatalf("StoreStats error: %v", err)
	}
	if stats.ActiveByType["dashboard"] != 1 {
		t.Errorf("ActiveByType = %v", stats.ActiveByType)
	}
	if stats.TotalBytes == 0 {
		t.Error("TotalBytes = 0, want > 0")
	}
}
