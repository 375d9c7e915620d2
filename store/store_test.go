package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vault.db"), Options{})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testItem(t *testing.T, ct types.ContentType, lookerID, name string) *types.ContentItem {
	t.Helper()
	payload := codec.NewMap()
	payload.Set("id", lookerID)
	payload.Set("title", name)
	blob, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	now := time.Now().UTC()
	return &types.ContentItem{
		ID:          types.CompositeID(ct, lookerID),
		ContentType: ct,
		Name:        name,
		CreatedAt:   now,
		UpdatedAt:   now,
		ContentSize: int64(len(blob)),
		ContentData: blob,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path, Options{})
		if err != nil {
			t.Fatalf("Open #%d error: %v", i+1, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close #%d error: %v", i+1, err)
		}
	}
}

func TestOpenAppliesPagePragmas(t *testing.T) {
	s := newTestStore(t)

	var pageSize int
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		t.Fatalf("page_size query error: %v", err)
	}
	if pageSize != 16384 {
		t.Errorf("page_size = %d, want 16384", pageSize)
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode query error: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		item := testItem(t, types.ContentTypeDashboard, fmt.Sprintf("%d", i), "Dash")
		if err := s.PutContent(ctx, item); err != nil {
			t.Fatalf("PutContent error: %v", err)
		}
	}
	if err := s.SoftDelete(ctx, "dashboard::0"); err != nil {
		t.Fatalf("SoftDelete error: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.ActiveByType[types.ContentTypeDashboard] != 2 {
		t.Errorf("active dashboards = %d, want 2", stats.ActiveByType[types.ContentTypeDashboard])
	}
	if stats.DeletedByType[types.ContentTypeDashboard] != 1 {
		t.Errorf("deleted dashboards = %d, want 1", stats.DeletedByType[types.ContentTypeDashboard])
	}
	if stats.TotalBytes == 0 {
		t.Error("TotalBytes = 0")
	}
}

func TestConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				item := testItem(t, types.ContentTypeLook, fmt.Sprintf("%d-%d", w, i), "Look")
				if err := s.PutContent(ctx, item); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent PutContent error: %v", err)
	}

	ids, err := s.ActiveIDs(ctx, types.ContentTypeLook)
	if err != nil {
		t.Fatalf("ActiveIDs error: %v", err)
	}
	if len(ids) != workers*perWorker {
		t.Errorf("stored %d looks, want %d", len(ids), workers*perWorker)
	}
}
