package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lookervault/lookervault/types"
)

func TestCapacityScalesWithWorkers(t *testing.T) {
	if got := New(4).Cap(); got != 400 {
		t.Errorf("Cap() for 4 workers = %d, want 400", got)
	}
	if got := New(0).Cap(); got != 100 {
		t.Errorf("Cap() for 0 workers = %d, want 100 (floor of one worker)", got)
	}
}

func TestPutGetOrder(t *testing.T) {
	q := New(1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		item := WorkItem{ContentType: types.ContentTypeDashboard, BatchNumber: i}
		if err := q.Put(ctx, item); err != nil {
			t.Fatalf("Put #%d error: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		item, ok, err := q.Get(ctx)
		if err != nil || !ok {
			t.Fatalf("Get #%d = (ok=%v, err=%v)", i, ok, err)
		}
		if item.BatchNumber != i {
			t.Errorf("Get #%d BatchNumber = %d, want %d (FIFO order)", i, item.BatchNumber, i)
		}
	}
}

func TestPutAfterCloseFails(t *testing.T) {
	q := New(1)
	q.Close()
	q.Close() // idempotent

	err := q.Put(context.Background(), WorkItem{})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}
}

func TestGetDrainsAfterClose(t *testing.T) {
	q := New(1)
	ctx := context.Background()

	if err := q.Put(ctx, WorkItem{BatchNumber: 7}); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	q.Close()

	item, ok, err := q.Get(ctx)
	if err != nil || !ok {
		t.Fatalf("Get = (ok=%v, err=%v), want pending item after Close", ok, err)
	}
	if item.BatchNumber != 7 {
		t.Errorf("BatchNumber = %d, want 7", item.BatchNumber)
	}

	_, ok, err = q.Get(ctx)
	if err != nil || ok {
		t.Errorf("Get on drained closed queue = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestGetWithTimeoutExpires(t *testing.T) {
	q := New(1)

	start := time.Now()
	_, ok, err := q.GetWithTimeout(context.Background(), 50*time.Millisecond)
	if err != nil || ok {
		t.Errorf("GetWithTimeout = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("GetWithTimeout returned after %v, want ~50ms wait", elapsed)
	}
}

func TestGetHonorsCancellation(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := q.Get(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Get returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not observe cancellation")
	}
}

func TestPutBlocksWhenFull(t *testing.T) {
	q := New(1)
	ctx := context.Background()

	for i := 0; i < q.Cap(); i++ {
		if err := q.Put(ctx, WorkItem{BatchNumber: i}); err != nil {
			t.Fatalf("Put #%d error: %v", i, err)
		}
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Put(ctx, WorkItem{BatchNumber: -1})
	}()

	select {
	case err := <-blocked:
		t.Fatalf("Put on full queue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// Freeing one slot unblocks the producer.
	if _, ok, err := q.Get(ctx); !ok || err != nil {
		t.Fatalf("Get = (ok=%v, err=%v)", ok, err)
	}
	select {
	case err := <-blocked:
		if err != nil {
			t.Errorf("Put error after slot freed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put still blocked after a slot freed")
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := New(4)
	ctx := context.Background()
	const producers = 4
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Put(ctx, WorkItem{BatchNumber: i}); err != nil {
					t.Errorf("Put error: %v", err)
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		q.Close()
	}()

	var mu sync.Mutex
	received := 0
	var cwg sync.WaitGroup
	for c := 0; c < 4; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				_, ok, err := q.GetWithTimeout(ctx, 100*time.Millisecond)
				if err != nil {
					t.Errorf("Get error: %v", err)
					return
				}
				if !ok {
					if q.Closed() && q.Len() == 0 {
						return
					}
					continue
				}
				mu.Lock()
				received++
				mu.Unlock()
			}
		}()
	}
	cwg.Wait()

	if received != producers*perProducer {
		t.Errorf("received %d items, want %d", received, producers*perProducer)
	}
}
