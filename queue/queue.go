// Package queue provides the bounded work queue between producers pulling
// pages from the API and consumers writing batches to the store.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/types"
)

// Queue depth is proportional to the worker count so producers can run
// ahead of consumers without unbounded memory growth.
const (
	depthPerWorker    = 100
	minDepthPerWorker = 10

	// DefaultGetTimeout bounds how long a consumer waits for new work
	// before re-checking for shutdown.
	DefaultGetTimeout = 5 * time.Second
)

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("work queue closed")

// WorkItem is one batch of raw payloads flowing from a producer to a consumer.
type WorkItem struct {
	// ContentType of every payload in the batch.
	ContentType types.ContentType
	// Items are the raw API payloads in pagination order.
	Items []*codec.Map
	// BatchNumber is the producer-assigned sequence number, starting at 0.
	BatchNumber int
	// FolderID is set when the batch came from a folder-scoped fetch.
	FolderID string
	// IsFinal marks the last batch a producer will emit for this content type.
	IsFinal bool
}

// WorkQueue is a bounded FIFO connecting producers and consumers. Closing
// is idempotent; pending items remain retrievable after Close.
type WorkQueue struct {
	ch chan WorkItem

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a queue sized for the given consumer count.
func New(workers int) *WorkQueue {
	if workers < 1 {
		workers = 1
	}
	depth := workers * depthPerWorker
	if depth < workers*minDepthPerWorker {
		depth = workers * minDepthPerWorker
	}
	return &WorkQueue{
		ch:     make(chan WorkItem, depth),
		closed: make(chan struct{}),
	}
}

// Put blocks until the item is enqueued, the queue is closed, or ctx is
// cancelled.
func (q *WorkQueue) Put(ctx context.Context, item WorkItem) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- item:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get blocks until an item is available or ctx is cancelled. After Close,
// remaining items are still delivered; ok=false means the queue is closed
// and drained.
func (q *WorkQueue) Get(ctx context.Context) (WorkItem, bool, error) {
	select {
	case item := <-q.ch:
		return item, true, nil
	default:
	}
	select {
	case item := <-q.ch:
		return item, true, nil
	case <-q.closed:
		// Drain anything raced in before the close.
		select {
		case item := <-q.ch:
			return item, true, nil
		default:
			return WorkItem{}, false, nil
		}
	case <-ctx.Done():
		return WorkItem{}, false, ctx.Err()
	}
}

// GetWithTimeout is Get bounded by a wait duration, so consumers can wake
// up periodically. ok=false with a nil error means either timeout or
// closed-and-drained; use Closed to tell them apart.
func (q *WorkQueue) GetWithTimeout(ctx context.Context, timeout time.Duration) (WorkItem, bool, error) {
	if timeout <= 0 {
		timeout = DefaultGetTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	item, ok, err := q.Get(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return WorkItem{}, false, nil
	}
	return item, ok, err
}

// Close marks the queue closed. Safe to call more than once.
func (q *WorkQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Closed reports whether Close has been called.
func (q *WorkQueue) Closed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// Len returns the number of queued items.
func (q *WorkQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *WorkQueue) Cap() int {
	return cap(q.ch)
}
