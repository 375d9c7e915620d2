// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single extraction or
// restoration session. It is a leaf package with no internal dependencies;
// content types are string-typed to keep it that way. Rate limiter state
// is absorbed from the limiter's own stats at session completion rather
// than recorded live, avoiding double-counting.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Progress
	ItemsProcessed    int64
	ItemsByType       map[string]int64
	BatchesCompleted  int64
	BytesStored       int64

	// Restoration outcomes
	ItemsCreated      int64
	ItemsUpdated      int64
	ItemsSkipped      int64
	ItemsDeadLettered int64

	// Failures
	ErrorCount     int64
	ErrorsByWorker map[string]int64

	// Rate limiting (absorbed from the limiter at completion)
	RateLimitHits     int64
	BackoffMultiplier float64

	// Throughput in items per second since collector creation.
	Elapsed    time.Duration
	Throughput float64

	// Dimensions (informational, set at construction)
	SessionID   string
	SessionKind string
	InstanceURL string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	itemsProcessed   int64
	itemsByType      map[string]int64
	batchesCompleted int64
	bytesStored      int64

	itemsCreated      int64
	itemsUpdated      int64
	itemsSkipped      int64
	itemsDeadLettered int64

	errorCount     int64
	errorsByWorker map[string]int64

	rateLimitHits     int64
	backoffMultiplier float64

	startTime time.Time

	sessionID   string
	sessionKind string
	instanceURL string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(sessionID, sessionKind, instanceURL string) *Collector {
	return &Collector{
		itemsByType:       make(map[string]int64),
		errorsByWorker:    make(map[string]int64),
		backoffMultiplier: 1.0,
		startTime:         time.Now(),
		sessionID:         sessionID,
		sessionKind:       sessionKind,
		instanceURL:       instanceURL,
	}
}

// --- Progress ---

// AddItems records n items of one content type flowing through the pipeline.
func (c *Collector) AddItems(contentType string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.itemsProcessed += n
	c.itemsByType[contentType] += n
	c.mu.Unlock()
}

// IncBatchCompleted records one batch written to storage.
func (c *Collector) IncBatchCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.batchesCompleted++
	c.mu.Unlock()
}

// AddBytesStored records serialized payload bytes written to storage.
func (c *Collector) AddBytesStored(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesStored += n
	c.mu.Unlock()
}

// --- Restoration outcomes ---

// IncCreated records an item created on the destination.
func (c *Collector) IncCreated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.itemsCreated++
	c.mu.Unlock()
}

// IncUpdated records an item updated in place on the destination.
func (c *Collector) IncUpdated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.itemsUpdated++
	c.mu.Unlock()
}

// IncSkipped records an item skipped (already current, or dry run).
func (c *Collector) IncSkipped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.itemsSkipped++
	c.mu.Unlock()
}

// IncDeadLettered records an item routed to the dead letter queue.
func (c *Collector) IncDeadLettered() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.itemsDeadLettered++
	c.mu.Unlock()
}

// --- Failures ---

// IncError records a non-fatal error attributed to a worker.
func (c *Collector) IncError(workerID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.errorCount++
	if workerID != "" {
		c.errorsByWorker[workerID]++
	}
	c.mu.Unlock()
}

// --- Rate limiting ---

// AbsorbLimiterStats copies the rate limiter's state into the collector.
// Called at session completion with the limiter's final snapshot.
func (c *Collector) AbsorbLimiterStats(total429 int64, multiplier float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.rateLimitHits = total429
	c.backoffMultiplier = multiplier
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byType := make(map[string]int64, len(c.itemsByType))
	for k, v := range c.itemsByType {
		byType[k] = v
	}
	byWorker := make(map[string]int64, len(c.errorsByWorker))
	for k, v := range c.errorsByWorker {
		byWorker[k] = v
	}

	elapsed := time.Since(c.startTime)
	var throughput float64
	if secs := elapsed.Seconds(); secs > 0 {
		throughput = float64(c.itemsProcessed) / secs
	}

	return Snapshot{
		ItemsProcessed:   c.itemsProcessed,
		ItemsByType:      byType,
		BatchesCompleted: c.batchesCompleted,
		BytesStored:      c.bytesStored,

		ItemsCreated:      c.itemsCreated,
		ItemsUpdated:      c.itemsUpdated,
		ItemsSkipped:      c.itemsSkipped,
		ItemsDeadLettered: c.itemsDeadLettered,

		ErrorCount:     c.errorCount,
		ErrorsByWorker: byWorker,

		RateLimitHits:     c.rateLimitHits,
		BackoffMultiplier: c.backoffMultiplier,

		Elapsed:    elapsed,
		Throughput: throughput,

		SessionID:   c.sessionID,
		SessionKind: c.sessionKind,
		InstanceURL: c.instanceURL,
	}
}
