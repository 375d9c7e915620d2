package extract

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/coordinate"
	"github.com/lookervault/lookervault/log"
	"github.com/lookervault/lookervault/looker"
	"github.com/lookervault/lookervault/metrics"
	"github.com/lookervault/lookervault/queue"
	"github.com/lookervault/lookervault/store"
	"github.com/lookervault/lookervault/types"
)

// Worker pool bounds.
const (
	MinWorkers = 1
	MaxWorkers = 50
	// warnWorkers is where store write contention plateaus.
	warnWorkers = 16
)

// Fetcher is the slice of the API client the extraction engine needs.
// *looker.Client satisfies it.
type Fetcher interface {
	FetchPage(ctx context.Context, ct types.ContentType, req looker.PageRequest) ([]*codec.Map, error)
}

// Options configures one extraction run.
type Options struct {
	// Types to extract; empty means all twelve.
	Types []types.ContentType
	// Workers is the consumer pool size, clamped to [1, 50].
	// Defaults to min(GOMAXPROCS, 8).
	Workers int
	// BatchSize is the page size requested from the API (default 100).
	BatchSize int
	// FolderIDs scopes dashboard and look extraction to folders.
	FolderIDs []string
	// UpdatedAfter switches to incremental mode.
	UpdatedAfter *time.Time
	// Fields restricts the API field set.
	Fields string
	// Resume continues from the latest incomplete checkpoints.
	Resume bool
}

func (o *Options) normalize() {
	if len(o.Types) == 0 {
		o.Types = append([]types.ContentType(nil), types.AllContentTypes...)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
		if o.Workers > 8 {
			o.Workers = 8
		}
	}
	if o.Workers < MinWorkers {
		o.Workers = MinWorkers
	}
	if o.Workers > MaxWorkers {
		o.Workers = MaxWorkers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	o.FolderIDs = dedupe(o.FolderIDs)
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Result summarizes one extraction run.
type Result struct {
	SessionID          string
	TotalItems         int64
	ItemsByType        map[types.ContentType]int64
	Errors             int64
	SoftDeleted        int64
	Duration           time.Duration
	CheckpointsCreated int
	Cancelled          bool
}

// Orchestrator drives extraction sessions against one store and one
// Looker instance.
type Orchestrator struct {
	store   *store.Store
	fetcher Fetcher
	logger  *log.Logger

	collector *metrics.Collector
}

// NewOrchestrator creates an extraction orchestrator. A nil logger is
// replaced with a no-op logger.
func NewOrchestrator(st *store.Store, fetcher Fetcher, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{store: st, fetcher: fetcher, logger: logger}
}

// Metrics returns the collector of the current or most recent run.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.collector
}

// Run executes one extraction session. Per-item and per-type failures are
// recorded and extraction continues; storage failures and cancellation end
// the session with status failed or cancelled.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	opts.normalize()
	start := time.Now()

	sess := &types.Session{
		ID:        uuid.New().String(),
		Kind:      types.SessionExtraction,
		Status:    types.SessionRunning,
		StartedAt: start,
		Config: map[string]any{
			"workers":    opts.Workers,
			"batch_size": opts.BatchSize,
			"types":      typeNames(opts.Types),
			"folder_ids": opts.FolderIDs,
			"resume":     opts.Resume,
		},
	}
	if err := o.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}

	logger := o.logger.ForSession(sess.ID, string(types.SessionExtraction))
	o.collector = metrics.NewCollector(sess.ID, string(types.SessionExtraction), "")

	if opts.Workers > warnWorkers {
		logger.Warn("worker count past store write contention plateau", map[string]any{
			"workers": opts.Workers,
		})
	}

	result := &Result{
		SessionID:   sess.ID,
		ItemsByType: make(map[types.ContentType]int64, len(opts.Types)),
	}

	var sessionErr error
	for _, ct := range opts.Types {
		if ctx.Err() != nil {
			break
		}
		count, created, err := o.runType(ctx, logger, sess.ID, ct, opts, result)
		result.ItemsByType[ct] = count
		result.TotalItems += count
		if created {
			result.CheckpointsCreated++
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if errors.Is(err, store.ErrCorrupt) || errors.Is(err, store.ErrClosed) {
				sessionErr = err
				break
			}
			logger.Error("content type extraction failed", map[string]any{
				"content_type": ct.String(), "error": err.Error(),
			})
			result.Errors++
			o.collector.IncError("")
		}
	}

	result.Errors = o.collector.Snapshot().ErrorCount
	result.Duration = time.Since(start)

	now := time.Now()
	sess.TotalItems = result.TotalItems
	sess.ErrorCount = result.Errors
	sess.CompletedAt = &now
	switch {
	case ctx.Err() != nil:
		sess.Status = types.SessionCancelled
		result.Cancelled = true
	case sessionErr != nil:
		sess.Status = types.SessionFailed
	default:
		sess.Status = types.SessionCompleted
	}
	// Session bookkeeping must not depend on the possibly-cancelled ctx.
	if err := o.store.UpdateSession(context.WithoutCancel(ctx), sess); err != nil {
		logger.Error("session update failed", map[string]any{"error": err.Error()})
	}

	if sessionErr != nil {
		return result, sessionErr
	}
	return result, nil
}

// runType extracts one content type. Returns the item count, whether a new
// checkpoint row was created, and the terminal error if any.
func (o *Orchestrator) runType(ctx context.Context, logger *log.Logger, sessionID string, ct types.ContentType, opts Options, result *Result) (int64, bool, error) {
	folderIDs := opts.FolderIDs
	if len(folderIDs) > 0 && !looker.SupportsFolderFilter(ct) {
		logger.Warn("folder filter not supported, extracting full dataset", map[string]any{
			"content_type": ct.String(),
		})
		folderIDs = nil
	}

	cp, created, err := o.openCheckpoint(ctx, sessionID, ct, opts, folderIDs)
	if err != nil {
		return 0, false, err
	}

	run := &typeRun{
		orch:      o,
		logger:    logger,
		ct:        ct,
		opts:      opts,
		folderIDs: folderIDs,
		cp:        cp,
		queue:     queue.New(opts.Workers),
		seen:      make(map[string]struct{}),
	}
	if !created && cp.State.TotalProcessed > 0 {
		// Resumed runs report cumulative counts across attempts. The ids
		// stored by the interrupted attempt were not observed here, so a
		// full-id sweep would be wrong.
		run.count.Store(cp.State.TotalProcessed)
		run.partialSeen = true
	}

	err = run.execute(ctx)
	count := run.count.Load()
	run.persistCheckpoint(context.WithoutCancel(ctx), err == nil && ctx.Err() == nil)

	if err == nil && ctx.Err() == nil {
		deleted, derr := run.sweepDeleted(ctx)
		if derr != nil {
			logger.Warn("soft delete sweep failed", map[string]any{
				"content_type": ct.String(), "error": derr.Error(),
			})
			o.collector.IncError("")
		}
		result.SoftDeleted += deleted
	}
	if err == nil {
		err = ctx.Err()
	}
	return count, created, err
}

// openCheckpoint loads a resumable checkpoint or creates a fresh one.
func (o *Orchestrator) openCheckpoint(ctx context.Context, sessionID string, ct types.ContentType, opts Options, folderIDs []string) (*types.Checkpoint, bool, error) {
	if opts.Resume {
		cp, err := o.store.LatestIncompleteCheckpoint(ctx, ct, "")
		if err == nil {
			return cp, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}

	state := types.CheckpointState{
		BatchSize: opts.BatchSize,
		Fields:    opts.Fields,
		FolderIDs: folderIDs,
	}
	if opts.UpdatedAfter != nil {
		state.UpdatedAfter = opts.UpdatedAfter.UTC().Format(time.RFC3339)
	}
	cp := &types.Checkpoint{
		SessionID:   sessionID,
		ContentType: ct,
		State:       state,
		StartedAt:   time.Now(),
	}
	if err := o.store.PutCheckpoint(ctx, cp); err != nil {
		return nil, false, err
	}
	return cp, true, nil
}

// typeRun is the in-flight state of one content type extraction.
type typeRun struct {
	orch      *Orchestrator
	logger    *log.Logger
	ct        types.ContentType
	opts      Options
	folderIDs []string
	cp        *types.Checkpoint
	queue     *queue.WorkQueue
	// partialSeen marks runs whose seen-id set does not cover the full
	// dataset (resumed runs, or runs that recovered a page fetch failure).
	// Guarded by mu once producers are live.
	partialSeen bool

	count    atomic.Int64
	batchSeq atomic.Int64

	mu       sync.Mutex
	seen     map[string]struct{}
	fatalErr error
}

func (r *typeRun) setFatal(err error) {
	r.mu.Lock()
	if r.fatalErr == nil {
		r.fatalErr = err
	}
	r.mu.Unlock()
}

func (r *typeRun) fatal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatalErr
}

// execute runs the producer and consumer pools to completion or failure.
func (r *typeRun) execute(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	multi := len(r.folderIDs) > 1

	producers, pctx := errgroup.WithContext(runCtx)
	if multi {
		coord := coordinate.NewMultiFolderOffsetCoordinator(r.opts.BatchSize, r.folderIDs)
		coord.SetTotalWorkers(r.opts.Workers)
		for w := 0; w < r.opts.Workers; w++ {
			producers.Go(func() error {
				defer func() {
					// The last producer out closes the queue so consumers
					// drain and exit without waiting on the group.
					coord.MarkWorkerDone()
					if coord.AllDone() {
						r.queue.Close()
					}
				}()
				return r.produceMulti(pctx, coord)
			})
		}
	} else {
		folder := ""
		if len(r.folderIDs) == 1 {
			folder = r.folderIDs[0]
		}
		coord := coordinate.NewOffsetCoordinator(r.opts.BatchSize, r.resumeOffset())
		coord.SetTotalWorkers(1)
		producers.Go(func() error {
			defer func() {
				coord.MarkWorkerDone()
				if coord.AllDone() {
					r.queue.Close()
				}
			}()
			return r.produceSingle(pctx, coord, folder)
		})
	}

	var consumers sync.WaitGroup
	for w := 0; w < r.opts.Workers; w++ {
		workerID := w
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			r.consume(runCtx, workerID)
		}()
	}

	producerErr := producers.Wait()
	r.queue.Close()
	consumers.Wait()

	if err := r.fatal(); err != nil {
		return err
	}
	if producerErr != nil {
		return producerErr
	}
	return ctx.Err()
}

func (r *typeRun) resumeOffset() int {
	if r.opts.Resume && r.cp.State.LastOffset > 0 {
		return r.cp.State.LastOffset
	}
	return 0
}

// produceSingle claims offset ranges and enqueues fetched pages until the
// collection is exhausted.
func (r *typeRun) produceSingle(ctx context.Context, coord *coordinate.OffsetCoordinator, folderID string) error {
	for ctx.Err() == nil {
		offset, limit, ok := coord.ClaimRange()
		if !ok {
			return nil
		}
		page, err := r.fetch(ctx, folderID, offset, limit)
		if err != nil {
			coord.MarkExhausted()
			return r.fetchFailed(ctx, err)
		}
		if len(page) < limit {
			coord.MarkExhausted()
		}
		if len(page) == 0 {
			return nil
		}
		if err := r.enqueue(ctx, page, folderID); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// produceMulti claims (folder, offset) ranges round-robin across folders.
func (r *typeRun) produceMulti(ctx context.Context, coord *coordinate.MultiFolderOffsetCoordinator) error {
	for ctx.Err() == nil {
		fr, ok := coord.ClaimRange()
		if !ok {
			return nil
		}
		page, err := r.fetch(ctx, fr.FolderID, fr.Offset, fr.Limit)
		if err != nil {
			coord.MarkFolderExhausted(fr.FolderID)
			if ferr := r.fetchFailed(ctx, err); ferr != nil {
				return ferr
			}
			continue
		}
		if len(page) < fr.Limit {
			coord.MarkFolderExhausted(fr.FolderID)
		}
		if len(page) == 0 {
			continue
		}
		if err := r.enqueue(ctx, page, fr.FolderID); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (r *typeRun) fetch(ctx context.Context, folderID string, offset, limit int) ([]*codec.Map, error) {
	return r.orch.fetcher.FetchPage(ctx, r.ct, looker.PageRequest{
		Fields:       r.opts.Fields,
		Limit:        limit,
		Offset:       offset,
		FolderID:     folderID,
		UpdatedAfter: r.opts.UpdatedAfter,
	})
}

// fetchFailed records a producer-side API failure. Cancellation passes
// through; everything else is recovered locally so peers keep draining.
func (r *typeRun) fetchFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.logger.Error("page fetch failed", map[string]any{
		"content_type": r.ct.String(), "error": err.Error(),
	})
	r.orch.collector.IncError("producer")
	// Pages past the failure were never observed, so the seen set no
	// longer covers the full dataset and must not drive a sweep.
	r.mu.Lock()
	r.partialSeen = true
	r.mu.Unlock()
	return nil
}

func (r *typeRun) enqueue(ctx context.Context, page []*codec.Map, folderID string) error {
	item := queue.WorkItem{
		ContentType: r.ct,
		Items:       page,
		BatchNumber: int(r.batchSeq.Add(1)) - 1,
		FolderID:    folderID,
	}
	if err := r.queue.Put(ctx, item); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}

// consume drains the queue, encoding payloads and landing them in the store.
func (r *typeRun) consume(ctx context.Context, workerID int) {
	for {
		item, ok, err := r.queue.GetWithTimeout(ctx, queue.DefaultGetTimeout)
		if err != nil {
			return
		}
		if !ok {
			if r.queue.Closed() && r.queue.Len() == 0 {
				return
			}
			continue
		}
		r.consumeBatch(ctx, workerID, item)
		if r.fatal() != nil {
			return
		}
	}
}

func (r *typeRun) consumeBatch(ctx context.Context, workerID int, batch queue.WorkItem) {
	now := time.Now()
	stored := int64(0)
	var bytes int64

	for _, payload := range batch.Items {
		item, err := itemFromPayload(batch.ContentType, payload, now)
		if err != nil {
			r.logger.Warn("payload rejected", map[string]any{
				"content_type": batch.ContentType.String(), "error": err.Error(),
			})
			r.orch.collector.IncError(workerName(workerID))
			continue
		}
		if err := r.orch.store.PutContent(ctx, item); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, store.ErrCorrupt) || errors.Is(err, store.ErrClosed) {
				r.setFatal(err)
				return
			}
			r.logger.Error("content write failed", map[string]any{
				"id": item.ID, "error": err.Error(),
			})
			r.orch.collector.IncError(workerName(workerID))
			continue
		}
		stored++
		bytes += item.ContentSize
		r.mu.Lock()
		r.seen[item.ID] = struct{}{}
		r.mu.Unlock()
	}

	r.count.Add(stored)
	r.orch.collector.AddItems(batch.ContentType.String(), stored)
	r.orch.collector.AddBytesStored(bytes)
	r.orch.collector.IncBatchCompleted()
	r.advanceCheckpoint(ctx, batch)
}

// advanceCheckpoint records batch progress on the type's checkpoint row.
func (r *typeRun) advanceCheckpoint(ctx context.Context, batch queue.WorkItem) {
	r.mu.Lock()
	end := (batch.BatchNumber + 1) * r.opts.BatchSize
	if end > r.cp.State.LastOffset {
		r.cp.State.LastOffset = end
	}
	r.cp.State.TotalProcessed = r.count.Load()
	r.cp.ItemCount = r.cp.State.TotalProcessed
	cp := *r.cp
	r.mu.Unlock()

	if err := r.orch.store.PutCheckpoint(ctx, &cp); err != nil && ctx.Err() == nil {
		r.logger.Warn("checkpoint write failed", map[string]any{
			"content_type": r.ct.String(), "error": err.Error(),
		})
	}
}

// persistCheckpoint finalizes the checkpoint row. A cancelled run leaves
// it in progress so resume stays valid.
func (r *typeRun) persistCheckpoint(ctx context.Context, completed bool) {
	r.mu.Lock()
	r.cp.ItemCount = r.count.Load()
	r.cp.State.TotalProcessed = r.cp.ItemCount
	if completed {
		now := time.Now()
		r.cp.CompletedAt = &now
	}
	cp := *r.cp
	r.mu.Unlock()

	if err := r.orch.store.PutCheckpoint(ctx, &cp); err != nil {
		r.logger.Error("checkpoint finalize failed", map[string]any{
			"content_type": r.ct.String(), "error": err.Error(),
		})
	}
}

// sweepDeleted soft-deletes store items the API no longer returns. Full
// extractions use the ids just stored; incremental mode re-lists ids only.
// Folder-scoped runs see a partial view and never sweep.
func (r *typeRun) sweepDeleted(ctx context.Context) (int64, error) {
	if len(r.folderIDs) > 0 {
		return 0, nil
	}

	r.mu.Lock()
	partial := r.partialSeen
	seen := make(map[string]struct{}, len(r.seen))
	for id := range r.seen {
		seen[id] = struct{}{}
	}
	r.mu.Unlock()

	if partial && r.opts.UpdatedAfter == nil {
		return 0, nil
	}

	if r.opts.UpdatedAfter != nil {
		// Incremental pages cover only recently updated items; a full
		// id listing is needed to observe deletions.
		full, err := r.listAllIDs(ctx)
		if err != nil {
			return 0, err
		}
		seen = full
	}

	deleted, err := r.orch.store.SoftDeleteMissing(ctx, r.ct, seen)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		r.logger.Info("soft deleted items missing from source", map[string]any{
			"content_type": r.ct.String(), "count": len(deleted),
		})
	}
	return int64(len(deleted)), nil
}

func (r *typeRun) listAllIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	offset := 0
	for {
		page, err := r.orch.fetcher.FetchPage(ctx, r.ct, looker.PageRequest{
			Fields: "id",
			Limit:  r.opts.BatchSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		for _, payload := range page {
			id, err := payloadID(payload)
			if err != nil {
				continue
			}
			ids[types.CompositeID(r.ct, id)] = struct{}{}
		}
		if len(page) < r.opts.BatchSize {
			return ids, nil
		}
		offset += r.opts.BatchSize
	}
}

func workerName(id int) string {
	return "worker-" + strconv.Itoa(id)
}

func typeNames(cts []types.ContentType) []string {
	out := make([]string, len(cts))
	for i, ct := range cts {
		out[i] = ct.String()
	}
	return out
}
