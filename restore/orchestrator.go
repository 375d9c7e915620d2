package restore

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lookervault/lookervault/log"
	"github.com/lookervault/lookervault/metrics"
	"github.com/lookervault/lookervault/store"
	"github.com/lookervault/lookervault/types"
)

// Defaults and bounds for the restoration pool.
const (
	MinWorkers = 1
	MaxWorkers = 50

	DefaultCheckpointInterval = 100
	DefaultMaxRetries         = 3
)

// Options configures one restoration run.
type Options struct {
	// Types to restore; empty means every type, in dependency order.
	Types []types.ContentType
	// Workers is the consumer pool size, clamped to [1, 50].
	Workers int
	// CheckpointInterval is how many successes between checkpoint writes.
	CheckpointInterval int
	// MaxRetries bounds per-item attempts for transient failures, on top
	// of the client's own retry policy.
	MaxRetries int
	// SkipIfModified and DryRun pass through to the Restorer.
	SkipIfModified bool
	DryRun         bool
	// ResumeSessionID continues a prior session, filtering out ids its
	// checkpoints already completed.
	ResumeSessionID string
}

func (o *Options) normalize(graph *DependencyGraph) error {
	if len(o.Types) == 0 {
		o.Types = append([]types.ContentType(nil), types.AllContentTypes...)
	}
	ordered, err := graph.TopologicalOrder(o.Types)
	if err != nil {
		return err
	}
	o.Types = ordered

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
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = DefaultCheckpointInterval
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	return nil
}

// TypeSummary is the per-type slice of a restoration summary.
type TypeSummary struct {
	ContentType  types.ContentType
	Total        int64
	Created      int64
	Updated      int64
	Skipped      int64
	Errors       int64
	DeadLettered int64
	Duration     time.Duration
}

// Summary aggregates one restoration run.
type Summary struct {
	SessionID         string
	Types             []TypeSummary
	Total             int64
	Created           int64
	Updated           int64
	Skipped           int64
	Errors            int64
	DeadLettered      int64
	Duration          time.Duration
	AvgItemsPerSecond float64
	WorkerErrors      map[string]int64
	Cancelled         bool
}

// Orchestrator drives restoration sessions out of one store into one
// destination instance.
type Orchestrator struct {
	store    *store.Store
	restorer *Restorer
	graph    *DependencyGraph
	logger   *log.Logger

	collector *metrics.Collector
}

// NewOrchestrator creates a restoration orchestrator.
func NewOrchestrator(st *store.Store, restorer *Restorer, logger *log.Logger) (*Orchestrator, error) {
	graph, err := NewDependencyGraph()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{store: st, restorer: restorer, graph: graph, logger: logger}, nil
}

// Metrics returns the collector of the current or most recent run.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.collector
}

// Run executes one restoration session. Types proceed strictly in
// dependency order; per-item failures land in the DLQ and the run
// continues.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	if err := opts.normalize(o.graph); err != nil {
		return nil, err
	}
	o.restorer.SkipIfModified = opts.SkipIfModified
	o.restorer.DryRun = opts.DryRun
	start := time.Now()

	sess, err := o.openSession(ctx, opts, start)
	if err != nil {
		return nil, err
	}

	logger := o.logger.ForSession(sess.ID, string(types.SessionRestoration))
	o.collector = metrics.NewCollector(sess.ID, string(types.SessionRestoration), "")

	summary := &Summary{SessionID: sess.ID}

	var sessionErr error
	for _, ct := range opts.Types {
		if ctx.Err() != nil {
			break
		}
		ts, err := o.runType(ctx, logger, sess.ID, ct, opts)
		if ts != nil {
			summary.Types = append(summary.Types, *ts)
			summary.Total += ts.Total
			summary.Created += ts.Created
			summary.Updated += ts.Updated
			summary.Skipped += ts.Skipped
			summary.Errors += ts.Errors
			summary.DeadLettered += ts.DeadLettered
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			sessionErr = err
			break
		}
	}

	summary.Duration = time.Since(start)
	if secs := summary.Duration.Seconds(); secs > 0 {
		summary.AvgItemsPerSecond = float64(summary.Total) / secs
	}
	summary.WorkerErrors = o.collector.Snapshot().ErrorsByWorker

	now := time.Now()
	sess.TotalItems = summary.Total
	sess.ErrorCount = summary.Errors
	sess.CompletedAt = &now
	switch {
	case ctx.Err() != nil:
		sess.Status = types.SessionCancelled
		summary.Cancelled = true
	case sessionErr != nil:
		sess.Status = types.SessionFailed
	default:
		sess.Status = types.SessionCompleted
	}
	if err := o.store.UpdateSession(context.WithoutCancel(ctx), sess); err != nil {
		logger.Error("session update failed", map[string]any{"error": err.Error()})
	}

	if sessionErr != nil {
		return summary, sessionErr
	}
	return summary, nil
}

// openSession creates a fresh session or revives the one being resumed.
func (o *Orchestrator) openSession(ctx context.Context, opts Options, start time.Time) (*types.Session, error) {
	if opts.ResumeSessionID != "" {
		sess, err := o.store.GetSession(ctx, opts.ResumeSessionID)
		if err != nil {
			return nil, err
		}
		sess.Status = types.SessionRunning
		sess.CompletedAt = nil
		if err := o.store.UpdateSession(ctx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	}

	sess := &types.Session{
		ID:        uuid.New().String(),
		Kind:      types.SessionRestoration,
		Status:    types.SessionRunning,
		StartedAt: start,
		Config: map[string]any{
			"workers":             opts.Workers,
			"checkpoint_interval": opts.CheckpointInterval,
			"dry_run":             opts.DryRun,
			"skip_if_modified":    opts.SkipIfModified,
		},
	}
	if err := o.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// runType restores all pending items of one content type.
func (o *Orchestrator) runType(ctx context.Context, logger *log.Logger, sessionID string, ct types.ContentType, opts Options) (*TypeSummary, error) {
	typeStart := time.Now()

	cp, err := o.openCheckpoint(ctx, sessionID, ct, opts)
	if err != nil {
		return nil, err
	}

	ids, err := o.store.ActiveIDs(ctx, ct)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]struct{}, len(cp.State.CompletedIDs))
	for _, id := range cp.State.CompletedIDs {
		completed[id] = struct{}{}
	}
	pending := ids[:0:0]
	for _, id := range ids {
		if _, done := completed[id]; !done {
			pending = append(pending, id)
		}
	}

	ts := &TypeSummary{ContentType: ct, Total: int64(len(pending))}
	if len(pending) == 0 {
		o.finalizeCheckpoint(context.WithoutCancel(ctx), logger, cp, true)
		ts.Duration = time.Since(typeStart)
		return ts, nil
	}

	run := &typeRun{
		orch:      o,
		logger:    logger,
		sessionID: sessionID,
		ct:        ct,
		opts:      opts,
		cp:        cp,
		summary:   ts,
		completed: completed,
	}
	err = run.execute(ctx, pending)
	run.mu.Lock()
	run.syncCheckpointLocked()
	run.mu.Unlock()
	o.finalizeCheckpoint(context.WithoutCancel(ctx), logger, cp, err == nil && ctx.Err() == nil)
	ts.Duration = time.Since(typeStart)
	if err == nil {
		err = ctx.Err()
	}
	return ts, err
}

func (o *Orchestrator) openCheckpoint(ctx context.Context, sessionID string, ct types.ContentType, opts Options) (*types.Checkpoint, error) {
	if opts.ResumeSessionID != "" {
		cp, err := o.store.LatestIncompleteCheckpoint(ctx, ct, opts.ResumeSessionID)
		if err == nil {
			return cp, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	cp := &types.Checkpoint{
		SessionID:   sessionID,
		ContentType: ct,
		StartedAt:   time.Now(),
		State:       types.CheckpointState{BatchSize: opts.CheckpointInterval},
	}
	if err := o.store.PutCheckpoint(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func (o *Orchestrator) finalizeCheckpoint(ctx context.Context, logger *log.Logger, cp *types.Checkpoint, completed bool) {
	if completed {
		now := time.Now()
		cp.CompletedAt = &now
	}
	if err := o.store.PutCheckpoint(ctx, cp); err != nil {
		logger.Error("checkpoint finalize failed", map[string]any{
			"content_type": cp.ContentType.String(), "error": err.Error(),
		})
	}
}

// typeRun is the in-flight state of one content type restoration.
type typeRun struct {
	orch      *Orchestrator
	logger    *log.Logger
	sessionID string
	ct        types.ContentType
	opts      Options
	cp        *types.Checkpoint
	summary   *TypeSummary

	mu           sync.Mutex
	completed    map[string]struct{}
	sinceLastCkp int
}

// execute feeds pending ids to a bounded worker pool.
func (r *typeRun) execute(ctx context.Context, pending []string) error {
	work := make(chan string, r.opts.Workers*10)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for _, id := range pending {
			select {
			case work <- id:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < r.opts.Workers; w++ {
		worker := "worker-" + strconv.Itoa(w)
		g.Go(func() error {
			for id := range work {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if err := r.restoreOne(gctx, worker, id); err != nil {
					// Only storage-level failures abort the type; they
					// poison every subsequent item anyway.
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// restoreOne runs one item through the restorer, retrying transient
// failures and dead-lettering the rest.
func (r *typeRun) restoreOne(ctx context.Context, worker, id string) error {
	item, err := r.orch.store.GetContent(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.addOutcome(func() { r.summary.Skipped++ })
			return nil
		}
		return err
	}

	var result *Result
	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxRetries; attempt++ {
		result, lastErr = r.orch.restorer.RestoreItem(ctx, item)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if permanentError(lastErr) {
			break
		}
	}

	if lastErr != nil {
		r.deadLetter(ctx, worker, item, lastErr)
		return nil
	}

	switch result.Operation {
	case OpCreate:
		r.orch.collector.IncCreated()
		r.addOutcome(func() { r.summary.Created++ })
	case OpUpdate:
		r.orch.collector.IncUpdated()
		r.addOutcome(func() { r.summary.Updated++ })
	default:
		r.orch.collector.IncSkipped()
		r.addOutcome(func() { r.summary.Skipped++ })
	}
	r.orch.collector.AddItems(r.ct.String(), 1)
	r.markCompleted(ctx, id)
	return nil
}

func (r *typeRun) addOutcome(apply func()) {
	r.mu.Lock()
	apply()
	r.mu.Unlock()
}

// markCompleted records a finished id and persists a checkpoint every
// CheckpointInterval successes.
func (r *typeRun) markCompleted(ctx context.Context, id string) {
	r.mu.Lock()
	r.completed[id] = struct{}{}
	r.sinceLastCkp++
	flush := r.sinceLastCkp >= r.opts.CheckpointInterval
	if flush {
		r.sinceLastCkp = 0
		r.syncCheckpointLocked()
	}
	var cp types.Checkpoint
	if flush {
		cp = *r.cp
	}
	r.mu.Unlock()

	if flush {
		if err := r.orch.store.PutCheckpoint(context.WithoutCancel(ctx), &cp); err != nil {
			r.logger.Warn("checkpoint write failed", map[string]any{
				"content_type": r.ct.String(), "error": err.Error(),
			})
		}
	}
}

// syncCheckpointLocked rebuilds the checkpoint state from the completed
// set. Caller holds r.mu.
func (r *typeRun) syncCheckpointLocked() {
	ids := make([]string, 0, len(r.completed))
	for id := range r.completed {
		ids = append(ids, id)
	}
	r.cp.State.CompletedIDs = ids
	r.cp.State.TotalProcessed = int64(len(ids))
	r.cp.ItemCount = int64(len(ids))
}

// deadLetter writes a durable failure record before the item is counted
// handled.
func (r *typeRun) deadLetter(ctx context.Context, worker string, item *types.ContentItem, cause error) {
	r.logger.Warn("item dead-lettered", map[string]any{
		"id": item.ID, "error": cause.Error(), "error_type": classifyError(cause),
	})
	entry := &types.DLQEntry{
		SessionID:    r.sessionID,
		ContentType:  item.ContentType,
		ContentID:    item.ID,
		ContentData:  item.ContentData,
		ErrorType:    classifyError(cause),
		ErrorMessage: cause.Error(),
		FailedAt:     time.Now(),
	}
	if err := r.orch.store.DLQAdd(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("DLQ write failed", map[string]any{
			"id": item.ID, "error": err.Error(),
		})
	}
	r.orch.collector.IncDeadLettered()
	r.orch.collector.IncError(worker)
	r.addOutcome(func() {
		r.summary.Errors++
		r.summary.DeadLettered++
	})
}
