package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lookervault/lookervault/cli/render"
	"github.com/lookervault/lookervault/extract"
	"github.com/lookervault/lookervault/log"
	"github.com/lookervault/lookervault/types"
)

// ExtractCommand returns the extract command.
func ExtractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract Looker content into the local store",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "types",
				Usage: "Comma-separated content types (default: all)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Worker pool size (1-50)",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "API page size",
			},
			&cli.StringSliceFlag{
				Name:  "folder-id",
				Usage: "Restrict dashboards and looks to a folder (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "recursive-folders",
				Usage: "Expand --folder-id to include all child folders",
			},
			&cli.BoolFlag{
				Name:  "incremental",
				Usage: "Only fetch items updated since the last completed extraction",
			},
			&cli.StringFlag{
				Name:  "updated-after",
				Usage: "Only fetch items updated at or after this RFC3339 timestamp",
			},
			&cli.StringFlag{
				Name:  "fields",
				Usage: "Comma-separated API field set",
			},
			&cli.BoolFlag{
				Name:  "resume",
				Usage: "Continue from the latest incomplete checkpoints",
			},
			&cli.BoolFlag{
				Name:  "no-resume",
				Usage: "Start fresh, ignoring incomplete checkpoints",
			},
			&cli.IntFlag{
				Name:  "rate-limit-per-minute",
				Usage: "API requests per minute",
			},
			&cli.IntFlag{
				Name:  "rate-limit-per-second",
				Usage: "API requests per second",
			},
		),
		Action: extractAction,
	}
}

// ExtractResponse is the rendered summary of one extraction run.
type ExtractResponse struct {
	SessionID          string           `json:"session_id"`
	TotalItems         int64            `json:"total_items"`
	ItemsByType        map[string]int64 `json:"items_by_type"`
	Errors             int64            `json:"errors"`
	SoftDeleted        int64            `json:"soft_deleted,omitempty"`
	CheckpointsCreated int              `json:"checkpoints_created"`
	Duration           string           `json:"duration"`
	ItemsPerSecond     float64          `json:"items_per_second"`
	RateLimitHits      int64            `json:"rate_limit_hits,omitempty"`
	Cancelled          bool             `json:"cancelled,omitempty"`
}

func extractAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for extract", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	cts, err := parseTypes(c.String("types"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	workers := c.Int("workers")
	if workers <= 0 {
		workers = cfg.Parallel.Workers
	}
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		batchSize = cfg.Extraction.BatchSize
	}
	fields := c.String("fields")
	if fields == "" {
		fields = strings.Join(cfg.Extraction.DefaultFields, ",")
	}

	resume := true
	if cfg.Extraction.AutoResume != nil {
		resume = *cfg.Extraction.AutoResume
	}
	if c.Bool("resume") {
		resume = true
	}
	if c.Bool("no-resume") {
		resume = false
	}

	logger := log.NewLogger()
	limiter := limiterFor(c, cfg.Parallel.RateLimitPerMinute, cfg.Parallel.RateLimitPerSecond)
	client, err := buildClient(cfg, limiter, logger)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, workers)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	updatedAfter, err := resolveUpdatedAfter(c, st)
	if err != nil {
		return err
	}

	folderIDs := c.StringSlice("folder-id")
	if c.Bool("recursive-folders") && len(folderIDs) > 0 {
		folderIDs, err = client.ExpandFolders(ctx, folderIDs)
		if err != nil {
			return runExit(fmt.Errorf("expand folders: %w", err))
		}
	}

	progress := progressSink()
	progress.Emit(render.ProgressEvent{Event: "extraction_started"})

	orch := extract.NewOrchestrator(st, client, logger)
	result, err := orch.Run(ctx, extract.Options{
		Types:        cts,
		Workers:      workers,
		BatchSize:    batchSize,
		FolderIDs:    folderIDs,
		UpdatedAfter: updatedAfter,
		Fields:       fields,
		Resume:       resume,
	})
	if err != nil {
		return runExit(err)
	}

	stats := limiter.Stats()
	orch.Metrics().AbsorbLimiterStats(stats.Total429, stats.Multiplier)
	snap := orch.Metrics().Snapshot()

	status := string(types.SessionCompleted)
	if result.Cancelled {
		status = string(types.SessionCancelled)
	}
	publishCompletion(cfg, logger, snap, status)

	progress.Emit(render.ProgressEvent{
		Event:      "extraction_completed",
		SessionID:  result.SessionID,
		Processed:  result.TotalItems,
		Errors:     result.Errors,
		Throughput: snap.Throughput,
	})

	resp := &ExtractResponse{
		SessionID:          result.SessionID,
		TotalItems:         result.TotalItems,
		ItemsByType:        make(map[string]int64, len(result.ItemsByType)),
		Errors:             result.Errors,
		SoftDeleted:        result.SoftDeleted,
		CheckpointsCreated: result.CheckpointsCreated,
		Duration:           result.Duration.Round(time.Millisecond).String(),
		ItemsPerSecond:     snap.Throughput,
		RateLimitHits:      snap.RateLimitHits,
		Cancelled:          result.Cancelled,
	}
	for ct, n := range result.ItemsByType {
		resp.ItemsByType[ct.String()] = n
	}
	if err := r.Render(resp); err != nil {
		return err
	}

	if result.Cancelled {
		return cli.Exit("", exitInterrupted)
	}
	if result.Errors > 0 {
		return cli.Exit("", exitFailure)
	}
	return nil
}

// sessionLister is the slice of the store the incremental cutoff needs.
type sessionLister interface {
	ListSessions(ctx context.Context, kind types.SessionKind, limit int) ([]*types.Session, error)
}

// resolveUpdatedAfter derives the incremental cutoff: an explicit
// --updated-after timestamp wins; --incremental falls back to the start
// of the latest completed extraction session.
func resolveUpdatedAfter(c *cli.Context, st sessionLister) (*time.Time, error) {
	if ts := c.String("updated-after"); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("invalid --updated-after %q: %v", ts, err), exitConfig)
		}
		return &parsed, nil
	}
	if !c.Bool("incremental") {
		return nil, nil
	}
	sessions, err := st.ListSessions(c.Context, types.SessionExtraction, 0)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("list sessions: %v", err), exitFailure)
	}
	for _, sess := range sessions {
		if sess.Status == types.SessionCompleted {
			cutoff := sess.StartedAt
			return &cutoff, nil
		}
	}
	// No completed extraction yet; incremental degrades to full.
	return nil, nil
}

// parseTypes parses a comma-separated content type list.
func parseTypes(csv string) ([]types.ContentType, error) {
	if csv == "" {
		return nil, nil
	}
	var cts []types.ContentType
	for _, name := range strings.Split(csv, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ct, err := types.ParseContentType(name)
		if err != nil {
			return nil, err
		}
		cts = append(cts, ct)
	}
	return cts, nil
}

// progressSink picks the progress stream style from the stderr TTY state.
func progressSink() render.ProgressSink {
	if isStderrTTY() {
		return render.NewTTYProgress(os.Stderr)
	}
	return render.NewJSONProgress(os.Stderr)
}
