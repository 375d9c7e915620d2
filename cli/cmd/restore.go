package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lookervault/lookervault/cli/config"
	"github.com/lookervault/lookervault/cli/render"
	"github.com/lookervault/lookervault/log"
	"github.com/lookervault/lookervault/restore"
	"github.com/lookervault/lookervault/store"
	"github.com/lookervault/lookervault/types"
)

// RestoreCommand returns the restore command with subcommands.
func RestoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore stored content into a Looker instance",
		ArgsUsage: "[types...]",
		Flags:     restoreFlags(),
		Action:    restoreAction,
		Subcommands: []*cli.Command{
			restoreResumeCommand(),
			DLQCommand(),
			StatusCommand(),
		},
	}
}

func restoreFlags() []cli.Flag {
	return append(ReadOnlyFlags(),
		&cli.StringFlag{
			Name:  "from-snapshot",
			Usage: "Download this snapshot reference into the store path first",
		},
		&cli.StringFlag{
			Name:  "source-url",
			Usage: "Instance the store was extracted from (default: destination URL)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Worker pool size (1-50)",
		},
		&cli.IntFlag{
			Name:  "rate-limit-per-minute",
			Usage: "API requests per minute",
		},
		&cli.IntFlag{
			Name:  "rate-limit-per-second",
			Usage: "API requests per second",
		},
		&cli.IntFlag{
			Name:  "checkpoint-interval",
			Usage: "Items between checkpoint writes",
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Per-item retry budget for transient failures",
		},
		&cli.BoolFlag{
			Name:  "skip-if-modified",
			Usage: "Skip items whose destination copy is newer than the stored one",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Translate and check without creating or updating anything",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Proceed without the confirmation prompt",
		},
	)
}

// RestoreResponse is the rendered summary of one restoration run.
type RestoreResponse struct {
	SessionID      string                `json:"session_id"`
	Total          int64                 `json:"total"`
	Created        int64                 `json:"created"`
	Updated        int64                 `json:"updated"`
	Skipped        int64                 `json:"skipped"`
	Errors         int64                 `json:"errors"`
	DeadLettered   int64                 `json:"dead_lettered"`
	Duration       string                `json:"duration"`
	ItemsPerSecond float64               `json:"items_per_second"`
	Types          []RestoreTypeResponse `json:"types,omitempty"`
	DryRun         bool                  `json:"dry_run,omitempty"`
	Cancelled      bool                  `json:"cancelled,omitempty"`
}

// RestoreTypeResponse is the per-type slice of a restore summary.
type RestoreTypeResponse struct {
	ContentType  string `json:"content_type"`
	Total        int64  `json:"total"`
	Created      int64  `json:"created"`
	Updated      int64  `json:"updated"`
	Skipped      int64  `json:"skipped"`
	DeadLettered int64  `json:"dead_lettered"`
}

func restoreAction(c *cli.Context) error {
	return runRestore(c, "")
}

func restoreResumeCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Resume an interrupted restoration session",
		ArgsUsage: "[session-id]",
		Flags:     restoreFlags(),
		Action:    restoreResumeAction,
	}
}

func restoreResumeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	sessionID := c.Args().First()
	if sessionID == "" {
		sessionID, err = latestIncompleteRestore(c, cfg)
		if err != nil {
			return err
		}
	}
	return runRestore(c, sessionID)
}

// latestIncompleteRestore finds the most recent restoration session that
// did not complete.
func latestIncompleteRestore(c *cli.Context, cfg *config.Config) (string, error) {
	st, err := openStore(cfg, 1)
	if err != nil {
		return "", err
	}
	defer func() { _ = st.Close() }()

	sessions, err := st.ListSessions(c.Context, types.SessionRestoration, 0)
	if err != nil {
		return "", cli.Exit(fmt.Sprintf("list sessions: %v", err), exitFailure)
	}
	for _, sess := range sessions {
		if sess.Status == types.SessionFailed || sess.Status == types.SessionCancelled {
			return sess.ID, nil
		}
	}
	return "", cli.Exit("no interrupted restoration session to resume", exitFailure)
}

func runRestore(c *cli.Context, resumeSessionID string) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for restore", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	cts, err := restoreTypes(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	workers := c.Int("workers")
	if workers <= 0 {
		workers = cfg.Restore.Workers
	}
	checkpointInterval := c.Int("checkpoint-interval")
	if checkpointInterval <= 0 {
		checkpointInterval = cfg.Restore.CheckpointInterval
	}
	maxRetries := c.Int("max-retries")
	if maxRetries <= 0 {
		maxRetries = cfg.Restore.MaxRetries
	}

	logger := log.NewLogger()
	limiter := limiterFor(c, cfg.Restore.RateLimitPerMinute, cfg.Restore.RateLimitPerSecond)
	client, err := buildClient(cfg, limiter, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if ref := c.String("from-snapshot"); ref != "" {
		if err := downloadSnapshot(c, cfg, logger, ref); err != nil {
			return err
		}
	}

	if !c.Bool("dry-run") && !c.Bool("force") {
		if err := confirmRestore(client.BaseURL()); err != nil {
			return err
		}
	}

	st, err := openStore(cfg, workers)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	sourceURL := c.String("source-url")
	if sourceURL == "" {
		sourceURL = client.BaseURL()
	}
	mapper := restore.NewIDMapper(st, sourceURL, client.BaseURL())
	restorer := restore.NewRestorer(client, mapper, logger)

	orch, err := restore.NewOrchestrator(st, restorer, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	progress := progressSink()
	progress.Emit(render.ProgressEvent{Event: "restoration_started"})

	summary, err := orch.Run(ctx, restore.Options{
		Types:              cts,
		Workers:            workers,
		CheckpointInterval: checkpointInterval,
		MaxRetries:         maxRetries,
		SkipIfModified:     c.Bool("skip-if-modified"),
		DryRun:             c.Bool("dry-run"),
		ResumeSessionID:    resumeSessionID,
	})
	if err != nil {
		return runExit(err)
	}

	stats := limiter.Stats()
	orch.Metrics().AbsorbLimiterStats(stats.Total429, stats.Multiplier)
	snap := orch.Metrics().Snapshot()

	status := string(types.SessionCompleted)
	if summary.Cancelled {
		status = string(types.SessionCancelled)
	}
	publishCompletion(cfg, logger, snap, status)

	progress.Emit(render.ProgressEvent{
		Event:      "restoration_completed",
		SessionID:  summary.SessionID,
		Processed:  summary.Total,
		Errors:     summary.Errors,
		Throughput: summary.AvgItemsPerSecond,
	})

	resp := &RestoreResponse{
		SessionID:      summary.SessionID,
		Total:          summary.Total,
		Created:        summary.Created,
		Updated:        summary.Updated,
		Skipped:        summary.Skipped,
		Errors:         summary.Errors,
		DeadLettered:   summary.DeadLettered,
		Duration:       summary.Duration.Round(time.Millisecond).String(),
		ItemsPerSecond: summary.AvgItemsPerSecond,
		DryRun:         c.Bool("dry-run"),
		Cancelled:      summary.Cancelled,
	}
	for _, ts := range summary.Types {
		resp.Types = append(resp.Types, RestoreTypeResponse{
			ContentType:  ts.ContentType.String(),
			Total:        ts.Total,
			Created:      ts.Created,
			Updated:      ts.Updated,
			Skipped:      ts.Skipped,
			DeadLettered: ts.DeadLettered,
		})
	}
	if err := r.Render(resp); err != nil {
		return err
	}

	if summary.Cancelled {
		return cli.Exit("", exitInterrupted)
	}
	if summary.DeadLettered > 0 || summary.Errors > 0 {
		return cli.Exit("", exitFailure)
	}
	return nil
}

// restoreTypes resolves the type set: positional args win, then the
// config filters, then everything.
func restoreTypes(c *cli.Context, cfg *config.Config) ([]types.ContentType, error) {
	if c.NArg() > 0 {
		var cts []types.ContentType
		for _, arg := range c.Args().Slice() {
			ct, err := types.ParseContentType(arg)
			if err != nil {
				return nil, err
			}
			cts = append(cts, ct)
		}
		return cts, nil
	}
	return filteredTypes(cfg.Restore.Filters)
}

// filteredTypes applies the config restore filters to the full type set.
// OnlyTypes wins when both are set.
func filteredTypes(filters config.FiltersConfig) ([]types.ContentType, error) {
	if len(filters.OnlyTypes) > 0 {
		var cts []types.ContentType
		for _, name := range filters.OnlyTypes {
			ct, err := types.ParseContentType(name)
			if err != nil {
				return nil, err
			}
			cts = append(cts, ct)
		}
		return cts, nil
	}
	if len(filters.ExcludeTypes) == 0 {
		return nil, nil
	}
	excluded := make(map[types.ContentType]struct{}, len(filters.ExcludeTypes))
	for _, name := range filters.ExcludeTypes {
		ct, err := types.ParseContentType(name)
		if err != nil {
			return nil, err
		}
		excluded[ct] = struct{}{}
	}
	var cts []types.ContentType
	for _, ct := range types.AllContentTypes {
		if _, skip := excluded[ct]; !skip {
			cts = append(cts, ct)
		}
	}
	return cts, nil
}

// confirmRestore prompts before mutating a destination instance.
// Non-interactive runs must pass --force.
func confirmRestore(destURL string) error {
	if !isStderrTTY() {
		return cli.Exit("refusing to restore without --force in non-interactive mode", exitConfig)
	}
	fmt.Fprintf(os.Stderr, "Restore stored content into %s? [y/N] ", destURL)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return cli.Exit("aborted", exitFailure)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	default:
		return cli.Exit("aborted", exitFailure)
	}
}

// downloadSnapshot replaces the local store file with a snapshot from
// object storage before the restore opens it.
func downloadSnapshot(c *cli.Context, cfg *config.Config, logger *log.Logger, ref string) error {
	client, err := snapshotClient(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	if err := client.Download(c.Context, ref, cfg.DBPath()); err != nil {
		return runExit(fmt.Errorf("download snapshot %s: %w", ref, err))
	}
	return nil
}

// buildRestorer wires the per-item restore pipeline for DLQ retries.
func buildRestorer(c *cli.Context, cfg *config.Config, st *store.Store, logger *log.Logger) (*restore.Restorer, error) {
	limiter := limiterFor(c, cfg.Restore.RateLimitPerMinute, cfg.Restore.RateLimitPerSecond)
	client, err := buildClient(cfg, limiter, logger)
	if err != nil {
		return nil, err
	}
	sourceURL := c.String("source-url")
	if sourceURL == "" {
		sourceURL = client.BaseURL()
	}
	mapper := restore.NewIDMapper(st, sourceURL, client.BaseURL())
	return restore.NewRestorer(client, mapper, logger), nil
}
