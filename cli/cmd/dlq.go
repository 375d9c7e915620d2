package cmd

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/lookervault/lookervault/cli/reader"
	"github.com/lookervault/lookervault/cli/render"
	"github.com/lookervault/lookervault/log"
	"github.com/lookervault/lookervault/restore"
)

// DLQCommand returns the dlq command with subcommands.
func DLQCommand() *cli.Command {
	return &cli.Command{
		Name:  "dlq",
		Usage: "Inspect and retry dead-lettered restore items",
		Subcommands: []*cli.Command{
			dlqListCommand(),
			dlqShowCommand(),
			dlqRetryCommand(),
			dlqClearCommand(),
		},
	}
}

func dlqListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List dead-letter entries",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "session",
				Usage: "Filter by session ID",
			},
			&cli.StringFlag{
				Name:  "error-type",
				Usage: "Filter by error type (e.g. ValidationError)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of entries to return (0 = no limit)",
			},
		),
		Action: dlqListAction,
	}
}

func dlqListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, 1)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	entries, err := reader.NewStoreReader(st).DLQList(c.Context, reader.DLQListOptions{
		SessionID: c.String("session"),
		ErrorType: c.String("error-type"),
		Limit:     c.Int("limit"),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	if c.Bool("tui") {
		return r.RenderTUI("dlq_list", entries)
	}
	return r.Render(entries)
}

func dlqShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one dead-letter entry with its payload",
		ArgsUsage: "<id>",
		Flags:     ReadOnlyFlags(),
		Action:    dlqShowAction,
	}
}

func dlqShowAction(c *cli.Context) error {
	id, err := dlqID(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, 1)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	detail, err := reader.NewStoreReader(st).DLQShow(c.Context, id)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return r.Render(detail)
}

func dlqRetryCommand() *cli.Command {
	return &cli.Command{
		Name:      "retry",
		Usage:     "Retry one dead-letter entry against the destination",
		ArgsUsage: "<id>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "source-url",
				Usage: "Instance the store was extracted from (default: destination URL)",
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
		Action: dlqRetryAction,
	}
}

func dlqRetryAction(c *cli.Context) error {
	id, err := dlqID(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, 1)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	logger := log.NewLogger()
	restorer, err := buildRestorer(c, cfg, st, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := restore.RetryDLQ(ctx, st, restorer, id)
	if err != nil {
		return runExit(fmt.Errorf("retry %d: %w", id, err))
	}
	return r.Render(map[string]any{
		"id":             id,
		"operation":      string(res.Operation),
		"destination_id": res.DestinationID,
	})
}

func dlqClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete dead-letter entries",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "session",
				Usage: "Only clear entries for this session ID",
			},
		),
		Action: dlqClearAction,
	}
}

func dlqClearAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, 1)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cleared, err := st.DLQClear(c.Context, c.String("session"))
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return r.Render(map[string]any{"cleared": cleared})
}

// dlqID parses the required entry id argument.
func dlqID(c *cli.Context) (int64, error) {
	if c.NArg() < 1 {
		return 0, cli.Exit("dlq entry id required", exitConfig)
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return 0, cli.Exit(fmt.Sprintf("invalid dlq entry id %q", c.Args().First()), exitConfig)
	}
	return id, nil
}
