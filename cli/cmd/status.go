package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/lookervault/lookervault/cli/reader"
	"github.com/lookervault/lookervault/cli/render"
	"github.com/lookervault/lookervault/types"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show restoration session status",
		ArgsUsage: "[session-id]",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "all",
				Usage: "List all sessions instead of one",
			},
		),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
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

	rd := reader.NewStoreReader(st)

	if c.Bool("all") {
		sessions, err := rd.ListSessions(c.Context, reader.ListSessionsOptions{})
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		if c.Bool("tui") {
			stats, err := rd.SessionStats(c.Context)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			return r.RenderTUI("status_sessions", stats)
		}
		return r.Render(sessions)
	}

	var resp *reader.SessionStatusResponse
	if sessionID := c.Args().First(); sessionID != "" {
		resp, err = rd.SessionStatus(c.Context, sessionID)
	} else {
		resp, err = rd.LatestSessionStatus(c.Context, string(types.SessionRestoration))
	}
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	if c.Bool("tui") {
		return r.RenderTUI("status_session", resp)
	}
	return r.Render(resp)
}
