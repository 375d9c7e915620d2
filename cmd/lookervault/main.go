// Package main provides the lookervault CLI entrypoint.
//
// Usage:
//
//	lookervault <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: general or partial failure (non-empty DLQ)
//   - 2: configuration error
//   - 3: connection or auth error
//   - 4: API error after exhausted retries
//   - 130: user cancelled
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lookervault/lookervault/cli/cmd"
	"github.com/lookervault/lookervault/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "lookervault",
		Usage:          "Backup and restore for Looker instances",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ExtractCommand(),
			cmd.RestoreCommand(),
			cmd.SnapshotCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from
// cli.Exit() so the exit code contract holds for wrapped errors too.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
