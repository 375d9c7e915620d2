// Package cmd provides CLI commands for the lookervault binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes for all commands.
const (
	exitSuccess     = 0
	exitFailure     = 1 // general or partial failure (non-empty DLQ)
	exitConfig      = 2
	exitConnection  = 3 // connection or auth failure
	exitAPI         = 4 // API error after exhausted retries
	exitInterrupted = 130
)

// Shared flags for all commands.
var (
	// ConfigFlag points at an explicit config file. Without it the
	// LOOKERVAULT_CONFIG env var and then ./lookervault.yaml are tried.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: lookervault.yaml)",
	}

	// DBFlag overrides the store file path.
	DBFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "Path to the local store file",
	}

	// OutputFlag selects output format: json, table, yaml.
	OutputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (dlq list, status).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (dlq list, status only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		DBFlag,
		OutputFlag,
		NoColorFlag,
		TUIFlag,
	}
}
