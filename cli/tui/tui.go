package tui

import (
	"fmt"
	"strings"
)

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	// Validate TUI is only used for supported commands
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	// Route to appropriate TUI
	if strings.HasPrefix(viewType, "dlq_") {
		return RunDLQTUI(viewType, data)
	}
	if strings.HasPrefix(viewType, "status_") {
		return RunStatusTUI(viewType, data)
	}

	return fmt.Errorf("unknown view type: %s", viewType)
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only the read-only dlq and status views support TUI.
func IsTUISupported(viewType string) bool {
	supportedPrefixes := []string{
		"dlq_",
		"status_",
	}

	for _, prefix := range supportedPrefixes {
		if strings.HasPrefix(viewType, prefix) {
			return true
		}
	}

	return false
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{
		"dlq_list",
		"status_session",
		"status_sessions",
	}
}
