// Package reader provides the read-side data access layer for the CLI.
//
// This package isolates status, dlq, and stats queries from store
// internals. All read-only commands use this wrapper exclusively; it
// never mutates the store except for explicit dlq retry/clear flows,
// which live in the command layer.
package reader

import (
	"encoding/json"
	"time"
)

// CheckpointView is one content type's progress within a session.
type CheckpointView struct {
	ContentType string     `json:"content_type"`
	Status      string     `json:"status"`
	ItemCount   int64      `json:"item_count"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// SessionStatusResponse is the full status of one session.
type SessionStatusResponse struct {
	SessionID   string           `json:"session_id"`
	Kind        string           `json:"kind"`
	Status      string           `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	TotalItems  int64            `json:"total_items"`
	ErrorCount  int64            `json:"error_count"`
	DLQCount    int64            `json:"dlq_count"`
	Checkpoints []CheckpointView `json:"checkpoints"`
}

// SessionListItem is one row of `restore status --all`.
type SessionListItem struct {
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	TotalItems int64     `json:"total_items"`
	ErrorCount int64     `json:"error_count"`
}

// ListSessionsOptions filters ListSessions.
type ListSessionsOptions struct {
	Kind  string
	Limit int
}

// DLQItem is one row of `restore dlq list`.
type DLQItem struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	ContentType  string    `json:"content_type"`
	ContentID    string    `json:"content_id"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	RetryCount   int       `json:"retry_count"`
	FailedAt     time.Time `json:"failed_at"`
}

// DLQListOptions filters DLQList.
type DLQListOptions struct {
	SessionID string
	ErrorType string
	Limit     int
}

// DLQDetail is `restore dlq show`: the list row plus the decoded payload.
type DLQDetail struct {
	DLQItem
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionStats summarizes terminal session states for the status TUI.
type SessionStats struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// StoreStatsResponse summarizes store contents.
type StoreStatsResponse struct {
	ActiveByType  map[string]int64 `json:"active_by_type"`
	DeletedByType map[string]int64 `json:"deleted_by_type,omitempty"`
	TotalBytes    int64            `json:"total_bytes"`
	DLQCount      int64            `json:"dlq_count"`
	SessionCount  int64            `json:"session_count"`
}
