// Package adapter defines the notification boundary for session completion.
//
// Adapters publish session completion notifications to downstream systems
// (cache invalidators, audit pipelines, chat hooks). The CLI owns adapter
// lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/lookervault/lookervault/metrics"
)

// SessionCompletedEvent is the payload published when an extraction or
// restoration session reaches a terminal state.
type SessionCompletedEvent struct {
	EventType      string `json:"event_type"` // always "session_completed"
	SessionID      string `json:"session_id"`
	SessionKind    string `json:"session_kind"` // extract or restore
	InstanceURL    string `json:"instance_url"`
	Status         string `json:"status"` // completed, failed, cancelled
	ItemsProcessed int64  `json:"items_processed"`
	ItemsCreated   int64  `json:"items_created,omitempty"`
	ItemsUpdated   int64  `json:"items_updated,omitempty"`
	ItemsSkipped   int64  `json:"items_skipped,omitempty"`
	DeadLettered   int64  `json:"dead_lettered,omitempty"`
	Errors         int64  `json:"errors"`
	Timestamp      string `json:"timestamp"` // RFC 3339
	DurationMs     int64  `json:"duration_ms"`
}

// FromMetrics builds the completion event from a session's final metrics.
func FromMetrics(snap metrics.Snapshot, status string) *SessionCompletedEvent {
	return &SessionCompletedEvent{
		EventType:      "session_completed",
		SessionID:      snap.SessionID,
		SessionKind:    snap.SessionKind,
		InstanceURL:    snap.InstanceURL,
		Status:         status,
		ItemsProcessed: snap.ItemsProcessed,
		ItemsCreated:   snap.ItemsCreated,
		ItemsUpdated:   snap.ItemsUpdated,
		ItemsSkipped:   snap.ItemsSkipped,
		DeadLettered:   snap.ItemsDeadLettered,
		Errors:         snap.ErrorCount,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		DurationMs:     snap.Elapsed.Milliseconds(),
	}
}

// Adapter publishes session completion events to a downstream system.
// Implementations must be safe for single use per session.
type Adapter interface {
	// Publish sends a session completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
