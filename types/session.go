package types

import (
	"fmt"
	"time"
)

// CheckpointStatus is derived from the checkpoint row, not stored.
type CheckpointStatus string

// Checkpoint status values.
const (
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointCompleted  CheckpointStatus = "completed"
	CheckpointFailed     CheckpointStatus = "failed"
)

// CheckpointState is the resumable progress document stored as JSON
// inside a checkpoint row.
type CheckpointState struct {
	LastOffset     int      `json:"last_offset"`
	TotalProcessed int64    `json:"total_processed"`
	BatchSize      int      `json:"batch_size"`
	Fields         string   `json:"fields,omitempty"`
	FolderIDs      []string `json:"folder_ids,omitempty"`
	UpdatedAfter   string   `json:"updated_after,omitempty"`
	// CompletedIDs is populated by restoration checkpoints only.
	CompletedIDs []string `json:"completed_ids,omitempty"`
}

// Checkpoint records resumable progress for one (session, content type) pair.
type Checkpoint struct {
	ID           int64
	SessionID    string
	ContentType  ContentType
	State        CheckpointState
	StartedAt    time.Time
	CompletedAt  *time.Time
	ItemCount    int64
	ErrorMessage string
}

// Status derives the checkpoint status from completion and error fields.
func (c *Checkpoint) Status() CheckpointStatus {
	if c.ErrorMessage != "" {
		return CheckpointFailed
	}
	if c.CompletedAt != nil {
		return CheckpointCompleted
	}
	return CheckpointInProgress
}

// SessionKind distinguishes extraction from restoration sessions.
type SessionKind string

// Session kinds.
const (
	SessionExtraction  SessionKind = "extraction"
	SessionRestoration SessionKind = "restoration"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

// Session status values.
const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is the outer audit record of an extraction or restoration run.
type Session struct {
	ID          string
	Kind        SessionKind
	Status      SessionStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	TotalItems  int64
	ErrorCount  int64
	// Config and Metadata are free-form JSON documents.
	Config   map[string]any
	Metadata map[string]any
}

// Validate checks session invariants before persistence.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session has empty id")
	}
	if s.Kind != SessionExtraction && s.Kind != SessionRestoration {
		return fmt.Errorf("session %s: unknown kind %q", s.ID, s.Kind)
	}
	if s.Status == SessionCompleted && s.CompletedAt == nil {
		return fmt.Errorf("session %s: completed without completed_at", s.ID)
	}
	return nil
}

// IDMapping translates a source-instance Looker ID to its destination
// counterpart. Unique on (content type, source id, destination URL).
type IDMapping struct {
	ContentType            ContentType
	SourceID               string
	DestinationID          string
	SourceInstanceURL      string
	DestinationInstanceURL string
	CreatedAt              time.Time
}

// DLQEntry is a durable record of a failed restoration item, holding the
// original payload for manual retry.
type DLQEntry struct {
	ID           int64
	SessionID    string
	ContentType  ContentType
	ContentID    string
	ContentData  []byte
	ErrorType    string
	ErrorMessage string
	RetryCount   int
	FailedAt     time.Time
}
