package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressEvent is one machine-readable progress line. Events are
// emitted as JSON lines on stderr so stdout stays parseable.
type ProgressEvent struct {
	Event       string  `json:"event"`
	SessionID   string  `json:"session_id,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	Processed   int64   `json:"processed,omitempty"`
	Errors      int64   `json:"errors,omitempty"`
	Throughput  float64 `json:"throughput,omitempty"`
	Message     string  `json:"message,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

// ProgressSink receives progress events during long-running operations.
type ProgressSink interface {
	Emit(event ProgressEvent)
}

// JSONProgress writes one JSON line per event.
type JSONProgress struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewJSONProgress creates a JSON-lines progress sink.
func NewJSONProgress(out io.Writer) *JSONProgress {
	return &JSONProgress{out: out, now: time.Now}
}

// Emit writes the event as one JSON line. Write errors are dropped;
// progress output must never fail the operation it narrates.
func (p *JSONProgress) Emit(event ProgressEvent) {
	if event.Timestamp == "" {
		event.Timestamp = p.now().UTC().Format(time.RFC3339)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintln(p.out, string(data))
}

// TTYProgress writes human-readable one-line updates.
type TTYProgress struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTTYProgress creates a terminal progress sink.
func NewTTYProgress(out io.Writer) *TTYProgress {
	return &TTYProgress{out: out}
}

// Emit writes one human-readable progress line.
func (p *TTYProgress) Emit(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case event.ContentType != "":
		fmt.Fprintf(p.out, "%s %s: %d processed, %d errors\n",
			event.Event, event.ContentType, event.Processed, event.Errors)
	case event.Message != "":
		fmt.Fprintf(p.out, "%s: %s\n", event.Event, event.Message)
	default:
		fmt.Fprintf(p.out, "%s: %d processed, %d errors\n",
			event.Event, event.Processed, event.Errors)
	}
}

// NopProgress drops all events.
type NopProgress struct{}

// Emit implements ProgressSink.
func (NopProgress) Emit(ProgressEvent) {}
