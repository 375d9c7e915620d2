package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestJSONProgressEmitsOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	p := NewJSONProgress(&buf)
	p.now = func() time.Time {
		return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	}

	p.Emit(ProgressEvent{Event: "type_started", ContentType: "dashboard"})
	p.Emit(ProgressEvent{Event: "type_completed", ContentType: "dashboard", Processed: 250})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}

	var first ProgressEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0 is not JSON: %v", err)
	}
	if first.Event != "type_started" || first.ContentType != "dashboard" {
		t.Errorf("first event = %+v", first)
	}
	if first.Timestamp != "2026-08-24T12:00:00Z" {
		t.Errorf("Timestamp = %q", first.Timestamp)
	}

	var second ProgressEvent
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("line 1 is not JSON: %v", err)
	}
	if second.Processed != 250 {
		t.Errorf("Processed = %d, want 250", second.Processed)
	}
}

func TestTTYProgressHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	p := NewTTYProgress(&buf)

	p.Emit(ProgressEvent{Event: "extracting", ContentType: "look", Processed: 90, Errors: 1})

	got := buf.String()
	if !strings.Contains(got, "look") || !strings.Contains(got, "90") {
		t.Errorf("unexpected output: %s", got)
	}
	if strings.Contains(got, "{") {
		t.Errorf("TTY output should not be JSON: %s", got)
	}
}
