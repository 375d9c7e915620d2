package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/lookervault/lookervault/cli/reader"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		// Supported: dlq and status views
		{"dlq_list", true},
		{"status_session", true},
		{"status_sessions", true},

		// Not supported: mutating commands
		{"extract", false},
		{"restore", false},
		{"snapshot_upload", false},

		// Not supported: version
		{"version", false},

		// Not supported: unknown
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			got := IsTUISupported(tt.viewType)
			if got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	views := SupportedTUIViews()

	if len(views) != 3 {
		t.Errorf("SupportedTUIViews() returned %d views, expected 3", len(views))
	}

	// All returned views should be supported
	for _, v := range views {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	err := Run("extract", nil)
	if err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func TestDLQViewListsEntries(t *testing.T) {
	entries := []reader.DLQItem{
		{ID: 1, ContentType: "dashboard", ContentID: "dashboard::42", ErrorType: "ValidationError"},
		{ID: 2, ContentType: "look", ContentID: "look::7", ErrorType: "APIError"},
	}
	out := NewDLQModel("dlq_list", entries).View()

	for _, want := range []string{"dashboard::42", "look::7", "ValidationError"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}

func TestDLQViewEmpty(t *testing.T) {
	out := NewDLQModel("dlq_list", []reader.DLQItem(nil)).View()
	if !strings.Contains(out, "(no entries)") {
		t.Errorf("empty view missing placeholder:\n%s", out)
	}
}

func TestStatusViewRendersSession(t *testing.T) {
	started := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	data := &reader.SessionStatusResponse{
		SessionID:  "sess-1",
		Kind:       "extraction",
		Status:     "completed",
		StartedAt:  started,
		TotalItems: 340,
		Checkpoints: []reader.CheckpointView{
			{ContentType: "dashboard", Status: "completed", ItemCount: 250, StartedAt: started},
		},
	}
	out := NewStatusModel("status_session", data).View()

	for _, want := range []string{"sess-1", "extraction", "dashboard", "250"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}

func TestStatusViewWrongDataType(t *testing.T) {
	out := NewStatusModel("status_session", "not-a-response").View()
	if !strings.Contains(out, "Invalid data type") {
		t.Errorf("expected invalid data message, got:\n%s", out)
	}
}
