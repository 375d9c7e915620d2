package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lookervault/lookervault/cli/config"
	"github.com/lookervault/lookervault/looker"
	"github.com/lookervault/lookervault/types"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestParseTypes(t *testing.T) {
	tests := []struct {
		input   string
		want    []types.ContentType
		wantErr bool
	}{
		{"", nil, false},
		{"dashboard", []types.ContentType{types.ContentTypeDashboard}, false},
		{"dashboards,looks", []types.ContentType{types.ContentTypeDashboard, types.ContentTypeLook}, false},
		{" folder , user ", []types.ContentType{types.ContentTypeFolder, types.ContentTypeUser}, false},
		{"dashboard,,look", []types.ContentType{types.ContentTypeDashboard, types.ContentTypeLook}, false},
		{"widgets", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseTypes(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTypes(%q): %v", tt.input, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFilteredTypes_OnlyWins(t *testing.T) {
	cts, err := filteredTypes(config.FiltersConfig{
		OnlyTypes:    []string{"dashboard", "look"},
		ExcludeTypes: []string{"dashboard"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cts) != 2 || cts[0] != types.ContentTypeDashboard || cts[1] != types.ContentTypeLook {
		t.Errorf("got %v", cts)
	}
}

func TestFilteredTypes_Exclude(t *testing.T) {
	cts, err := filteredTypes(config.FiltersConfig{ExcludeTypes: []string{"user", "group"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(cts) != len(types.AllContentTypes)-2 {
		t.Fatalf("got %d types, want %d", len(cts), len(types.AllContentTypes)-2)
	}
	for _, ct := range cts {
		if ct == types.ContentTypeUser || ct == types.ContentTypeGroup {
			t.Errorf("excluded type %v present", ct)
		}
	}
}

func TestFilteredTypes_Empty(t *testing.T) {
	cts, err := filteredTypes(config.FiltersConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if cts != nil {
		t.Errorf("empty filters should yield nil (all types), got %v", cts)
	}
}

func TestRunExit_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"cancelled", context.Canceled, exitInterrupted},
		{"auth", &looker.StatusError{Code: 401}, exitConnection},
		{"forbidden", &looker.StatusError{Code: 403}, exitConnection},
		{"server error", &looker.StatusError{Code: 500}, exitAPI},
		{"validation", &looker.StatusError{Code: 422}, exitAPI},
		{"retries exhausted", looker.ErrRetriesExhausted, exitAPI},
		{"plain", errors.New("boom"), exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runExit(tt.err)
			var exitCoder cli.ExitCoder
			if !errors.As(err, &exitCoder) {
				t.Fatalf("runExit should return cli.ExitCoder, got %T", err)
			}
			if exitCoder.ExitCode() != tt.want {
				t.Errorf("exit code = %d, want %d", exitCoder.ExitCode(), tt.want)
			}
		})
	}
}

func TestRunExit_Nil(t *testing.T) {
	if err := runExit(nil); err != nil {
		t.Errorf("runExit(nil) = %v", err)
	}
}

func TestBuildAdapter_None(t *testing.T) {
	ad, err := buildAdapter(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if ad != nil {
		t.Error("no adapter configured should yield nil")
	}
}

func TestBuildAdapter_Redis(t *testing.T) {
	cfg := &config.Config{}
	cfg.Adapter.Type = "redis"
	cfg.Adapter.URL = "redis://localhost:6379/0"

	ad, err := buildAdapter(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if ad == nil {
		t.Fatal("expected adapter")
	}
	_ = ad.Close()
}

func TestBuildAdapter_Webhook(t *testing.T) {
	cfg := &config.Config{}
	cfg.Adapter.Type = "webhook"
	cfg.Adapter.URL = "https://hooks.example.com/sessions"

	ad, err := buildAdapter(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if ad == nil {
		t.Fatal("expected adapter")
	}
	_ = ad.Close()
}

func TestBuildAdapter_UnknownType(t *testing.T) {
	cfg := &config.Config{}
	cfg.Adapter.Type = "carrier-pigeon"

	if _, err := buildAdapter(cfg); err == nil {
		t.Error("unknown adapter type should error")
	}
}

// fakeSessionLister serves canned sessions for cutoff derivation.
type fakeSessionLister struct {
	sessions []*types.Session
}

func (f *fakeSessionLister) ListSessions(_ context.Context, _ types.SessionKind, _ int) ([]*types.Session, error) {
	return f.sessions, nil
}

func testContext(t *testing.T, args map[string]string, bools map[string]bool) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("updated-after", "", "")
	set.Bool("incremental", false, "")
	c := cli.NewContext(nil, set, nil)
	c.Context = context.Background()
	for k, v := range args {
		if err := c.Set(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range bools {
		if v {
			if err := c.Set(k, "true"); err != nil {
				t.Fatal(err)
			}
		}
	}
	return c
}

func TestResolveUpdatedAfter_Explicit(t *testing.T) {
	c := testContext(t, map[string]string{"updated-after": "2026-08-01T00:00:00Z"}, nil)

	got, err := resolveUpdatedAfter(c, &fakeSessionLister{})
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolveUpdatedAfter_InvalidTimestamp(t *testing.T) {
	c := testContext(t, map[string]string{"updated-after": "yesterday"}, nil)

	if _, err := resolveUpdatedAfter(c, &fakeSessionLister{}); err == nil {
		t.Error("invalid timestamp should error")
	}
}

func TestResolveUpdatedAfter_IncrementalUsesLastCompleted(t *testing.T) {
	started := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	lister := &fakeSessionLister{sessions: []*types.Session{
		{ID: "s2", Status: types.SessionFailed, StartedAt: started.Add(time.Hour)},
		{ID: "s1", Status: types.SessionCompleted, StartedAt: started},
	}}
	c := testContext(t, nil, map[string]bool{"incremental": true})

	got, err := resolveUpdatedAfter(c, lister)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(started) {
		t.Errorf("got %v, want %v", got, started)
	}
}

func TestResolveUpdatedAfter_IncrementalNoHistory(t *testing.T) {
	c := testContext(t, nil, map[string]bool{"incremental": true})

	got, err := resolveUpdatedAfter(c, &fakeSessionLister{})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("no completed session should degrade to full extraction, got %v", got)
	}
}

func TestResolveUpdatedAfter_Neither(t *testing.T) {
	c := testContext(t, nil, nil)

	got, err := resolveUpdatedAfter(c, &fakeSessionLister{})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
