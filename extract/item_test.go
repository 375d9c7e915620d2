package extract

import (
	"testing"
	"time"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/types"
)

func TestItemFromPayload(t *testing.T) {
	m := codec.NewMap()
	m.Set("id", int64(42))
	m.Set("title", "Revenue Overview")
	m.Set("user_id", int64(7))
	m.Set("user_email", "ops@example.com")
	m.Set("created_at", "2025-01-02T03:04:05Z")
	m.Set("updated_at", "2026-06-07T08:09:10Z")

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	item, err := itemFromPayload(types.ContentTypeDashboard, m, now)
	if err != nil {
		t.Fatalf("itemFromPayload error: %v", err)
	}

	if item.ID != "dashboard::42" {
		t.Errorf("ID = %q, want dashboard::42", item.ID)
	}
	if item.Name != "Revenue Overview" {
		t.Errorf("Name = %q", item.Name)
	}
	if item.OwnerID == nil || *item.OwnerID != 7 {
		t.Errorf("OwnerID = %v, want 7", item.OwnerID)
	}
	if item.OwnerEmail == nil || *item.OwnerEmail != "ops@example.com" {
		t.Errorf("OwnerEmail = %v", item.OwnerEmail)
	}
	if !item.CreatedAt.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", item.CreatedAt)
	}
	if !item.SyncedAt.Equal(now) {
		t.Errorf("SyncedAt = %v, want %v", item.SyncedAt, now)
	}
	if err := item.Validate(); err != nil {
		t.Errorf("Validate error: %v", err)
	}

	// The stored blob decodes back to the original payload.
	decoded, err := codec.Decode(item.ContentData)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	got := decoded.(*codec.Map)
	if title, _ := got.Get("title"); title != "Revenue Overview" {
		t.Errorf("decoded title = %v", title)
	}
}

func TestItemFromPayloadNameFallbacks(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"title", "by title"},
		{"name", "by name"},
		{"label", "by label"},
		{"display_name", "by display name"},
		{"email", "by email"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			m := codec.NewMap()
			m.Set("id", "1")
			m.Set(tc.key, tc.want)
			item, err := itemFromPayload(types.ContentTypeBoard, m, time.Now())
			if err != nil {
				t.Fatalf("itemFromPayload error: %v", err)
			}
			if item.Name != tc.want {
				t.Errorf("Name = %q, want %q", item.Name, tc.want)
			}
		})
	}
}

func TestItemFromPayloadUserShape(t *testing.T) {
	m := codec.NewMap()
	m.Set("id", int64(7))
	m.Set("display_name", "Ada Lovelace")
	m.Set("email", "ada@example.com")

	item, err := itemFromPayload(types.ContentTypeUser, m, time.Now())
	if err != nil {
		t.Fatalf("itemFromPayload error: %v", err)
	}
	if item.Name != "Ada Lovelace" {
		t.Errorf("Name = %q, want %q", item.Name, "Ada Lovelace")
	}
	if err := item.Validate(); err != nil {
		t.Errorf("Validate error: %v", err)
	}
}

func TestItemFromPayloadNameDefaultsToID(t *testing.T) {
	m := codec.NewMap()
	m.Set("id", "nameless-9")

	item, err := itemFromPayload(types.ContentTypeScheduledPlan, m, time.Now())
	if err != nil {
		t.Fatalf("itemFromPayload error: %v", err)
	}
	if item.Name != "nameless-9" {
		t.Errorf("Name = %q, want the native id", item.Name)
	}
	if err := item.Validate(); err != nil {
		t.Errorf("Validate error: %v", err)
	}
}

func TestItemFromPayloadRejectsMissingID(t *testing.T) {
	m := codec.NewMap()
	m.Set("title", "orphan")
	if _, err := itemFromPayload(types.ContentTypeLook, m, time.Now()); err == nil {
		t.Error("itemFromPayload accepted payload without id")
	}
}

func TestItemFromPayloadTruncatesLongNames(t *testing.T) {
	long := make([]byte, types.MaxNameLength+50)
	for i := range long {
		long[i] = 'x'
	}
	m := codec.NewMap()
	m.Set("id", "1")
	m.Set("name", string(long))

	item, err := itemFromPayload(types.ContentTypeFolder, m, time.Now())
	if err != nil {
		t.Fatalf("itemFromPayload error: %v", err)
	}
	if len(item.Name) != types.MaxNameLength {
		t.Errorf("Name length = %d, want %d", len(item.Name), types.MaxNameLength)
	}
}
