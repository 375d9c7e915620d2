// Package types defines the shared value types for LookerVault: content
// items, checkpoints, sessions, ID mappings, and dead-letter entries.
//
// It is a leaf package with no internal dependencies.
package types

import (
	"fmt"
	"strings"
	"time"
)

// ContentType identifies a category of Looker artifact.
// The integer codes are part of the on-disk format and must not change.
type ContentType int

// Content type codes. Stable on disk.
const (
	ContentTypeDashboard     ContentType = 1
	ContentTypeLook          ContentType = 2
	ContentTypeLookMLModel   ContentType = 3
	ContentTypeExplore       ContentType = 4
	ContentTypeFolder        ContentType = 5
	ContentTypeBoard         ContentType = 6
	ContentTypeUser          ContentType = 7
	ContentTypeGroup         ContentType = 8
	ContentTypeRole          ContentType = 9
	ContentTypePermissionSet ContentType = 10
	ContentTypeModelSet      ContentType = 11
	ContentTypeScheduledPlan ContentType = 12
)

// AllContentTypes lists every content type in code order.
var AllContentTypes = []ContentType{
	ContentTypeDashboard,
	ContentTypeLook,
	ContentTypeLookMLModel,
	ContentTypeExplore,
	ContentTypeFolder,
	ContentTypeBoard,
	ContentTypeUser,
	ContentTypeGroup,
	ContentTypeRole,
	ContentTypePermissionSet,
	ContentTypeModelSet,
	ContentTypeScheduledPlan,
}

var contentTypeNames = map[ContentType]string{
	ContentTypeDashboard:     "dashboard",
	ContentTypeLook:          "look",
	ContentTypeLookMLModel:   "lookml_model",
	ContentTypeExplore:       "explore",
	ContentTypeFolder:        "folder",
	ContentTypeBoard:         "board",
	ContentTypeUser:          "user",
	ContentTypeGroup:         "group",
	ContentTypeRole:          "role",
	ContentTypePermissionSet: "permission_set",
	ContentTypeModelSet:      "model_set",
	ContentTypeScheduledPlan: "scheduled_plan",
}

// String returns the canonical type name (e.g. "dashboard").
func (t ContentType) String() string {
	if name, ok := contentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("content_type(%d)", int(t))
}

// Valid reports whether t is one of the twelve known codes.
func (t ContentType) Valid() bool {
	_, ok := contentTypeNames[t]
	return ok
}

// ParseContentType resolves a type name to its code.
// Accepts singular and plural forms ("dashboard", "dashboards").
func ParseContentType(name string) (ContentType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.TrimSuffix(normalized, "s")
	// permission_sets / model_sets trim to *_set; scheduled_plans to *_plan
	for t, n := range contentTypeNames {
		if normalized == strings.TrimSuffix(n, "s") || normalized == n {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown content type: %q", name)
}

// CompositeID builds the globally unique content item ID,
// "{type_name}::{looker_id}".
func CompositeID(t ContentType, lookerID string) string {
	return t.String() + "::" + lookerID
}

// SplitID splits a composite content item ID into its type and Looker ID.
func SplitID(id string) (ContentType, string, error) {
	name, lookerID, ok := strings.Cut(id, "::")
	if !ok {
		return 0, "", fmt.Errorf("malformed content id: %q", id)
	}
	t, err := ParseContentType(name)
	if err != nil {
		return 0, "", fmt.Errorf("malformed content id %q: %w", id, err)
	}
	return t, lookerID, nil
}

// MaxNameLength is the maximum length of a ContentItem name.
const MaxNameLength = 255

// ContentItem is one Looker artifact held in the store.
//
// ContentData is the deterministically encoded original API payload;
// ContentSize must equal len(ContentData).
type ContentItem struct {
	ID          string      `json:"id"`
	ContentType ContentType `json:"content_type"`
	Name        string      `json:"name"`
	OwnerID     *int64      `json:"owner_id,omitempty"`
	OwnerEmail  *string     `json:"owner_email,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	SyncedAt    time.Time   `json:"synced_at"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
	ContentSize int64       `json:"content_size"`
	ContentData []byte      `json:"-"`
}

// Deleted reports whether the item is soft-deleted.
func (i *ContentItem) Deleted() bool {
	return i.DeletedAt != nil
}

// Validate checks the item invariants before it is persisted.
func (i *ContentItem) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("content item has empty id")
	}
	if _, _, err := SplitID(i.ID); err != nil {
		return err
	}
	if !i.ContentType.Valid() {
		return fmt.Errorf("content item %s: invalid content type %d", i.ID, int(i.ContentType))
	}
	if i.Name == "" {
		return fmt.Errorf("content item %s: empty name", i.ID)
	}
	if len(i.Name) > MaxNameLength {
		return fmt.Errorf("content item %s: name exceeds %d chars", i.ID, MaxNameLength)
	}
	if i.ContentSize != int64(len(i.ContentData)) {
		return fmt.Errorf("content item %s: content_size %d != len(content_data) %d",
			i.ID, i.ContentSize, len(i.ContentData))
	}
	return nil
}
