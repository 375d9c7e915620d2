// Package extract implements the parallel extraction engine: producers
// claim offset ranges and pull pages from the API, consumers encode the
// payloads and land them in the store, with checkpoints at content-type
// completion.
package extract

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/types"
)

// nameKeys are tried in order when naming an item; the API uses different
// keys per content type (users carry display_name).
var nameKeys = []string{"title", "name", "label", "display_name", "email"}

// payloadID extracts the native id of a raw payload as a string.
func payloadID(payload *codec.Map) (string, error) {
	v, ok := payload.Get("id")
	if !ok {
		return "", fmt.Errorf("payload has no id field")
	}
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", fmt.Errorf("payload has empty id")
		}
		return id, nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	default:
		return "", fmt.Errorf("payload id has unusable type %T", v)
	}
}

// itemFromPayload encodes a raw API payload and wraps it in a ContentItem
// ready for storage.
func itemFromPayload(ct types.ContentType, payload *codec.Map, now time.Time) (*types.ContentItem, error) {
	id, err := payloadID(payload)
	if err != nil {
		return nil, err
	}

	data, err := codec.Encode(payload)
	if err != nil {
		return nil, err
	}

	name := payloadName(payload)
	if name == "" {
		// No naming key at all; the native id keeps the item storable.
		name = id
	}

	item := &types.ContentItem{
		ID:          types.CompositeID(ct, id),
		ContentType: ct,
		Name:        name,
		CreatedAt:   payloadTime(payload, "created_at", now),
		UpdatedAt:   payloadTime(payload, "updated_at", now),
		SyncedAt:    now,
		ContentSize: int64(len(data)),
		ContentData: data,
	}

	if owner, ok := payloadOwnerID(payload); ok {
		item.OwnerID = &owner
	}
	if email, ok := payload.Get("user_email"); ok {
		if s, ok := email.(string); ok && s != "" {
			item.OwnerEmail = &s
		}
	}
	return item, nil
}

func payloadName(payload *codec.Map) string {
	for _, key := range nameKeys {
		if v, ok := payload.Get(key); ok {
			if s, ok := v.(string); ok && s != "" {
				if len(s) > types.MaxNameLength {
					return s[:types.MaxNameLength]
				}
				return s
			}
		}
	}
	return ""
}

func payloadOwnerID(payload *codec.Map) (int64, bool) {
	v, ok := payload.Get("user_id")
	if !ok {
		return 0, false
	}
	switch id := v.(type) {
	case int64:
		return id, true
	case float64:
		return int64(id), true
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func payloadTime(payload *codec.Map, key string, fallback time.Time) time.Time {
	v, ok := payload.Get(key)
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
