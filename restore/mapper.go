package restore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/store"
	"github.com/lookervault/lookervault/types"
)

// refField describes one foreign-key field inside a payload.
type refField struct {
	key  string
	ct   types.ContentType
	list bool
}

// refFields lists, per content type, the payload fields that carry ids
// of other content and must be remapped for the destination.
var refFields = map[types.ContentType][]refField{
	types.ContentTypeDashboard: {
		{key: "folder_id", ct: types.ContentTypeFolder},
		{key: "user_id", ct: types.ContentTypeUser},
	},
	types.ContentTypeLook: {
		{key: "folder_id", ct: types.ContentTypeFolder},
		{key: "user_id", ct: types.ContentTypeUser},
	},
	types.ContentTypeFolder: {
		{key: "parent_id", ct: types.ContentTypeFolder},
		{key: "creator_id", ct: types.ContentTypeUser},
	},
	types.ContentTypeUser: {
		{key: "role_ids", ct: types.ContentTypeRole, list: true},
		{key: "group_ids", ct: types.ContentTypeGroup, list: true},
	},
	types.ContentTypeGroup: {
		{key: "role_ids", ct: types.ContentTypeRole, list: true},
	},
	types.ContentTypeRole: {
		{key: "permission_set_id", ct: types.ContentTypePermissionSet},
		{key: "model_set_id", ct: types.ContentTypeModelSet},
	},
	types.ContentTypeScheduledPlan: {
		{key: "dashboard_id", ct: types.ContentTypeDashboard},
		{key: "look_id", ct: types.ContentTypeLook},
		{key: "user_id", ct: types.ContentTypeUser},
	},
	types.ContentTypeBoard: {
		{key: "user_id", ct: types.ContentTypeUser},
	},
}

// TranslationReport summarizes one payload translation.
type TranslationReport struct {
	Translated int
	// Unmapped references are left unchanged in the payload; the API
	// surfaces them as validation errors downstream.
	Unmapped []string
}

// IDMapper resolves source-instance ids to destination ids using the
// persisted mapping table, with a write-through cache. Query ids inside
// dashboard elements are session-scoped: the first occurrence defines the
// canonical destination id.
type IDMapper struct {
	store     *store.Store
	sourceURL string
	destURL   string

	mu       sync.Mutex
	cache    map[string]string
	queryIDs map[string]string
}

// NewIDMapper creates a mapper between two instance URLs.
func NewIDMapper(st *store.Store, sourceURL, destURL string) *IDMapper {
	return &IDMapper{
		store:     st,
		sourceURL: sourceURL,
		destURL:   destURL,
		cache:     make(map[string]string),
		queryIDs:  make(map[string]string),
	}
}

// SameInstance reports whether translation is a no-op.
func (m *IDMapper) SameInstance() bool {
	return m.sourceURL == m.destURL
}

// DestinationID resolves a mapped destination id. ok=false means no
// mapping has been recorded.
func (m *IDMapper) DestinationID(ctx context.Context, ct types.ContentType, sourceID string) (string, bool, error) {
	key := cacheKey(ct, sourceID)
	m.mu.Lock()
	if dest, hit := m.cache[key]; hit {
		m.mu.Unlock()
		return dest, true, nil
	}
	m.mu.Unlock()

	dest, err := m.store.DestinationID(ctx, ct, sourceID, m.destURL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	m.mu.Lock()
	m.cache[key] = dest
	m.mu.Unlock()
	return dest, true, nil
}

// RecordMapping persists a new source-to-destination id pair.
func (m *IDMapper) RecordMapping(ctx context.Context, ct types.ContentType, sourceID, destID string) error {
	err := m.store.PutIDMapping(ctx, &types.IDMapping{
		ContentType:            ct,
		SourceID:               sourceID,
		DestinationID:          destID,
		SourceInstanceURL:      m.sourceURL,
		DestinationInstanceURL: m.destURL,
		CreatedAt:              time.Now(),
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[cacheKey(ct, sourceID)] = destID
	m.mu.Unlock()
	return nil
}

// RecordQueryMapping registers a canonical destination query id for this
// session. Not persisted: query ids are payload-embedded, not entities.
func (m *IDMapper) RecordQueryMapping(sourceID, destID string) {
	m.mu.Lock()
	m.queryIDs[sourceID] = destID
	m.mu.Unlock()
}

// TranslatePayload rewrites foreign-key fields in place using recorded
// mappings. Unmappable references are left unchanged and reported. When
// source and destination URLs match, translation is a no-op.
func (m *IDMapper) TranslatePayload(ctx context.Context, ct types.ContentType, payload *codec.Map) (*TranslationReport, error) {
	report := &TranslationReport{}
	if m.SameInstance() {
		return report, nil
	}

	for _, field := range refFields[ct] {
		if err := m.translateField(ctx, payload, field, report); err != nil {
			return nil, err
		}
	}

	if ct == types.ContentTypeDashboard {
		if err := m.translateDashboardElements(ctx, payload, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (m *IDMapper) translateField(ctx context.Context, payload *codec.Map, field refField, report *TranslationReport) error {
	v, ok := payload.Get(field.key)
	if !ok || v == nil {
		return nil
	}

	if field.list {
		list, ok := v.([]any)
		if !ok {
			return nil
		}
		out := make([]any, len(list))
		for i, elem := range list {
			mapped, err := m.mapValue(ctx, field.ct, elem, field.key, report)
			if err != nil {
				return err
			}
			out[i] = mapped
		}
		payload.Set(field.key, out)
		return nil
	}

	mapped, err := m.mapValue(ctx, field.ct, v, field.key, report)
	if err != nil {
		return err
	}
	payload.Set(field.key, mapped)
	return nil
}

// translateDashboardElements rewrites look_id and query_id references
// inside the embedded dashboard_elements list.
func (m *IDMapper) translateDashboardElements(ctx context.Context, payload *codec.Map, report *TranslationReport) error {
	v, ok := payload.Get("dashboard_elements")
	if !ok {
		return nil
	}
	elements, ok := v.([]any)
	if !ok {
		return nil
	}

	for _, raw := range elements {
		elem, ok := raw.(*codec.Map)
		if !ok {
			continue
		}
		if lookID, ok := elem.Get("look_id"); ok && lookID != nil {
			mapped, err := m.mapValue(ctx, types.ContentTypeLook, lookID, "look_id", report)
			if err != nil {
				return err
			}
			elem.Set("look_id", mapped)
		}
		if queryID, ok := elem.Get("query_id"); ok && queryID != nil {
			src, ok := idString(queryID)
			if !ok {
				continue
			}
			m.mu.Lock()
			dest, hit := m.queryIDs[src]
			m.mu.Unlock()
			if hit {
				elem.Set("query_id", dest)
				report.Translated++
			} else {
				report.Unmapped = append(report.Unmapped, "query_id="+src)
			}
		}
	}
	return nil
}

// mapValue resolves one reference value, returning the destination id or
// the original value when unmapped.
func (m *IDMapper) mapValue(ctx context.Context, ct types.ContentType, v any, key string, report *TranslationReport) (any, error) {
	src, ok := idString(v)
	if !ok {
		return v, nil
	}
	dest, found, err := m.DestinationID(ctx, ct, src)
	if err != nil {
		return nil, err
	}
	if !found {
		report.Unmapped = append(report.Unmapped, key+"="+src)
		return v, nil
	}
	report.Translated++
	return dest, nil
}

func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case int64:
		return strconv.FormatInt(id, 10), true
	case float64:
		return strconv.FormatInt(int64(id), 10), true
	default:
		return "", false
	}
}

func cacheKey(ct types.ContentType, sourceID string) string {
	return types.CompositeID(ct, sourceID)
}
