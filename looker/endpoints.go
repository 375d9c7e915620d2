package looker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/types"
)

// endpoint describes how one content type maps onto the REST surface.
type endpoint struct {
	// collection is the list/create path, e.g. "/dashboards".
	collection string
	// search is the paginated search path when the API has one; empty
	// means the collection path is paginated directly.
	search string
	// folderFilter marks types whose search accepts a server-side
	// folder_id parameter.
	folderFilter bool
}

var endpoints = map[types.ContentType]endpoint{
	types.ContentTypeDashboard:     {collection: "/dashboards", search: "/dashboards/search", folderFilter: true},
	types.ContentTypeLook:          {collection: "/looks", search: "/looks/search", folderFilter: true},
	types.ContentTypeLookMLModel:   {collection: "/lookml_models"},
	types.ContentTypeExplore:       {collection: "/explores"},
	types.ContentTypeFolder:        {collection: "/folders"},
	types.ContentTypeBoard:         {collection: "/boards"},
	types.ContentTypeUser:          {collection: "/users"},
	types.ContentTypeGroup:         {collection: "/groups"},
	types.ContentTypeRole:          {collection: "/roles"},
	types.ContentTypePermissionSet: {collection: "/permission_sets"},
	types.ContentTypeModelSet:      {collection: "/model_sets"},
	types.ContentTypeScheduledPlan: {collection: "/scheduled_plans"},
}

// SupportsFolderFilter reports whether the API can filter this type by
// folder server-side. Only dashboards and looks can.
func SupportsFolderFilter(ct types.ContentType) bool {
	return endpoints[ct].folderFilter
}

// PageRequest describes one page fetch.
type PageRequest struct {
	Fields    string
	Limit     int
	Offset    int
	// FolderID is passed server-side for types supporting folder
	// filtering and ignored otherwise.
	FolderID string
	// UpdatedAfter restricts results to items updated at or after the
	// given instant (incremental extraction).
	UpdatedAfter *time.Time
}

// FetchPage returns one page of raw item payloads in the API's pagination
// order. An empty slice signals end of data.
func (c *Client) FetchPage(ctx context.Context, ct types.ContentType, req PageRequest) ([]*codec.Map, error) {
	ep, ok := endpoints[ct]
	if !ok {
		return nil, fmt.Errorf("no endpoint for content type %v", ct)
	}

	path := ep.collection
	query := url.Values{}
	if req.FolderID != "" && ep.folderFilter {
		path = ep.search
		query.Set("folder_id", req.FolderID)
	}
	if req.Fields != "" {
		query.Set("fields", req.Fields)
	}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
		query.Set("offset", strconv.Itoa(req.Offset))
	}
	if req.UpdatedAfter != nil {
		query.Set("updated_after", req.UpdatedAfter.UTC().Format(time.RFC3339))
	}

	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}

	decoded, err := codec.DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ct, err)
	}
	list, ok := decoded.([]any)
	if !ok {
		return nil, fmt.Errorf("fetch %s: response is not a list", ct)
	}

	items := make([]*codec.Map, 0, len(list))
	for _, raw := range list {
		item, ok := raw.(*codec.Map)
		if !ok {
			return nil, fmt.Errorf("fetch %s: list element is not an object", ct)
		}
		items = append(items, item)
	}
	return items, nil
}

// Iterator lazily walks a content type page by page. Finite and
// non-restartable; items come out in the API's pagination order.
type Iterator struct {
	client *Client
	ct     types.ContentType
	req    PageRequest

	page    []*codec.Map
	pos     int
	done    bool
}

// IterateOptions configures an Iterator.
type IterateOptions struct {
	Fields       string
	BatchSize    int
	FolderID     string
	UpdatedAfter *time.Time
	Offset       int
}

// Iterate returns a lazy iterator over all items of a content type.
func (c *Client) Iterate(ct types.ContentType, opts IterateOptions) *Iterator {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Iterator{
		client: c,
		ct:     ct,
		req: PageRequest{
			Fields:       opts.Fields,
			Limit:        batch,
			Offset:       opts.Offset,
			FolderID:     opts.FolderID,
			UpdatedAfter: opts.UpdatedAfter,
		},
	}
}

// Next returns the next item, or ok=false after the last one.
func (it *Iterator) Next(ctx context.Context) (*codec.Map, bool, error) {
	for it.pos >= len(it.page) {
		if it.done {
			return nil, false, nil
		}
		page, err := it.client.FetchPage(ctx, it.ct, it.req)
		if err != nil {
			return nil, false, err
		}
		it.req.Offset += it.req.Limit
		it.page = page
		it.pos = 0
		if len(page) < it.req.Limit {
			it.done = true
		}
		if len(page) == 0 {
			return nil, false, nil
		}
	}
	item := it.page[it.pos]
	it.pos++
	return item, true, nil
}

// Create posts a new item and returns the id the destination assigned.
func (c *Client) Create(ctx context.Context, ct types.ContentType, payload *codec.Map) (string, error) {
	ep, ok := endpoints[ct]
	if !ok {
		return "", fmt.Errorf("no endpoint for content type %v", ct)
	}
	body, err := codec.EncodeJSON(payload)
	if err != nil {
		return "", err
	}

	respBody, err := c.do(ctx, http.MethodPost, ep.collection, nil, body)
	if err != nil {
		return "", err
	}

	decoded, err := codec.DecodeJSON(respBody)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", ct, err)
	}
	created, ok := decoded.(*codec.Map)
	if !ok {
		return "", fmt.Errorf("create %s: response is not an object", ct)
	}
	id, ok := itemIDString(created)
	if !ok {
		return "", fmt.Errorf("create %s: response has no id", ct)
	}
	return id, nil
}

// Update patches an existing item.
func (c *Client) Update(ctx context.Context, ct types.ContentType, id string, payload *codec.Map) error {
	ep, ok := endpoints[ct]
	if !ok {
		return fmt.Errorf("no endpoint for content type %v", ct)
	}
	body, err := codec.EncodeJSON(payload)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch, ep.collection+"/"+url.PathEscape(id), nil, body)
	return err
}

// GetItem fetches a single item, optionally restricted to a field set.
func (c *Client) GetItem(ctx context.Context, ct types.ContentType, id, fields string) (*codec.Map, error) {
	ep, ok := endpoints[ct]
	if !ok {
		return nil, fmt.Errorf("no endpoint for content type %v", ct)
	}
	var query url.Values
	if fields != "" {
		query = url.Values{}
		query.Set("fields", fields)
	}
	body, err := c.do(ctx, http.MethodGet, ep.collection+"/"+url.PathEscape(id), query, nil)
	if err != nil {
		return nil, err
	}
	decoded, err := codec.DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", ct, id, err)
	}
	item, ok := decoded.(*codec.Map)
	if !ok {
		return nil, fmt.Errorf("get %s/%s: response is not an object", ct, id)
	}
	return item, nil
}

// Exists reports whether an item with the given id is present.
func (c *Client) Exists(ctx context.Context, ct types.ContentType, id string) (bool, error) {
	ep, ok := endpoints[ct]
	if !ok {
		return false, fmt.Errorf("no endpoint for content type %v", ct)
	}
	query := url.Values{}
	query.Set("fields", "id")
	_, err := c.do(ctx, http.MethodGet, ep.collection+"/"+url.PathEscape(id), query, nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ChildFolders returns the ids of the direct children of a folder.
func (c *Client) ChildFolders(ctx context.Context, folderID string) ([]string, error) {
	query := url.Values{}
	query.Set("fields", "id")
	body, err := c.do(ctx, http.MethodGet, "/folders/"+url.PathEscape(folderID)+"/children", query, nil)
	if err != nil {
		return nil, err
	}
	decoded, err := codec.DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("folder %s children: %w", folderID, err)
	}
	list, ok := decoded.([]any)
	if !ok {
		return nil, fmt.Errorf("folder %s children: response is not a list", folderID)
	}
	ids := make([]string, 0, len(list))
	for _, raw := range list {
		item, ok := raw.(*codec.Map)
		if !ok {
			continue
		}
		if id, ok := itemIDString(item); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ExpandFolders resolves the transitive closure of the given folder ids,
// walking children breadth-first. The result includes the input ids and
// is deduplicated; folder cycles cannot recurse forever.
func (c *Client) ExpandFolders(ctx context.Context, ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)

		children, err := c.ChildFolders(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		queue = append(queue, children...)
	}
	return out, nil
}

// SelfInfo returns the authenticated user, used as the connection check.
func (c *Client) SelfInfo(ctx context.Context) (*codec.Map, error) {
	body, err := c.do(ctx, http.MethodGet, "/user", nil, nil)
	if err != nil {
		return nil, err
	}
	decoded, err := codec.DecodeJSON(body)
	if err != nil {
		return nil, err
	}
	user, ok := decoded.(*codec.Map)
	if !ok {
		return nil, errors.New("self info: response is not an object")
	}
	return user, nil
}

// itemIDString extracts the "id" field of a payload as a string.
// Looker returns numeric ids for some types and string ids for others.
func itemIDString(item *codec.Map) (string, bool) {
	v, ok := item.Get("id")
	if !ok {
		return "", false
	}
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
