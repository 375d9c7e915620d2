package looker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/ratelimit"
	"github.com/lookervault/lookervault/types"
)

func mustDecodeMap(t *testing.T, raw string) *codec.Map {
	t.Helper()
	decoded, err := codec.DecodeJSON([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeJSON(%q) error: %v", raw, err)
	}
	m, ok := decoded.(*codec.Map)
	if !ok {
		t.Fatalf("DecodeJSON(%q) = %T, want *codec.Map", raw, decoded)
	}
	return m
}

// stubAPI is a minimal Looker API for tests: it issues tokens on /login,
// rejects calls without the token, and delegates everything else.
type stubAPI struct {
	t      *testing.T
	logins atomic.Int64
	// calls counts every non-login request, including ones rejected
	// by the auth check.
	calls  atomic.Int64
	token  string
	handle http.HandlerFunc
}

func newStubAPI(t *testing.T, handle http.HandlerFunc) (*stubAPI, *httptest.Server) {
	t.Helper()
	api := &stubAPI{t: t, token: "tok-1", handle: handle}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *stubAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/4.0/login" {
		a.logins.Add(1)
		if err := r.ParseForm(); err != nil || r.PostFormValue("client_id") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": a.token,
			"expires_in":   3600,
		})
		return
	}
	a.calls.Add(1)
	if got := r.Header.Get("Authorization"); got != "token "+a.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	a.handle(w, r)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:      srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	}, ratelimit.New(10_000, 10_000), nil)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return c
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"complete", Config{BaseURL: "https://x.looker.com", ClientID: "a", ClientSecret: "b"}, true},
		{"missing url", Config{ClientID: "a", ClientSecret: "b"}, false},
		{"missing credentials", Config{BaseURL: "https://x.looker.com"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tc.ok && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestTokenIsCachedAcrossCalls(t *testing.T) {
	api, srv := newStubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "1"}`)
	})
	c := newTestClient(t, srv)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.SelfInfo(ctx); err != nil {
			t.Fatalf("SelfInfo #%d error: %v", i, err)
		}
	}
	if got := api.logins.Load(); got != 1 {
		t.Errorf("login count = %d, want 1 (token must be cached)", got)
	}
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	api, srv := newStubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "1"}`)
	})
	c := newTestClient(t, srv)

	ctx := context.Background()
	if _, err := c.SelfInfo(ctx); err != nil {
		t.Fatalf("SelfInfo error: %v", err)
	}

	// Rotate the server-side token: the next call gets a 401, and the
	// client must re-login and succeed without surfacing an error.
	api.token = "tok-2"
	if _, err := c.SelfInfo(ctx); err != nil {
		t.Fatalf("SelfInfo after token rotation error: %v", err)
	}
	if got := api.logins.Load(); got != 2 {
		t.Errorf("login count = %d, want 2", got)
	}
	if got := api.calls.Load(); got != 3 {
		t.Errorf("API call count = %d, want 3 (one rejected, two served)", got)
	}
}

func TestFetchPagePreservesOrderAndParams(t *testing.T) {
	var gotQuery atomic.Value
	_, srv := newStubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/4.0/dashboards/search" {
			t.Errorf("path = %q, want /api/4.0/dashboards/search", r.URL.Path)
		}
		gotQuery.Store(r.URL.Query())
		fmt.Fprint(w, `[{"id": "9"}, {"id": "3"}, {"id": "7"}]`)
	})
	c := newTestClient(t, srv)

	items, err := c.FetchPage(context.Background(), types.ContentTypeDashboard, PageRequest{
		Fields:   "id,title",
		Limit:    50,
		Offset:   100,
		FolderID: "42",
	})
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}

	wantIDs := []string{"9", "3", "7"}
	if len(items) != len(wantIDs) {
		t.Fatalf("got %d items, want %d", len(items), len(wantIDs))
	}
	for i, want := range wantIDs {
		id, _ := items[i].Get("id")
		if id != want {
			t.Errorf("item[%d] id = %v, want %q (API order must be preserved)", i, id, want)
		}
	}

	q := gotQuery.Load().(url.Values)
	for key, want := range map[string]string{
		"folder_id": "42", "fields": "id,title", "limit": "50", "offset": "100",
	} {
		if got := q[key]; len(got) != 1 || got[0] != want {
			t.Errorf("query %s = %v, want %q", key, got, want)
		}
	}
}

func TestFetchPageIgnoresFolderForUnsupportedTypes(t *testing.T) {
	_, srv := newStubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/4.0/users" {
			t.Errorf("path = %q, want /api/4.0/users", r.URL.Path)
		}
		if r.URL.Query().Get("folder_id") != "" {
			t.Error("folder_id must not be sent for users")
		}
		fmt.Fprint(w, `[]`)
	})
	c := newTestClient(t, srv)

	if _, err := c.FetchPage(context.Background(), types.ContentTypeUser, PageRequest{
		Limit: 10, FolderID: "42",
	}); err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}
}

func TestIterateWalksAllPages(t *testing.T) {
	_, srv := newStubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		switch offset {
		case "0":
			fmt.Fprint(w, `[{"id": "a"}, {"id": "b"}]`)
		case "2":
			fmt.Fprint(w, `[{"id": "c"}]`)
		default:
			t.Errorf("unexpected offset %q", offset)
			fmt.Fprint(w, `[]`)
		}
	})
	c := newTestClient(t, srv)

	it := c.Iterate(types.ContentTypeLook, IterateOptions{BatchSize: 2})
	ctx := context.Background()

	var ids []string
	for {
		item, ok, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		if !ok {
			break
		}
		id, _ := item.Get("id")
		ids = append(ids, id.(string))
	}

	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("iterated %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestCreateReturnsAssignedID(t *testing.T) {
	_, srv := newStubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/4.0/dashboards" {
			t.Errorf("%s %s, want POST /api/4.0/dashboards", r.Method, r.URL.Path)
		}
		// Numeric id: must come back as its decimal string.
		fmt.Fprint(w, `{"id": 731, "title": "ops"}`)
	})
	c := newTestClient(t, srv)

	payload := mustDecodeMap(t, `{"title": "ops"}`)
	id, err := c.Create(context.Background(), types.ContentTypeDashboard, payload)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if id != "731" {
		t.Errorf("Create id = %q, want %q", id, "731")
	}
}

func TestExistsMapsNotFound(t *testing.T) {
	_, srv := newStubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/4.0/looks/here" {
			fmt.Fprint(w, `{"id": "here"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	ok, err := c.Exists(ctx, types.ContentTypeLook, "here")
	if err != nil || !ok {
		t.Errorf("Exists(here) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = c.Exists(ctx, types.ContentTypeLook, "gone")
	if err != nil || ok {
		t.Errorf("Exists(gone) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestValidationErrorFailsFast(t *testing.T) {
	var calls atomic.Int64
	_, srv := newStubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "title required"}`)
	})
	c := newTestClient(t, srv)

	_, err := c.Create(context.Background(), types.ContentTypeLook, mustDecodeMap(t, `{}`))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Create error = %v, want ErrValidation", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("call count = %d, want 1 (422 must not be retried)", got)
	}
}

func TestRateLimitedCallRetriesAndAdapts(t *testing.T) {
	var calls atomic.Int64
	_, srv := newStubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[]`)
	})

	limiter := ratelimit.New(10_000, 10_000)
	c, err := NewClient(Config{
		BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret",
	}, limiter, nil)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	if _, err := c.FetchPage(context.Background(), types.ContentTypeRole, PageRequest{Limit: 10}); err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("call count = %d, want 2", got)
	}
	if got := limiter.Stats().Total429; got != 1 {
		t.Errorf("limiter Total429 = %d, want 1", got)
	}
	if got := limiter.Stats().Multiplier; got != 1.5 {
		t.Errorf("limiter multiplier = %v, want 1.5", got)
	}
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	var calls atomic.Int64
	_, srv := newStubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c := newTestClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.FetchPage(ctx, types.ContentTypeBoard, PageRequest{Limit: 10})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("FetchPage error = %v, want ErrRetriesExhausted", err)
	}
	if got := calls.Load(); got != maxAttempts {
		t.Errorf("call count = %d, want %d", got, maxAttempts)
	}
	if elapsed := time.Since(start); elapsed < 4*time.Second {
		t.Errorf("retries finished in %v, want backoff of at least 4s", elapsed)
	}
}

func TestErrorTypeClassification(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&StatusError{Code: 422}, "ValidationError"},
		{&StatusError{Code: 429}, "RateLimitError"},
		{&StatusError{Code: 404}, "NotFoundError"},
		{&StatusError{Code: 401}, "AuthError"},
		{&StatusError{Code: 500}, "APIError"},
		{errors.New("connection reset"), "APIError"},
	}
	for _, tc := range cases {
		if got := ErrorType(tc.err); got != tc.want {
			t.Errorf("ErrorType(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(&StatusError{Code: 429}) {
		t.Error("429 must not be permanent")
	}
	if Permanent(&StatusError{Code: 503}) {
		t.Error("503 must not be permanent")
	}
	if !Permanent(&StatusError{Code: 422}) {
		t.Error("422 must be permanent")
	}
	if !Permanent(&StatusError{Code: 404}) {
		t.Error("404 must be permanent")
	}
}
