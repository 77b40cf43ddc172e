package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumenpress/internal/config"
	"github.com/lumenpress/lumenpress/internal/kv/memstore"
	"github.com/lumenpress/lumenpress/internal/resource"
	"github.com/lumenpress/lumenpress/internal/security"
)

// countingStore wraps memstore and counts store access; fail makes every call error.
type countingStore struct {
	*memstore.Store
	gets atomic.Int64
	sets atomic.Int64
	fail error
}

func (s *countingStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.gets.Add(1)
	if s.fail != nil {
		return nil, false, s.fail
	}
	return s.Store.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	s.sets.Add(1)
	if s.fail != nil {
		return s.fail
	}
	return s.Store.Set(ctx, key, value)
}

func (s *countingStore) Ping(ctx context.Context) error {
	if s.fail != nil {
		return s.fail
	}
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   int             `json:"count"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *countingStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &countingStore{Store: memstore.New()}
	svc := resource.NewService(store)
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	r := gin.New()
	r.Use(SecurityHeaders(cfg.Server))
	RegisterRoutes(r, svc, cfg)
	return r, store
}

func doRequest(t *testing.T, r http.Handler, method, target, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, target, w.Body.String(), err)
		}
	}
	return w, env
}

func decodeItem(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		t.Fatalf("decode item %s: %v", raw, err)
	}
	return item
}

func TestEmptyGetForEveryResource(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	for _, name := range resource.Names() {
		w, env := doRequest(t, r, http.MethodGet, "/api/"+name, "")
		if w.Code != http.StatusOK || !env.Success {
			t.Fatalf("%s: expected 200 success, got %d %s", name, w.Code, w.Body.String())
		}
		want := "[]"
		if name == resource.SettingsName {
			want = "{}"
		}
		if string(env.Data) != want {
			t.Fatalf("%s: expected %s, got %s", name, want, env.Data)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("%s: missing CORS header, got %q", name, got)
		}
	}
}

func TestOptionsShortCircuits(t *testing.T) {
	r, store := newTestRouter(t, nil)
	for _, target := range []string{"/api/articles", "/api/settings/batch", "/api/anything"} {
		w, _ := doRequest(t, r, http.MethodOptions, target, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, w.Code)
		}
		if w.Body.Len() != 0 {
			t.Fatalf("%s: expected empty body, got %q", target, w.Body.String())
		}
		if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, DELETE, OPTIONS" {
			t.Fatalf("%s: unexpected allow methods %q", target, got)
		}
		if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Authorization" {
			t.Fatalf("%s: unexpected allow headers %q", target, got)
		}
	}
	if store.gets.Load() != 0 || store.sets.Load() != 0 {
		t.Fatalf("OPTIONS must not touch storage")
	}
}

func TestRejectionsBeforeStorageAccess(t *testing.T) {
	r, store := newTestRouter(t, nil)

	w, env := doRequest(t, r, http.MethodGet, "/api/posts", "")
	if w.Code != http.StatusBadRequest || env.Success || env.Error == "" {
		t.Fatalf("unknown resource: expected 400 error, got %d %s", w.Code, w.Body.String())
	}
	w, _ = doRequest(t, r, http.MethodPatch, "/api/articles", `{"title":"x"}`)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PATCH: expected 405, got %d", w.Code)
	}
	w, _ = doRequest(t, r, http.MethodGet, "/api/articles/batch", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET batch: expected 405, got %d", w.Code)
	}
	w, _ = doRequest(t, r, http.MethodPost, "/api/nope/batch", `[]`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown batch resource: expected 400, got %d", w.Code)
	}
	if store.gets.Load() != 0 || store.sets.Load() != 0 {
		t.Fatalf("rejected requests touched storage: gets=%d sets=%d", store.gets.Load(), store.sets.Load())
	}
}

func TestCreateThenFetch(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w, env := doRequest(t, r, http.MethodPost, "/api/articles", `{"title":"Hello","views":12,"draft":false,"meta":{"tags":["a","b"]}}`)
	if w.Code != http.StatusCreated || !env.Success {
		t.Fatalf("create: expected 201, got %d %s", w.Code, w.Body.String())
	}
	created := decodeItem(t, env.Data)
	if created["id"] != "1" || created["title"] != "Hello" {
		t.Fatalf("unexpected created item: %v", created)
	}
	if _, err := time.Parse("2006-01-02T15:04:05.000Z", created["createdAt"].(string)); err != nil {
		t.Fatalf("createdAt format: %v", err)
	}

	w, env = doRequest(t, r, http.MethodGet, "/api/articles?id=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	fetched := decodeItem(t, env.Data)
	if fetched["title"] != "Hello" || fetched["views"] != float64(12) || fetched["draft"] != false {
		t.Fatalf("unexpected fetched item: %v", fetched)
	}

	w, env = doRequest(t, r, http.MethodGet, "/api/articles?id=99", "")
	if w.Code != http.StatusNotFound || env.Success {
		t.Fatalf("missing id: expected 404, got %d", w.Code)
	}
}

func TestIDAllocationWithGaps(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w, _ := doRequest(t, r, http.MethodPost, "/api/tags/batch", `[{"id":"3","name":"go"},{"id":"abc","name":"x"},{"id":7,"name":"y"}]`)
	if w.Code != http.StatusOK {
		t.Fatalf("seed: expected 200, got %d", w.Code)
	}
	_, env := doRequest(t, r, http.MethodPost, "/api/tags", `{"name":"z"}`)
	if got := decodeItem(t, env.Data)["id"]; got != "8" {
		t.Fatalf("expected id 8, got %v", got)
	}
}

func TestIDAllocationPastInt64(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w, _ := doRequest(t, r, http.MethodPost, "/api/articles/batch", `[{"id":"9223372036854775807"}]`)
	if w.Code != http.StatusOK {
		t.Fatalf("seed: expected 200, got %d", w.Code)
	}
	_, first := doRequest(t, r, http.MethodPost, "/api/articles", `{"title":"a"}`)
	_, second := doRequest(t, r, http.MethodPost, "/api/articles", `{"title":"b"}`)
	firstID := decodeItem(t, first.Data)["id"]
	secondID := decodeItem(t, second.Data)["id"]
	if firstID != "9223372036854775808" || secondID != "9223372036854775809" {
		t.Fatalf("expected distinct increasing ids, got %v and %v", firstID, secondID)
	}
}

func TestUpdateMergesAndPreservesIdentity(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	_, env := doRequest(t, r, http.MethodPost, "/api/links", `{"name":"site","url":"https://a"}`)
	created := decodeItem(t, env.Data)

	w, env := doRequest(t, r, http.MethodPut, "/api/links?id=1", `{"url":"https://b","id":"42","createdAt":"x"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d %s", w.Code, w.Body.String())
	}
	updated := decodeItem(t, env.Data)
	if updated["id"] != "1" || updated["createdAt"] != created["createdAt"] {
		t.Fatalf("identity not preserved: %v", updated)
	}
	if updated["name"] != "site" || updated["url"] != "https://b" || updated["updatedAt"] == nil {
		t.Fatalf("unexpected merge result: %v", updated)
	}
}

func TestUpdateMissingLeavesDataUnchanged(t *testing.T) {
	r, store := newTestRouter(t, nil)
	doRequest(t, r, http.MethodPost, "/api/events", `{"title":"launch"}`)
	_, before := doRequest(t, r, http.MethodGet, "/api/events", "")
	setsBefore := store.sets.Load()

	w, env := doRequest(t, r, http.MethodPut, "/api/events?id=5", `{"title":"other"}`)
	if w.Code != http.StatusNotFound || env.Success {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	w, _ = doRequest(t, r, http.MethodDelete, "/api/events?id=5", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("delete missing: expected 404, got %d", w.Code)
	}
	if store.sets.Load() != setsBefore {
		t.Fatalf("not-found mutations must not write")
	}
	_, after := doRequest(t, r, http.MethodGet, "/api/events", "")
	if string(before.Data) != string(after.Data) {
		t.Fatalf("collection changed: %s -> %s", before.Data, after.Data)
	}

	w, _ = doRequest(t, r, http.MethodPut, "/api/events", `{"title":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("PUT without id: expected 400, got %d", w.Code)
	}
}

func TestDeleteRemovesItem(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	doRequest(t, r, http.MethodPost, "/api/comments", `{"body":"one"}`)
	doRequest(t, r, http.MethodPost, "/api/comments", `{"body":"two"}`)

	w, env := doRequest(t, r, http.MethodDelete, "/api/comments?id=1", "")
	if w.Code != http.StatusOK || !env.Success || env.Message == "" {
		t.Fatalf("delete: expected confirmation, got %d %s", w.Code, w.Body.String())
	}
	_, env = doRequest(t, r, http.MethodGet, "/api/comments", "")
	var items []map[string]any
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0]["id"] != "2" {
		t.Fatalf("unexpected remaining items: %v", items)
	}
}

func TestSettingsSingleton(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w, env := doRequest(t, r, http.MethodPost, "/api/settings", `{"title":"My blog","theme":{"dark":true}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("post settings: expected 201, got %d", w.Code)
	}
	w, env = doRequest(t, r, http.MethodPut, "/api/settings", `{"title":"Renamed"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put settings: expected 200, got %d", w.Code)
	}
	if got := decodeItem(t, env.Data); len(got) != 1 || got["title"] != "Renamed" {
		t.Fatalf("settings must be overwritten whole: %v", got)
	}

	_, env = doRequest(t, r, http.MethodGet, "/api/settings?id=anything", "")
	if got := decodeItem(t, env.Data); got["title"] != "Renamed" {
		t.Fatalf("GET with id must return the whole object: %v", got)
	}

	w, env = doRequest(t, r, http.MethodDelete, "/api/settings", "")
	if w.Code != http.StatusBadRequest || env.Error != resource.ErrSingletonDelete.Error() {
		t.Fatalf("delete settings: expected 400, got %d %s", w.Code, w.Body.String())
	}
	_, env = doRequest(t, r, http.MethodGet, "/api/settings", "")
	if got := decodeItem(t, env.Data); got["title"] != "Renamed" {
		t.Fatalf("settings changed after rejected delete: %v", got)
	}
}

func TestBatchReplacePreservesOrder(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	doRequest(t, r, http.MethodPost, "/api/music", `{"title":"old"}`)

	w, env := doRequest(t, r, http.MethodPost, "/api/music/batch", `[{"id":"9","title":"b"},{"id":"2","title":"a"}]`)
	if w.Code != http.StatusOK || !env.Success || env.Count != 2 {
		t.Fatalf("batch: expected count 2, got %d %s", w.Code, w.Body.String())
	}
	_, env = doRequest(t, r, http.MethodGet, "/api/music", "")
	var items []map[string]any
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 || items[0]["id"] != "9" || items[1]["id"] != "2" {
		t.Fatalf("unexpected order: %v", items)
	}

	w, env = doRequest(t, r, http.MethodPost, "/api/settings/batch", `{"title":"imported"}`)
	if w.Code != http.StatusOK || env.Count != 1 {
		t.Fatalf("settings batch: expected count 1, got %d %s", w.Code, w.Body.String())
	}

	w, _ = doRequest(t, r, http.MethodPost, "/api/music/batch", `{"title":"not an array"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("object batch for list: expected 400, got %d", w.Code)
	}
	w, _ = doRequest(t, r, http.MethodPost, "/api/music/batch", `[{"id":"1"},{"id":"1"}]`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate ids: expected 400, got %d", w.Code)
	}
}

func TestInvalidBodies(t *testing.T) {
	r, store := newTestRouter(t, func(cfg *config.Config) { cfg.Server.MaxBodyBytes = 64 })

	cases := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "array", body: `[1,2]`},
		{name: "malformed", body: `{"title":`},
		{name: "null field", body: `{"title":null}`},
		{name: "nested null", body: `{"meta":{"tags":["a",null]}}`},
		{name: "trailing", body: `{"a":"b"} {}`},
		{name: "too large", body: `{"title":"` + strings.Repeat("x", 128) + `"}`},
	}
	for _, tc := range cases {
		w, env := doRequest(t, r, http.MethodPost, "/api/articles", tc.body)
		if w.Code != http.StatusBadRequest || env.Success || env.Error == "" {
			t.Fatalf("%s: expected 400, got %d %s", tc.name, w.Code, w.Body.String())
		}
	}
	_, env := doRequest(t, r, http.MethodPost, "/api/articles", `{"meta":{"tags":["a",null]}}`)
	if !strings.Contains(env.Error, "meta.tags[1]") {
		t.Fatalf("error should name the field path: %q", env.Error)
	}
	if store.sets.Load() != 0 {
		t.Fatalf("invalid bodies must not write")
	}
}

func TestStorageErrorSurfacesMessage(t *testing.T) {
	r, store := newTestRouter(t, nil)
	store.fail = errors.New("kv unreachable")

	w, env := doRequest(t, r, http.MethodGet, "/api/articles", "")
	if w.Code != http.StatusInternalServerError || env.Success {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(env.Error, "kv unreachable") {
		t.Fatalf("expected raw message, got %q", env.Error)
	}

	w, _ = doRequest(t, r, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz: expected 503, got %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	doRequest(t, r, http.MethodGet, "/api/articles", "")

	w, _ := doRequest(t, r, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("healthz: got %d %s", w.Code, w.Body.String())
	}

	w, _ = doRequest(t, r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `lumenpress_requests_total{resource="articles",method="GET",status="200"}`) {
		t.Fatalf("metrics output missing request counter:\n%s", w.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w, _ := doRequest(t, r, http.MethodGet, "/api/articles", "")
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected DENY, got %q", got)
	}
}

func TestAdminAuthGuardsMutations(t *testing.T) {
	hash, err := security.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	r, _ := newTestRouter(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.Username = "admin"
		cfg.Auth.PasswordHash = hash
		cfg.Auth.JWTSecret = "test-secret"
	})

	w, _ := doRequest(t, r, http.MethodGet, "/api/articles", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET must stay public, got %d", w.Code)
	}
	w, env := doRequest(t, r, http.MethodPost, "/api/articles", `{"title":"x"}`)
	if w.Code != http.StatusUnauthorized || env.Success {
		t.Fatalf("POST without token: expected 401, got %d", w.Code)
	}

	w, _ = doRequest(t, r, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", w.Code)
	}

	w, _ = doRequest(t, r, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"hunter2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %s", w.Code, w.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil || login.Token == "" {
		t.Fatalf("login response: %v %s", err, w.Body.String())
	}

	w, _ = doRequest(t, r, http.MethodPost, "/api/articles", `{"title":"x"}`, "Authorization", "Bearer "+login.Token)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST with token: expected 201, got %d %s", w.Code, w.Body.String())
	}
	w, _ = doRequest(t, r, http.MethodDelete, "/api/articles?id=1", "", "Authorization", "Bearer not-a-token")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("DELETE with bad token: expected 401, got %d", w.Code)
	}
}

func TestLoginDisabledByDefault(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w, _ := doRequest(t, r, http.MethodPost, "/api/auth/login", `{"username":"a","password":"b"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when auth is disabled, got %d", w.Code)
	}
	w, _ = doRequest(t, r, http.MethodPost, "/api/articles", `{"title":"open"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("mutations must be open when auth is disabled, got %d", w.Code)
	}
}
