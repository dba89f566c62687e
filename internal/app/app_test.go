package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/comptox-ai/comptox-api-client/internal/config"
	"github.com/comptox-ai/comptox-api-client/pkg/api"
	"github.com/comptox-ai/comptox-api-client/pkg/publishers"
	"github.com/comptox-ai/comptox-api-client/pkg/query"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		AppName:              "comptox-api-client",
		Env:                  "test",
		LogLevel:             "error",
		BaseURL:              baseURL,
		EncodeParams:         true,
		CacheType:            "bbolt",
		BBoltPath:            filepath.Join(dir, "cache.db"),
		CacheTTL:             time.Hour,
		CacheCleanupInterval: time.Hour,
		PublishersFile:       filepath.Join(dir, "publishers.yaml"),
		TargetsFile:          filepath.Join(dir, "targets.yaml"),
		WatchInterval:        time.Minute,
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestNewAppServesHooksAndPersistsBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	st := a.Hooks().ConfigQuery().Use(context.Background())
	if st.Error != nil || st.Data["id"] != "1" {
		t.Fatalf("state = %+v", st)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// a fresh runtime hydrates the body from the store before any request
	srv.Close()
	b, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New (second): %v", err)
	}
	defer b.Close()

	cached := b.Hooks().ConfigQuery().State()
	if !cached.HasData || cached.Data["id"] != "1" || !cached.IsStale {
		t.Fatalf("hydrated state = %+v", cached)
	}
	if cached.Status != query.StatusSuccess {
		t.Fatalf("status = %s", cached.Status)
	}
}

func TestNewAppRawParams(t *testing.T) {
	cfg := testConfig(t, "http://localhost:3000")
	cfg.CacheType = "none"
	cfg.EncodeParams = false

	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	got, err := a.Client().SearchNodesURL("Chemical", "name", "a b")
	if err != nil {
		t.Fatalf("SearchNodesURL: %v", err)
	}
	if got != "http://localhost:3000/nodes/Chemical/search?field=name&value=a b" {
		t.Fatalf("url = %q", got)
	}
}

func TestNewAppRejectsBadStorage(t *testing.T) {
	cfg := testConfig(t, "http://localhost:3000")
	cfg.CacheType = "redis"
	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("expected storage error")
	}
	if _, err := New(nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestWatchPublishesChangesOnce(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nodes/Chemical/search":
			_, _ = w.Write([]byte(`[{"labels":["Chemical"],"properties":{"name":"Benzene"}}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer backend.Close()

	var (
		mu     sync.Mutex
		events []publishers.Event
	)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt publishers.Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			t.Errorf("decode event: %v", err)
		}
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	}))
	defer sink.Close()

	cfg := testConfig(t, backend.URL)
	writeFile(t, cfg.TargetsFile, `
targets:
  - id: benzene
    endpoint: searchNodes
    label: Chemical
    field: name
    value: Benzene
  - id: missing
    endpoint: fetchRelationshipsByNodeId
    node_id: "999"
`)
	writeFile(t, cfg.PublishersFile, "publishers:\n  - id: sink\n    type: http\n    http:\n      url: "+sink.URL+"\n")

	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	w, err := NewWatch(context.Background(), a)
	if err != nil {
		t.Fatalf("NewWatch: %v", err)
	}
	defer w.Close()

	if err := w.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected the 404 target to fail the pass")
	}
	_ = w.RunOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected 1 change event, got %d", len(events))
	}
	evt := events[0]
	if evt.Target != "benzene" || evt.Endpoint != api.EndpointSearchNodes {
		t.Fatalf("event = %+v", evt)
	}
	if evt.QueryKey != api.SearchNodesKey("Chemical", "name", "Benzene") {
		t.Fatalf("query key = %s", evt.QueryKey)
	}
	if evt.URL != backend.URL+"/nodes/Chemical/search?field=name&value=Benzene" {
		t.Fatalf("url = %s", evt.URL)
	}
}

func TestWatchWithMemoryStoreSkipsUnchangedBodies(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer backend.Close()

	var (
		mu     sync.Mutex
		events int
	)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		events++
		mu.Unlock()
	}))
	defer sink.Close()

	cfg := testConfig(t, backend.URL)
	cfg.CacheType = "none"
	writeFile(t, cfg.TargetsFile, "targets:\n  - endpoint: fetchConfig\n")
	writeFile(t, cfg.PublishersFile, "publishers:\n  - id: sink\n    type: http\n    http:\n      url: "+sink.URL+"\n")

	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	w, err := NewWatch(context.Background(), a)
	if err != nil {
		t.Fatalf("NewWatch: %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		if err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if events != 1 {
		t.Fatalf("expected 1 change event over 3 passes, got %d", events)
	}
}

func TestWatchPublishesOnlyToSelectedPublishers(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer backend.Close()

	var (
		mu   sync.Mutex
		hits = map[string]int{}
	)
	newSink := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits[name]++
			mu.Unlock()
		}))
	}
	sinkA, sinkB := newSink("a"), newSink("b")
	defer sinkA.Close()
	defer sinkB.Close()

	cfg := testConfig(t, backend.URL)
	writeFile(t, cfg.TargetsFile, "targets:\n  - endpoint: fetchConfig\n")
	writeFile(t, cfg.PublishersFile, `publishers:
  - id: a
    type: http
    http:
      url: `+sinkA.URL+`
  - id: b
    type: http
    http:
      url: `+sinkB.URL+`
  - id: off
    type: http
    enabled: false
    http:
      url: `+sinkA.URL+`
`)

	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := NewWatch(context.Background(), a, "nope"); err == nil {
		t.Fatalf("expected error for undeclared publisher")
	}
	if _, err := NewWatch(context.Background(), a, "off"); err == nil {
		t.Fatalf("expected error for disabled publisher")
	}

	w, err := NewWatch(context.Background(), a, "b")
	if err != nil {
		t.Fatalf("NewWatch: %v", err)
	}
	defer w.Close()
	if w.fanout.Size() != 1 {
		t.Fatalf("expected 1 selected publisher, got %d", w.fanout.Size())
	}
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits["a"] != 0 || hits["b"] != 1 {
		t.Fatalf("hits = %v", hits)
	}
}

func TestWatchWithoutPublishersFile(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer backend.Close()

	cfg := testConfig(t, backend.URL)
	writeFile(t, cfg.TargetsFile, "targets:\n  - endpoint: fetchConfig\n")

	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	w, err := NewWatch(context.Background(), a)
	if err != nil {
		t.Fatalf("NewWatch: %v", err)
	}
	if w.fanout.Size() != 0 {
		t.Fatalf("expected no publishers")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestNewWatchRequiresTargets(t *testing.T) {
	cfg := testConfig(t, "http://localhost:3000")
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := NewWatch(context.Background(), a); err == nil {
		t.Fatalf("expected error for missing targets file")
	}
}
