package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/comptox-ai/comptox-api-client/pkg/query"
)

func newHooksAgainst(t *testing.T, handler http.HandlerFunc) (*Hooks, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return NewHooks(c, query.NewClient(query.Options{})), srv
}

func TestConfigQueryResolvesData(t *testing.T) {
	h, _ := newHooksAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/config" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":"1"}`))
	})

	q := h.ConfigQuery()
	if st := q.State(); st.Status != query.StatusIdle || st.IsLoading {
		t.Fatalf("initial state = %+v", st)
	}

	st := q.Use(context.Background())
	if st.Error != nil {
		t.Fatalf("unexpected error: %v", st.Error)
	}
	if st.IsLoading || st.Status != query.StatusSuccess {
		t.Fatalf("state = %+v", st)
	}
	if len(st.Data) != 1 || st.Data["id"] != "1" {
		t.Fatalf("data = %#v", st.Data)
	}
}

func TestRelationshipsQueryNotFoundIsErrorState(t *testing.T) {
	var hits int32
	h, _ := newHooksAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	})

	st := h.RelationshipsByNodeIDQuery("999").Use(context.Background())
	if st.Status != query.StatusError || st.IsLoading {
		t.Fatalf("state = %+v", st)
	}
	if !IsNotFound(st.Error) {
		t.Fatalf("expected 404 error, got %v", st.Error)
	}
	if st.HasData || st.Data != nil {
		t.Fatalf("expected no data, got %#v", st.Data)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected exactly one request without retry, got %d", got)
	}
}

func TestSearchNodesQuerySharesCacheEntryPerTuple(t *testing.T) {
	var hits int32
	h, _ := newHooksAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`[{"labels":["Chemical"],"properties":{"name":"Benzene"}}]`))
	})

	a := h.SearchNodesQuery("Chemical", "name", "Benzene")
	b := h.SearchNodesQuery("Chemical", "name", "Benzene")
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %s vs %s", a.Key(), b.Key())
	}
	if a.Key() != `["searchNodes","Chemical","name","Benzene"]` {
		t.Fatalf("key = %s", a.Key())
	}

	st := a.Use(context.Background())
	if st.Error != nil || len(st.Data) != 1 {
		t.Fatalf("state = %+v", st)
	}
	if labels := st.Data[0].Labels(); len(labels) != 1 || labels[0] != "Chemical" {
		t.Fatalf("labels = %v", labels)
	}

	// b reads the entry a populated without a fetch.
	if got := b.State(); !got.HasData || len(got.Data) != 1 {
		t.Fatalf("shared state = %+v", got)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("hits = %d", got)
	}
}

func TestEmptySearchQueryIsSuccess(t *testing.T) {
	h, _ := newHooksAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	st := h.SearchNodesQuery("Gene", "symbol", "NOPE").Use(context.Background())
	if st.Error != nil || st.Status != query.StatusSuccess {
		t.Fatalf("state = %+v", st)
	}
	if len(st.Data) != 0 {
		t.Fatalf("data = %#v", st.Data)
	}
}

func TestHooksKeysAreDistinctPerOperation(t *testing.T) {
	keys := make(map[string]struct{})
	for _, k := range []string{
		ConfigKey(),
		SearchNodesKey("A", "b", "c"),
		SearchNodesKey("A", "b", "d"),
		RelationshipsKey("1"),
		RelationshipsKey("2"),
	} {
		keys[k] = struct{}{}
	}
	if len(keys) != 5 {
		t.Fatalf("expected 5 distinct keys, got %d", len(keys))
	}
}

func TestNewHooksDefaultsCache(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if NewHooks(c, nil).Cache() == nil {
		t.Fatalf("expected default cache")
	}
}
