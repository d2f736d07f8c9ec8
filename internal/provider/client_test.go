package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stratamedia/strata/internal/cache"
	"github.com/stratamedia/strata/pkg/errors"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		Name:      "musicdb",
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		UserAgent: "strata-test/1.0",
		Timeout:   2 * time.Second,
	})
}

const titleBody = `{
	"id": "t-100",
	"title": "Blue Train",
	"artist_name": "John Coltrane",
	"release_date": "1958-01-15",
	"genres": ["jazz"],
	"duration_ms": 643000,
	"popularity": 0.82
}`

func TestFetchTitle(t *testing.T) {
	var gotPath, gotKey, gotUA string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(titleBody))
	}))

	rec, err := c.FetchTitle(context.Background(), TitleRequest{ID: "t-100"})
	if err != nil {
		t.Fatalf("FetchTitle failed: %v", err)
	}

	if gotPath != "/v1/titles/t-100" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("X-Api-Key = %q", gotKey)
	}
	if gotUA != "strata-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if rec.Name != "Blue Train" || rec.Year != 1958 || rec.Source != "musicdb" {
		t.Errorf("record = %+v", rec)
	}
}

func TestFetchTitleNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such title", http.StatusNotFound)
	}))

	_, err := c.FetchTitle(context.Background(), TitleRequest{ID: "missing"})
	if !errors.IsNotFound(err) {
		t.Errorf("error = %v, want not-found", err)
	}
}

func TestFetchTitleRetriesTransientFailures(t *testing.T) {
	var requests atomic.Int64
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) <= 2 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(titleBody))
	}))

	rec, err := c.FetchTitle(context.Background(), TitleRequest{ID: "t-100"})
	if err != nil {
		t.Fatalf("FetchTitle failed after retries: %v", err)
	}
	if requests.Load() != 3 {
		t.Errorf("requests = %d, want 3", requests.Load())
	}
	if rec.Name != "Blue Train" {
		t.Errorf("record = %+v", rec)
	}
}

func TestFetchTitleClientErrorDoesNotRetry(t *testing.T) {
	var requests atomic.Int64
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	_, err := c.FetchTitle(context.Background(), TitleRequest{ID: "t-100"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Code(err) != errors.ErrCodeProviderResponse {
		t.Errorf("code = %s", errors.Code(err))
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1 (4xx must not retry)", requests.Load())
	}
}

func TestSearchArtist(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/artists/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if q := r.URL.Query().Get("q"); q != "coltrane" {
			t.Errorf("q = %q", q)
		}
		if l := r.URL.Query().Get("limit"); l != "5" {
			t.Errorf("limit = %q", l)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"artists": [
			{"id": "a-1", "name": "John Coltrane", "genres": ["jazz"], "popularity": 0.9},
			{"id": "a-2", "name": "Alice Coltrane", "genres": ["jazz"], "popularity": 0.7}
		]}`))
	}))

	records, err := c.SearchArtist(context.Background(), ArtistQuery{Name: "coltrane", Limit: 5})
	if err != nil {
		t.Fatalf("SearchArtist failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Kind != KindArtist || records[0].Name != "John Coltrane" {
		t.Errorf("first record = %+v", records[0])
	}
}

func TestServiceMemoizesFetches(t *testing.T) {
	var requests atomic.Int64
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(titleBody))
	}))

	store, err := cache.New(cache.Config{
		DefaultTTL: time.Hour,
		Root:       t.TempDir(),
		Prefix:     "titles",
		Version:    "v1",
	})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	svc := NewService(c, store)

	req := TitleRequest{ID: "t-100"}
	first, err := svc.FetchTitle(context.Background(), req)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	second, err := svc.FetchTitle(context.Background(), req)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}

	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1 (second fetch must hit the cache)", requests.Load())
	}
	if first.Name != second.Name || first.Year != second.Year {
		t.Errorf("records differ: %+v vs %+v", first, second)
	}

	// Refresh bypasses the cached copy.
	if _, err := svc.Refresh(context.Background(), req); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d after refresh, want 2", requests.Load())
	}
}

func TestServiceDoesNotCacheEmptySearches(t *testing.T) {
	var requests atomic.Int64
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"artists": []}`))
	}))

	store, err := cache.New(cache.Config{
		DefaultTTL: time.Hour,
		Root:       t.TempDir(),
		Prefix:     "artists",
		Version:    "v1",
	})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	svc := NewService(c, store)

	for i := 0; i < 2; i++ {
		records, err := svc.SearchArtist(context.Background(), ArtistQuery{Name: "nobody"})
		if err != nil {
			t.Fatalf("search %d failed: %v", i, err)
		}
		if len(records) != 0 {
			t.Errorf("search %d returned %d records", i, len(records))
		}
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2 (empty results must not be cached)", requests.Load())
	}
}
