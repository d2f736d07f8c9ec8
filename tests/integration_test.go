package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/stratamedia/strata/internal/cache"
	"github.com/stratamedia/strata/internal/config"
	"github.com/stratamedia/strata/internal/provider"
	"github.com/stratamedia/strata/internal/search"
	"github.com/stratamedia/strata/pkg/errors"
)

// inMemoryStore stands in for the remote object store.
type inMemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    atomic.Int64
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{objects: make(map[string][]byte)}
}

func (s *inMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New(errors.ErrCodeObjectNotFound, "object not found: "+key)
	}
	return append([]byte(nil), data...), nil
}

func (s *inMemoryStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	s.puts.Add(1)
	return nil
}

func (s *inMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// IntegrationTestSuite exercises the aggregation pipeline end to end.
type IntegrationTestSuite struct {
	suite.Suite
	tempDir    string
	configFile string
	ctx        context.Context
	cancel     context.CancelFunc
}

func (suite *IntegrationTestSuite) SetupSuite() {
	suite.tempDir = suite.T().TempDir()
	suite.configFile = filepath.Join(suite.tempDir, "config.yaml")
	suite.ctx, suite.cancel = context.WithTimeout(context.Background(), 2*time.Minute)
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	if suite.cancel != nil {
		suite.cancel()
	}
}

func (suite *IntegrationTestSuite) TestConfigurationPipeline() {
	configContent := `
global:
  log_level: DEBUG

cache:
  root: ` + filepath.Join(suite.tempDir, "cache") + `
  default_ttl: 15m
  max_memory: 32MB

remote:
  enabled: false
`
	err := os.WriteFile(suite.configFile, []byte(configContent), 0600)
	require.NoError(suite.T(), err)

	cfg := config.NewDefault()
	require.NoError(suite.T(), cfg.LoadFromFile(suite.configFile))
	require.NoError(suite.T(), cfg.LoadFromEnv())
	require.NoError(suite.T(), cfg.Validate())

	assert.Equal(suite.T(), "DEBUG", cfg.Global.LogLevel)
	assert.Equal(suite.T(), 15*time.Minute, cfg.Cache.DefaultTTL)

	memBytes, err := config.ParseSize(cfg.Cache.MaxMemory)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(32*1024*1024), memBytes)
}

func (suite *IntegrationTestSuite) TestFetchNormalizeIndexPass() {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "t-100",
			"title": "Blue Train",
			"artist_name": "John Coltrane",
			"release_date": "1958-01-15",
			"genres": ["jazz"],
			"duration_ms": 643000,
			"popularity": 0.82
		}`))
	}))
	defer srv.Close()

	titlesCache, err := cache.New(cache.Config{
		DefaultTTL: time.Hour,
		Root:       filepath.Join(suite.tempDir, "pass"),
		Prefix:     "titles",
		Version:    "v1",
	})
	require.NoError(suite.T(), err)

	searchCache, err := cache.New(cache.Config{
		DefaultTTL: 24 * time.Hour,
		Root:       filepath.Join(suite.tempDir, "pass"),
		Prefix:     "search",
		Version:    "v1",
	})
	require.NoError(suite.T(), err)

	client := provider.NewClient(provider.Options{
		Name:    "musicdb",
		BaseURL: srv.URL,
	})
	svc := provider.NewService(client, titlesCache)

	store := newInMemoryStore()
	sink := search.NewObjectSink(store, "index", nil)
	writer := search.NewWriter(sink, search.Options{
		Index:     "media",
		BatchSize: 10,
		Cache:     searchCache,
	})

	// Fetch, normalize, index.
	rec, err := svc.FetchTitle(suite.ctx, provider.TitleRequest{ID: "t-100"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Blue Train", rec.Name)
	assert.Equal(suite.T(), 1958, rec.Year)
	assert.Equal(suite.T(), "musicdb", rec.Source)

	require.NoError(suite.T(), writer.Add(suite.ctx, rec))
	require.NoError(suite.T(), writer.Flush(suite.ctx))
	assert.Equal(suite.T(), 1, writer.Written())
	assert.Equal(suite.T(), int64(1), store.puts.Load())

	// A second pass is served entirely from cache.
	rec2, err := svc.FetchTitle(suite.ctx, provider.TitleRequest{ID: "t-100"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), rec, rec2)
	assert.Equal(suite.T(), int64(1), requests.Load())
}

func (suite *IntegrationTestSuite) TestRemoteTierSharedAcrossHosts() {
	store := newInMemoryStore()
	var calls atomic.Int64
	fetch := func(_ context.Context, id string) (map[string]string, error) {
		calls.Add(1)
		return map[string]string{"id": id, "name": "Blue Train"}, nil
	}

	hostA, err := cache.New(cache.Config{
		DefaultTTL: time.Hour,
		Root:       filepath.Join(suite.tempDir, "host-a"),
		Prefix:     "titles",
		Version:    "v1",
		Store:      store,
	})
	require.NoError(suite.T(), err)

	wrappedA := cache.Wrap(hostA, "fetch", fetch)
	_, err = wrappedA(suite.ctx, "t-100", cache.CallOptions{})
	require.NoError(suite.T(), err)

	// The upload runs in the background.
	require.Eventually(suite.T(), func() bool {
		return store.puts.Load() > 0
	}, 2*time.Second, 10*time.Millisecond, "remote upload never landed")

	// A second host with cold local tiers restores from the shared store.
	hostB, err := cache.New(cache.Config{
		DefaultTTL: time.Hour,
		Root:       filepath.Join(suite.tempDir, "host-b"),
		Prefix:     "titles",
		Version:    "v1",
		Store:      store,
	})
	require.NoError(suite.T(), err)

	wrappedB := cache.Wrap(hostB, "fetch", fetch)
	result, err := wrappedB(suite.ctx, "t-100", cache.CallOptions{})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Blue Train", result["name"])
	assert.Equal(suite.T(), int64(1), calls.Load(), "second host must hit the remote tier")
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
