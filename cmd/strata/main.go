package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stratamedia/strata/internal/cache"
	"github.com/stratamedia/strata/internal/config"
	"github.com/stratamedia/strata/internal/metrics"
	"github.com/stratamedia/strata/internal/provider"
	"github.com/stratamedia/strata/internal/search"
	"github.com/stratamedia/strata/internal/storage/s3"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML configuration file")
		titleIDs   = flag.String("titles", "", "comma-separated title IDs to aggregate")
		artistName = flag.String("artist", "", "artist name to search and index")
		region     = flag.String("region", "", "provider region hint")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *titleIDs, *artistName, *region); err != nil {
		fmt.Fprintf(os.Stderr, "strata: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, titleIDs, artistName, region string) error {
	cfg := config.NewDefault()
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := newLogger(cfg.Global)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled: cfg.Monitoring.MetricsEnabled,
		Port:    cfg.Monitoring.MetricsPort,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}
	if cfg.Monitoring.MetricsEnabled {
		if err := collector.Start(); err != nil {
			return fmt.Errorf("failed to start metrics endpoint: %w", err)
		}
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = collector.Stop(shutdownCtx)
		}()
	}

	var store cache.ObjectStore
	if cfg.Remote.Enabled {
		client, err := s3.New(ctx, &s3.Config{
			Region:         cfg.Remote.Region,
			Bucket:         cfg.Remote.Bucket,
			Endpoint:       cfg.Remote.Endpoint,
			ForcePathStyle: cfg.Remote.ForcePathStyle,
			MaxRetries:     cfg.Remote.MaxRetries,
			RequestTimeout: cfg.Remote.RequestTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create object store client: %w", err)
		}
		store = client
	}

	caches, err := buildCaches(cfg, store, collector, logger)
	if err != nil {
		return err
	}

	return aggregate(ctx, cfg, caches, store, logger, titleIDs, artistName, region)
}

// buildCaches constructs one cache instance per configured namespace.
func buildCaches(cfg *config.Configuration, store cache.ObjectStore, collector *metrics.Collector, logger *slog.Logger) (map[string]*cache.Cache, error) {
	memBytes, err := config.ParseSize(cfg.Cache.MaxMemory)
	if err != nil {
		return nil, fmt.Errorf("invalid max_memory: %w", err)
	}

	namespaces := make(map[string]config.NamespaceConfig, len(cfg.Cache.Namespaces)+3)
	for name, ns := range cfg.Cache.Namespaces {
		namespaces[name] = ns
	}
	// The aggregation pass always needs these three.
	for _, name := range []string{"titles", "artists", "search"} {
		if _, ok := namespaces[name]; !ok {
			namespaces[name] = config.NamespaceConfig{Version: "v1"}
		}
	}

	caches := make(map[string]*cache.Cache, len(namespaces))
	for name, ns := range namespaces {
		ttl := ns.TTL
		if ttl == 0 {
			ttl = cfg.Cache.DefaultTTL
		}
		c, err := cache.New(cache.Config{
			DefaultTTL:      ttl,
			MaxMemoryBytes:  memBytes,
			Root:            cfg.Cache.Root,
			Prefix:          name,
			Version:         ns.Version,
			MinPayloadBytes: int64(cfg.Cache.MinPayloadBytes),
			LockTimeout:     cfg.Cache.LockTimeout,
			StaleLockAge:    cfg.Cache.StaleLockAge,
			RemoteTimeout:   cfg.Remote.RequestTimeout,
			Store:           store,
			Logger:          logger,
			Metrics:         collector.Cache(name),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create cache namespace %s: %w", name, err)
		}
		caches[name] = c
	}
	return caches, nil
}

// aggregate runs one fetch, normalize, index pass over the configured
// providers.
func aggregate(ctx context.Context, cfg *config.Configuration, caches map[string]*cache.Cache, store cache.ObjectStore, logger *slog.Logger, titleIDs, artistName, region string) error {
	var sink search.Sink
	if store != nil {
		if putter, ok := store.(search.ObjectPutter); ok {
			sink = search.NewObjectSink(putter, "index", logger)
		}
	}
	if sink == nil {
		sink = &search.LogSink{Logger: logger}
	}

	writer := search.NewWriter(sink, search.Options{
		Index:     cfg.Search.Index,
		BatchSize: cfg.Search.BatchSize,
		Cache:     caches["search"],
		BuildTTL:  cfg.Search.BuildTTL,
		Logger:    logger,
	})

	for name, pc := range cfg.Providers.Endpoints {
		client := provider.NewClient(provider.Options{
			Name:      name,
			BaseURL:   pc.BaseURL,
			APIKey:    pc.APIKey,
			UserAgent: cfg.Providers.UserAgent,
			Timeout:   pc.Timeout,
			Logger:    logger,
		})
		titles := provider.NewService(client, caches["titles"])
		artists := provider.NewService(client, caches["artists"])

		for _, id := range splitList(titleIDs) {
			rec, err := titles.FetchTitle(ctx, provider.TitleRequest{ID: id, Region: region})
			if err != nil {
				logger.Warn("title fetch failed", "provider", name, "title", id, "error", err)
				continue
			}
			if err := writer.Add(ctx, rec); err != nil {
				logger.Warn("failed to index title", "title", id, "error", err)
			}
		}

		if artistName != "" {
			records, err := artists.SearchArtist(ctx, provider.ArtistQuery{Name: artistName, Limit: 10})
			if err != nil {
				logger.Warn("artist search failed", "provider", name, "artist", artistName, "error", err)
				continue
			}
			for _, rec := range records {
				if err := writer.Add(ctx, rec); err != nil {
					logger.Warn("failed to index artist", "artist", rec.Name, "error", err)
				}
			}
		}
	}

	if err := writer.Flush(ctx); err != nil {
		return err
	}
	logger.Info("aggregation pass complete", "documents", writer.Written())
	return nil
}

func newLogger(cfg config.GlobalConfig) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeLog := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closeLog = func() { _ = f.Close() }
	}

	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), closeLog, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
