// Package metrics provides Prometheus instrumentation for the strata cache tiers.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Collector owns the Prometheus registry and the cache-level metric families.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	tierHits      *prometheus.CounterVec
	misses        *prometheus.CounterVec
	executions    *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
	coalesced     *prometheus.CounterVec
	memoryBytes   *prometheus.GaugeVec

	server *http.Server
}

// NewCollector creates a metrics collector. A disabled collector is inert and
// hands out nil CacheMetrics, which are safe to use.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "strata",
		}
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "strata"
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		config:   config,
		registry: registry,

		tierHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by namespace and tier",
		}, []string{"cache", "tier"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Full cache misses by namespace",
		}, []string{"cache"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "cache",
			Name:      "executions_total",
			Help:      "Underlying operation executions by namespace and operation",
		}, []string{"cache", "operation"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entry evictions by namespace, tier, and reason",
		}, []string{"cache", "tier", "reason"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "cache",
			Name:      "storage_errors_total",
			Help:      "Suppressed storage-tier failures by namespace and tier",
		}, []string{"cache", "tier"}),
		coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "cache",
			Name:      "coalesced_calls_total",
			Help:      "Shared-mode callers that joined an in-flight execution",
		}, []string{"cache"}),
		memoryBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "cache",
			Name:      "memory_bytes",
			Help:      "Bytes resident in the memory tier by namespace",
		}, []string{"cache"}),
	}

	for _, col := range []prometheus.Collector{
		c.tierHits, c.misses, c.executions, c.evictions, c.storageErrors, c.coalesced, c.memoryBytes,
	} {
		if err := registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return c, nil
}

// Cache returns namespace-curried metrics for one cache instance.
func (c *Collector) Cache(name string) *CacheMetrics {
	if c == nil || c.registry == nil {
		return nil
	}
	return &CacheMetrics{collector: c, name: name}
}

// Handler returns the HTTP handler serving the registry.
func (c *Collector) Handler() http.Handler {
	if c.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Start serves the metrics endpoint in the background.
func (c *Collector) Start() error {
	if c.registry == nil || c.config.Port == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())
	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Metrics endpoint failure must not take the process down.
			_ = err
		}
	}()

	return nil
}

// Stop shuts down the metrics endpoint.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// CacheMetrics records events for a single cache namespace. A nil receiver is
// valid and records nothing.
type CacheMetrics struct {
	collector *Collector
	name      string
}

// Hit records a cache hit at the given tier.
func (m *CacheMetrics) Hit(tier string) {
	if m == nil {
		return
	}
	m.collector.tierHits.WithLabelValues(m.name, tier).Inc()
}

// Miss records a full cache miss.
func (m *CacheMetrics) Miss() {
	if m == nil {
		return
	}
	m.collector.misses.WithLabelValues(m.name).Inc()
}

// Execution records one underlying operation execution.
func (m *CacheMetrics) Execution(operation string) {
	if m == nil {
		return
	}
	m.collector.executions.WithLabelValues(m.name, operation).Inc()
}

// Eviction records an entry removal with its reason.
func (m *CacheMetrics) Eviction(tier, reason string) {
	if m == nil {
		return
	}
	m.collector.evictions.WithLabelValues(m.name, tier, reason).Inc()
}

// StorageError records a suppressed storage-tier failure.
func (m *CacheMetrics) StorageError(tier string) {
	if m == nil {
		return
	}
	m.collector.storageErrors.WithLabelValues(m.name, tier).Inc()
}

// Coalesced records a caller that joined an in-flight shared execution.
func (m *CacheMetrics) Coalesced() {
	if m == nil {
		return
	}
	m.collector.coalesced.WithLabelValues(m.name).Inc()
}

// SetMemoryBytes records current memory-tier usage.
func (m *CacheMetrics) SetMemoryBytes(n int64) {
	if m == nil {
		return
	}
	m.collector.memoryBytes.WithLabelValues(m.name).Set(float64(n))
}
