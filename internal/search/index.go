package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stratamedia/strata/internal/cache"
	"github.com/stratamedia/strata/internal/provider"
)

// Document is one searchable unit in the index.
type Document struct {
	ID     string            `json:"id"`
	Kind   string            `json:"kind"`
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields,omitempty"`
	Boost  float64           `json:"boost"`
}

// Sink receives flushed document batches.
type Sink interface {
	Write(ctx context.Context, index string, docs []Document) error
}

// Options configures a Writer.
type Options struct {
	// Index is the target index name.
	Index string

	// BatchSize triggers an automatic flush once this many documents are
	// pending. Defaults to 100.
	BatchSize int

	// Cache memoizes document builds when non-nil.
	Cache *cache.Cache

	// BuildTTL is the memoization TTL for built documents. Zero keeps the
	// cache default.
	BuildTTL time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Writer batches normalized records into index documents. Document builds are
// deterministic, so they are memoized across runs.
type Writer struct {
	index     string
	batchSize int
	sink      Sink
	build     func(context.Context, provider.Record, cache.CallOptions) (Document, error)
	buildOpts cache.CallOptions
	logger    *slog.Logger

	mu      sync.Mutex
	pending []Document
	written int
}

// NewWriter creates a Writer flushing into sink.
func NewWriter(sink Sink, opts Options) *Writer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		index:     opts.Index,
		batchSize: opts.BatchSize,
		sink:      sink,
		logger:    logger.With("component", "search", "index", opts.Index),
	}

	if opts.Cache != nil {
		w.build = cache.Wrap(opts.Cache, "build_document", buildDocument)
		w.buildOpts = cache.CallOptions{Immutable: true, TTL: opts.BuildTTL}
	} else {
		w.build = func(ctx context.Context, rec provider.Record, _ cache.CallOptions) (Document, error) {
			return buildDocument(ctx, rec)
		}
	}
	return w
}

// Add builds the document for a record and queues it, flushing when the batch
// is full.
func (w *Writer) Add(ctx context.Context, rec provider.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record has no id")
	}

	doc, err := w.build(ctx, rec, w.buildOpts)
	if err != nil {
		return fmt.Errorf("failed to build document for %s: %w", rec.ID, err)
	}

	w.mu.Lock()
	w.pending = append(w.pending, doc)
	full := len(w.pending) >= w.batchSize
	w.mu.Unlock()

	if full {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes all pending documents to the sink.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := w.sink.Write(ctx, w.index, batch); err != nil {
		// Put the batch back so a later flush can retry it.
		w.mu.Lock()
		w.pending = append(batch, w.pending...)
		w.mu.Unlock()
		return fmt.Errorf("failed to flush %d documents: %w", len(batch), err)
	}

	w.mu.Lock()
	w.written += len(batch)
	w.mu.Unlock()
	w.logger.Debug("flushed batch", "documents", len(batch))
	return nil
}

// Written reports the number of documents successfully flushed.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// buildDocument turns a normalized record into its index document. The text
// field concatenates every searchable value; the boost follows provider
// popularity.
func buildDocument(_ context.Context, rec provider.Record) (Document, error) {
	parts := []string{rec.Name}
	if rec.Artist != "" {
		parts = append(parts, rec.Artist)
	}
	parts = append(parts, rec.Genres...)

	fields := map[string]string{
		"source": rec.Source,
	}
	if rec.Artist != "" {
		fields["artist"] = rec.Artist
	}
	if rec.Year > 0 {
		fields["year"] = fmt.Sprintf("%d", rec.Year)
	}
	if len(rec.Genres) > 0 {
		genres := append([]string(nil), rec.Genres...)
		sort.Strings(genres)
		fields["genres"] = strings.Join(genres, ",")
	}

	boost := rec.Popularity
	if boost <= 0 {
		boost = 0.1
	}

	return Document{
		ID:     rec.Kind + ":" + rec.ID,
		Kind:   rec.Kind,
		Text:   strings.ToLower(strings.Join(parts, " ")),
		Fields: fields,
		Boost:  boost,
	}, nil
}
