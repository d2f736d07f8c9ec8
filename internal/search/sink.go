package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ObjectPutter is the slice of an object store the sink needs.
type ObjectPutter interface {
	Put(ctx context.Context, key string, data []byte) error
}

// ObjectSink writes document batches as JSON objects into an object store,
// one object per batch. Keys are ordered by write time so a downstream
// indexer can replay them in sequence. Write is safe for concurrent use.
type ObjectSink struct {
	store  ObjectPutter
	prefix string
	logger *slog.Logger
	now    func() time.Time
	seq    atomic.Int64
}

// NewObjectSink creates a sink writing under prefix.
func NewObjectSink(store ObjectPutter, prefix string, logger *slog.Logger) *ObjectSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObjectSink{
		store:  store,
		prefix: prefix,
		logger: logger.With("component", "search"),
		now:    time.Now,
	}
}

// Write implements Sink.
func (s *ObjectSink) Write(ctx context.Context, index string, docs []Document) error {
	data, err := json.Marshal(struct {
		Index     string     `json:"index"`
		Documents []Document `json:"documents"`
	}{Index: index, Documents: docs})
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	seq := s.seq.Add(1)
	key := fmt.Sprintf("%s/%s/%s-%06d.json", s.prefix, index, s.now().UTC().Format("20060102T150405"), seq)
	if err := s.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to store batch %s: %w", key, err)
	}
	s.logger.Debug("stored index batch", "key", key, "documents", len(docs))
	return nil
}

// LogSink logs flushed batches instead of storing them. Useful for local runs
// without an object store.
type LogSink struct {
	Logger *slog.Logger
}

// Write implements Sink.
func (s *LogSink) Write(_ context.Context, index string, docs []Document) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("index batch", "index", index, "documents", len(docs))
	return nil
}
