package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stratamedia/strata/internal/metrics"
)

// Config configures one cache instance. An instance owns a namespace: its
// memory map, its disk directory, its remote prefix, and its lock table.
type Config struct {
	// DefaultTTL applies when a call passes no TTL. NeverExpire disables
	// expiration at write time.
	DefaultTTL time.Duration

	// MaxMemoryBytes is the memory-tier budget. Exceeding it clears the whole
	// tier. Zero means unbounded.
	MaxMemoryBytes int64

	// Root is the disk-tier directory; entries live under Root/Prefix.
	Root string

	// Prefix namespaces keys on disk and in the remote store.
	Prefix string

	// Version invalidates all previously written entries when changed.
	Version string

	// MinPayloadBytes filters out degenerate payloads below this size.
	MinPayloadBytes int64

	// LockTimeout bounds disk advisory lock acquisition.
	LockTimeout time.Duration

	// StaleLockAge is the age past which an abandoned lock file is removed.
	StaleLockAge time.Duration

	// RemoteTimeout bounds each remote upload and download.
	RemoteTimeout time.Duration

	// Store enables the remote tier when non-nil.
	Store ObjectStore

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics records cache telemetry when non-nil.
	Metrics *metrics.CacheMetrics
}

// CallOptions carries the per-call cache controls. These options configure the
// wrapper and never participate in key fingerprinting.
type CallOptions struct {
	// TTL overrides the instance default for this call. Zero keeps the
	// default; NeverExpire writes a never-expiring entry and skips expiry
	// validation when reading.
	TTL time.Duration

	// Shared coalesces concurrent callers on the same key so the underlying
	// operation executes at most once among them.
	Shared bool

	// Immutable lets the cache return its live decoded value on memory hits.
	// The default hands back a fresh copy the caller may freely mutate.
	Immutable bool

	// SkipCache bypasses all cache reads and writes for this call.
	SkipCache bool

	// SkipCacheUpdate reads from cache normally but never writes a fresh
	// result back.
	SkipCacheUpdate bool

	// Key replaces the computed fingerprint entirely.
	Key string
}

// Cache is a tiered memoization cache: memory, disk, and an optional remote
// object store. All tiers fail open; the only error a caller ever sees is one
// returned by the wrapped operation itself.
type Cache struct {
	cfg    Config
	memory *memoryTier
	disk   *diskTier
	remote *remoteTier
	flight singleflight.Group
	logger *slog.Logger
	stats  *metrics.CacheMetrics
}

// New constructs a cache instance, creating its disk directory.
func New(cfg Config) (*Cache, error) {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 3 * time.Second
	}
	if cfg.StaleLockAge <= 0 {
		cfg.StaleLockAge = 5 * time.Second
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 30 * time.Second
	}
	if cfg.MinPayloadBytes <= 0 {
		cfg.MinPayloadBytes = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache", "namespace", cfg.Prefix)

	disk, err := newDiskTier(cfg.Root, cfg.Prefix, cfg.LockTimeout, cfg.StaleLockAge, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		cfg:    cfg,
		memory: newMemoryTier(cfg.MaxMemoryBytes),
		disk:   disk,
		logger: logger,
		stats:  cfg.Metrics,
	}
	if cfg.Store != nil {
		c.remote = newRemoteTier(cfg.Store, cfg.Prefix, cfg.RemoteTimeout, logger)
	}
	return c, nil
}

// Wrap memoizes an operation through the cache. The returned function has the
// same failure behavior as fn: cache-tier failures degrade silently and fn's
// own error, if any, is propagated unchanged and never cached.
func Wrap[A, R any](c *Cache, operation string, fn func(context.Context, A) (R, error)) func(context.Context, A, CallOptions) (R, error) {
	return func(ctx context.Context, arg A, opts CallOptions) (R, error) {
		if opts.SkipCache {
			c.stats.Execution(operation)
			return fn(ctx, arg)
		}

		key := Fingerprint(operation, arg, opts.Key)

		if opts.Shared {
			v, err, shared := c.flight.Do(key, func() (any, error) {
				return run(c, ctx, key, operation, arg, opts, fn)
			})
			if shared {
				c.stats.Coalesced()
			}
			if err != nil {
				var zero R
				return zero, err
			}
			return v.(R), nil
		}

		return run(c, ctx, key, operation, arg, opts, fn)
	}
}

// run is the per-call lookup and execution path: memory, disk, remote, then
// the operation itself, populating faster tiers on every hit.
func run[A, R any](c *Cache, ctx context.Context, key, operation string, arg A, opts CallOptions, fn func(context.Context, A) (R, error)) (R, error) {
	var zero R
	now := time.Now()
	readNever := opts.TTL == NeverExpire

	// Memory tier.
	if e, out := c.memory.get(key, !opts.Immutable); out == Found {
		switch c.validate(e, readNever, now) {
		case Found:
			if v, err := materialize[R](e, opts.Immutable); err == nil {
				c.stats.Hit("memory")
				return v, nil
			}
			// Undecodable payload in memory should not happen; treat as corrupt.
			c.invalidate(key, Corrupted)
		case Expired:
			c.invalidate(key, Expired)
		case VersionMismatch:
			c.invalidate(key, VersionMismatch)
		}
	}

	// Disk tier.
	if e, out := c.disk.get(key); out == Found {
		switch c.validate(e, readNever, now) {
		case Found:
			if v, err := materialize[R](e, opts.Immutable); err == nil {
				c.stats.Hit("disk")
				c.memory.put(key, e)
				c.stats.SetMemoryBytes(c.memory.size())
				return v, nil
			}
			c.invalidate(key, Corrupted)
		case Expired:
			c.invalidate(key, Expired)
		case VersionMismatch:
			c.invalidate(key, VersionMismatch)
		}
	} else if out == Corrupted {
		c.stats.Eviction("disk", Corrupted.String())
	}

	// Remote tier.
	if c.remote != nil {
		if data, ok := c.remote.download(ctx, key); ok {
			e, err := decodeEntry(data)
			switch {
			case err != nil:
				// Corrupt object: drop it so the next miss does not refetch it.
				// Synchronous so a fresh upload for the same key cannot race
				// the removal.
				c.remote.remove(key)
			case c.validate(e, readNever, now) != Found:
				// Expired or written under a different version: invalidate the
				// stored object, best-effort, like the local tiers.
				c.remote.remove(key)
			default:
				if v, err := materialize[R](e, opts.Immutable); err == nil {
					c.stats.Hit("remote")
					// Repopulate local tiers with the identical bytes.
					if err := c.disk.put(key, data); err != nil {
						c.logger.Warn("failed to restore disk tier from remote", "key", key, "error", err)
						c.stats.StorageError("disk")
					}
					c.memory.put(key, e)
					c.stats.SetMemoryBytes(c.memory.size())
					return v, nil
				}
			}
		}
	}

	// Full miss: execute the real operation.
	c.stats.Miss()
	c.stats.Execution(operation)
	result, err := fn(ctx, arg)
	if err != nil {
		return zero, err
	}

	if !opts.SkipCacheUpdate {
		c.persist(key, operation, arg, result, opts, now)
	}
	return result, nil
}

// materialize turns an entry payload into the caller's value. Immutable reads
// reuse the entry's decoded value when present; mutable reads always decode a
// fresh copy.
func materialize[R any](e *Entry, immutable bool) (R, error) {
	if immutable {
		if v, ok := e.value.(R); ok {
			return v, nil
		}
	}
	var v R
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return v, err
	}
	return v, nil
}

// persist writes a fresh result through the tiers: memory, disk, then a
// fire-and-forget remote upload. Degenerate results are filtered out and
// every storage failure is swallowed.
func (c *Cache) persist(key, operation string, arg, result any, opts CallOptions, now time.Time) {
	if isDegenerate(result) {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("result not serializable, skipping cache write", "operation", operation, "error", err)
		return
	}
	if int64(len(payload)) < c.cfg.MinPayloadBytes {
		return
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = c.cfg.DefaultTTL
	}

	e := newEntry(key, operation, argsSnapshot(arg), payload, ttl, c.cfg.Version, detachedValue(payload, result), now)

	if c.memory.put(key, e) {
		c.stats.Eviction("memory", "budget_exceeded")
	}
	c.stats.SetMemoryBytes(c.memory.size())

	data, err := e.encode()
	if err != nil {
		c.logger.Warn("failed to encode entry, skipping disk write", "key", key, "error", err)
		return
	}
	if err := c.disk.put(key, data); err != nil {
		c.logger.Warn("disk write failed", "key", key, "error", err)
		c.stats.StorageError("disk")
		return
	}

	if c.remote != nil {
		go func() {
			if !c.remote.upload(key, data) {
				c.stats.StorageError("remote")
			}
		}()
	}
}

// detachedValue decodes an independent copy of the result for the entry's
// decoded-value cache. The copy must never alias the value handed back to the
// miss-path caller, who is free to mutate it.
func detachedValue(payload []byte, result any) any {
	t := reflect.TypeOf(result)
	if t == nil {
		return nil
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(payload, ptr.Interface()); err != nil {
		return nil
	}
	return ptr.Elem().Interface()
}

// validate checks version and expiry. Violations are outcomes, not errors.
func (c *Cache) validate(e *Entry, readNeverExpire bool, now time.Time) Outcome {
	if e.Version != c.cfg.Version {
		return VersionMismatch
	}
	if e.expired(readNeverExpire, c.cfg.DefaultTTL, now) {
		return Expired
	}
	return Found
}

// invalidate removes a stale entry from the local tiers.
func (c *Cache) invalidate(key string, reason Outcome) {
	c.memory.delete(key)
	c.disk.delete(key)
	c.stats.SetMemoryBytes(c.memory.size())
	c.stats.Eviction("disk", reason.String())
}

// Delete removes an entry from every tier, including the remote store.
func (c *Cache) Delete(key string) {
	c.memory.delete(key)
	c.disk.delete(key)
	c.stats.SetMemoryBytes(c.memory.size())
	if c.remote != nil {
		go c.remote.remove(key)
	}
}

// Clear empties the memory tier.
func (c *Cache) Clear() {
	c.memory.clear()
	c.stats.SetMemoryBytes(0)
}

// MemoryBytes reports current memory-tier usage.
func (c *Cache) MemoryBytes() int64 {
	return c.memory.size()
}

// argsSnapshot renders a short diagnostic form of the call arguments for the
// stored entry.
func argsSnapshot(arg any) string {
	s := fmt.Sprintf("%+v", arg)
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
