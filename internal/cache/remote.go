package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/stratamedia/strata/pkg/errors"
	"github.com/stratamedia/strata/pkg/retry"
)

// ObjectStore is the durable backend behind the remote tier. Implementations
// must translate missing objects into errors matched by errors.IsNotFound.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// remoteTier backs up disk-tier bytes to a durable object store. Every call is
// bounded by its own timeout and best-effort: failures are logged, counted,
// and swallowed. Transient errors are retried with exponential backoff;
// permanent errors abort immediately.
type remoteTier struct {
	store   ObjectStore
	prefix  string
	timeout time.Duration
	retryer *retry.Retryer
	logger  *slog.Logger
}

func newRemoteTier(store ObjectStore, prefix string, timeout time.Duration, logger *slog.Logger) *remoteTier {
	return &remoteTier{
		store:   store,
		prefix:  prefix,
		timeout: timeout,
		retryer: retry.New(retry.DefaultConfig()),
		logger:  logger,
	}
}

func (r *remoteTier) objectKey(key string) string {
	return r.prefix + "/" + key
}

// upload pushes entry bytes to the store. Called fire-and-forget after a
// successful disk write; the caller never observes the result.
func (r *remoteTier) upload(key string, data []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.retryer.Do(ctx, func(ctx context.Context) error {
		return r.store.Put(ctx, r.objectKey(key), data)
	})
	if err != nil {
		r.logger.Warn("remote upload failed", "key", key, "error", err)
		return false
	}
	return true
}

// download fetches entry bytes on a full local miss. Any failure, including
// retry exhaustion, reads as NotFound.
func (r *remoteTier) download(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var data []byte
	err := r.retryer.Do(ctx, func(ctx context.Context) error {
		b, err := r.store.Get(ctx, r.objectKey(key))
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		if !errors.IsNotFound(err) {
			r.logger.Warn("remote download failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

// remove deletes the remote object, best-effort.
func (r *remoteTier) remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Delete(ctx, r.objectKey(key)); err != nil {
		r.logger.Warn("remote delete failed", "key", key, "error", err)
	}
}
