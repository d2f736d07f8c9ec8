package cache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// diskTier persists one serialized entry per key under a namespace directory.
// Writes are guarded by a sibling advisory lock file; reads take no lock
// (single writer, many readers). The tier is strictly fail-open: every failure
// degrades to a miss or a skipped write.
type diskTier struct {
	dir          string
	lockTimeout  time.Duration
	staleLockAge time.Duration
	logger       *slog.Logger
}

func newDiskTier(root, prefix string, lockTimeout, staleLockAge time.Duration, logger *slog.Logger) (*diskTier, error) {
	dir := filepath.Join(root, prefix)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &diskTier{
		dir:          dir,
		lockTimeout:  lockTimeout,
		staleLockAge: staleLockAge,
		logger:       logger,
	}, nil
}

func (d *diskTier) path(key string) string {
	return filepath.Join(d.dir, key)
}

// get reads and decodes the entry for key. A corrupt or unreadable file is
// deleted and reported as Corrupted so the caller treats it as a miss.
func (d *diskTier) get(key string) (*Entry, Outcome) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFound
		}
		d.logger.Warn("disk read failed", "key", key, "error", err)
		return nil, NotFound
	}

	e, err := decodeEntry(data)
	if err != nil {
		d.logger.Warn("removing corrupt cache file", "key", key, "error", err)
		d.delete(key)
		return nil, Corrupted
	}
	return e, Found
}

// put writes pre-encoded entry bytes under the advisory lock. Lock timeouts
// are non-fatal: the stale lock is removed and the write proceeds.
func (d *diskTier) put(key string, data []byte) error {
	lockPath := d.path(key) + ".lock"
	d.removeStaleLock(lockPath)

	fl := flock.New(lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), d.lockTimeout)
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	cancel()
	if err != nil || !locked {
		// Advisory only. Clear the lock and write anyway.
		d.logger.Warn("disk lock not acquired, proceeding without it", "key", key, "error", err)
		_ = os.Remove(lockPath)
	}
	defer func() {
		if locked {
			_ = fl.Unlock()
		}
		_ = os.Remove(lockPath)
	}()

	return d.writeAtomic(key, data)
}

// writeAtomic stages the file next to its destination and renames it in place.
func (d *diskTier) writeAtomic(key string, data []byte) error {
	path := d.path(key)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (d *diskTier) delete(key string) {
	_ = os.Remove(d.path(key))
}

// removeStaleLock clears lock files abandoned by crashed writers.
func (d *diskTier) removeStaleLock(lockPath string) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > d.staleLockAge {
		d.logger.Warn("removing stale lock file", "path", lockPath, "age", time.Since(info.ModTime()))
		_ = os.Remove(lockPath)
	}
}
