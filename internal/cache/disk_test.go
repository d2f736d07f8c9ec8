package cache

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testDiskTier(t *testing.T) *diskTier {
	t.Helper()
	d, err := newDiskTier(t.TempDir(), "titles", 200*time.Millisecond, 5*time.Second, slog.Default())
	if err != nil {
		t.Fatalf("newDiskTier failed: %v", err)
	}
	return d
}

func encodedEntry(t *testing.T, key, payload string) []byte {
	t.Helper()
	e := newEntry(key, "op", "", []byte(payload), time.Hour, "v1", nil, time.Now())
	data, err := e.encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return data
}

func TestDiskTierPutGet(t *testing.T) {
	d := testDiskTier(t)

	if _, out := d.get("missing"); out != NotFound {
		t.Errorf("expected NotFound, got %v", out)
	}

	data := encodedEntry(t, "k1", `{"name":"A"}`)
	if err := d.put("k1", data); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	e, out := d.get("k1")
	if out != Found {
		t.Fatalf("expected Found, got %v", out)
	}
	if string(e.Payload) != `{"name":"A"}` {
		t.Errorf("payload = %s", e.Payload)
	}

	// The lock file must not outlive the write.
	if _, err := os.Stat(d.path("k1") + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file left behind after write")
	}
}

func TestDiskTierCorruptFileDeletedOnRead(t *testing.T) {
	d := testDiskTier(t)
	if err := os.WriteFile(d.path("bad"), []byte("not a cache entry"), 0o640); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, out := d.get("bad"); out != Corrupted {
		t.Errorf("expected Corrupted, got %v", out)
	}
	if _, err := os.Stat(d.path("bad")); !os.IsNotExist(err) {
		t.Error("corrupt file not deleted")
	}
	// Second read is a plain miss.
	if _, out := d.get("bad"); out != NotFound {
		t.Error("expected NotFound after corrupt file removal")
	}
}

func TestDiskTierStaleLockRemoved(t *testing.T) {
	dir := t.TempDir()
	d, err := newDiskTier(dir, "titles", 200*time.Millisecond, 50*time.Millisecond, slog.Default())
	if err != nil {
		t.Fatalf("newDiskTier failed: %v", err)
	}

	lockPath := d.path("k1") + ".lock"
	if err := os.WriteFile(lockPath, nil, 0o640); err != nil {
		t.Fatalf("write lock failed: %v", err)
	}
	old := time.Now().Add(-time.Minute)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}

	if err := d.put("k1", encodedEntry(t, "k1", `{"name":"A"}`)); err != nil {
		t.Fatalf("put failed despite stale lock: %v", err)
	}
	if _, out := d.get("k1"); out != Found {
		t.Error("entry not written after stale lock recovery")
	}
}

func TestDiskTierWriteIsAtomic(t *testing.T) {
	d := testDiskTier(t)
	if err := d.put("k1", encodedEntry(t, "k1", `{"name":"A"}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	entries, err := filepath.Glob(d.path("k1") + ".tmp")
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(entries) != 0 {
		t.Error("temp file left behind after rename")
	}
}

func TestDiskTierOverwrite(t *testing.T) {
	d := testDiskTier(t)
	if err := d.put("k1", encodedEntry(t, "k1", `{"name":"A"}`)); err != nil {
		t.Fatalf("first put failed: %v", err)
	}
	if err := d.put("k1", encodedEntry(t, "k1", `{"name":"B"}`)); err != nil {
		t.Fatalf("second put failed: %v", err)
	}

	e, out := d.get("k1")
	if out != Found || string(e.Payload) != `{"name":"B"}` {
		t.Errorf("expected replacement payload, got %v %s", out, e.Payload)
	}
}

func TestDiskTierDelete(t *testing.T) {
	d := testDiskTier(t)
	if err := d.put("k1", encodedEntry(t, "k1", `{"name":"A"}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	d.delete("k1")
	if _, out := d.get("k1"); out != NotFound {
		t.Error("entry still present after delete")
	}
	// Deleting a missing key is a no-op.
	d.delete("k1")
}
