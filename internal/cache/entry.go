package cache

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/stratamedia/strata/pkg/errors"
)

// Outcome is the result of a tier lookup. Invalidation conditions are modeled
// as explicit outcomes rather than errors; only Found carries an entry.
type Outcome int

const (
	Found Outcome = iota
	NotFound
	Expired
	VersionMismatch
	Corrupted
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Expired:
		return "expired"
	case VersionMismatch:
		return "version_mismatch"
	case Corrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// NeverExpire is the TTL sentinel disabling expiration. On write it stores the
// never-expire epoch; on read it skips expiry validation.
const NeverExpire = time.Duration(-1)

// neverExpireEpoch marks an entry written with NeverExpire.
const neverExpireEpoch int64 = -1

// Entry is the unit of storage, immutable once constructed. Updates are
// whole-entry replacements.
type Entry struct {
	Key       string `json:"key"`
	Payload   []byte `json:"payload"`
	Size      int64  `json:"size"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
	Version   string `json:"version"`
	Operation string `json:"operation"`
	Args      string `json:"args,omitempty"`
	Checksum  string `json:"checksum"`

	// value caches the decoded payload for shared reads. Memory-tier only,
	// set at construction, never serialized.
	value any
}

// newEntry builds an entry with an absolute expiry resolved from ttl at write
// time. A relative ttl is converted to an epoch; NeverExpire stores the sentinel.
func newEntry(key, operation, args string, payload []byte, ttl time.Duration, version string, value any, now time.Time) *Entry {
	expires := neverExpireEpoch
	if ttl != NeverExpire {
		expires = now.Add(ttl).Unix()
	}
	return &Entry{
		Key:       key,
		Payload:   payload,
		Size:      int64(len(payload)),
		CreatedAt: now.Unix(),
		ExpiresAt: expires,
		Version:   version,
		Operation: operation,
		Args:      args,
		Checksum:  checksum(payload),
		value:     value,
	}
}

// Clone returns a deep copy suitable for exclusive reads. The decoded-value
// cache is not carried over so a mutating caller cannot reach shared state.
func (e *Entry) Clone() *Entry {
	clone := *e
	clone.Payload = append([]byte(nil), e.Payload...)
	clone.value = nil
	return &clone
}

// expired reports whether the entry is stale at now. readNeverExpire skips
// expiry entirely; a never-expire entry read without that flag falls back to
// the instance default TTL measured from creation.
func (e *Entry) expired(readNeverExpire bool, defaultTTL time.Duration, now time.Time) bool {
	if readNeverExpire {
		return false
	}
	expires := e.ExpiresAt
	if expires == neverExpireEpoch {
		if defaultTTL == NeverExpire {
			return false
		}
		expires = e.CreatedAt + int64(defaultTTL/time.Second)
	}
	return now.Unix() > expires
}

// encode serializes the entry to its wire form: a gzip-compressed JSON
// envelope, byte-identical on disk and in the remote store.
func (e *Entry) encode() ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(e); err != nil {
		zw.Close()
		return nil, errors.Wrap(errors.ErrCodeEncodeFailed, "failed to encode entry", err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEncodeFailed, "failed to compress entry", err)
	}
	return buf.Bytes(), nil
}

// decodeEntry parses the wire form and verifies payload integrity.
func decodeEntry(data []byte) (*Entry, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEntryCorrupted, "failed to decompress entry", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEntryCorrupted, "failed to read entry", err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEntryCorrupted, "failed to parse entry", err)
	}
	if e.Key == "" {
		return nil, errors.New(errors.ErrCodeEntryCorrupted, "entry missing key")
	}
	if checksum(e.Payload) != e.Checksum {
		return nil, errors.New(errors.ErrCodeEntryCorrupted, "payload checksum mismatch")
	}
	return &e, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// isDegenerate reports whether a result value is too empty to be worth caching:
// nil, zero values, empty strings, slices, and maps. Such results are never
// persisted to any tier.
func isDegenerate(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	default:
		return rv.IsZero()
	}
}
