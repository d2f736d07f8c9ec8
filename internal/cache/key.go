package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// maxKeyLength bounds fingerprints so they stay usable as file names and
// object keys across all tiers.
const maxKeyLength = 80

// Fingerprint derives the stable cache key for an operation invocation.
// Identical inputs produce identical keys across processes and runs; any
// change to the argument value changes the key. An explicit override bypasses
// hashing entirely. Call options never participate in the key.
func Fingerprint(operation string, args any, override string) string {
	if override != "" {
		return sanitizeKey(truncateKey(override))
	}

	if isEmptyArgs(args) {
		return sanitizeKey(truncateKey(operation))
	}

	// encoding/json emits map keys in sorted order, which makes the encoded
	// argument bytes deterministic for a given value.
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%+v", args))
	}

	sum := sha256.Sum256(encoded)
	key := fmt.Sprintf("%s.%x", operation, sum[:16])
	return sanitizeKey(truncateKey(key))
}

// isEmptyArgs reports whether args carries no identity at all, in which case
// the operation name alone addresses the entry.
func isEmptyArgs(args any) bool {
	if args == nil {
		return true
	}
	rv := reflect.ValueOf(args)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Struct:
		return rv.NumField() == 0
	default:
		return false
	}
}

// truncateKey bounds the key length, replacing the tail with a short hash of
// the full key so distinct long keys stay distinct.
func truncateKey(key string) string {
	if len(key) <= maxKeyLength {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	suffix := fmt.Sprintf("%x", sum[:8])
	return key[:maxKeyLength-len(suffix)-1] + "-" + suffix
}

// sanitizeKey strips characters unsafe for file names and object keys.
func sanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
