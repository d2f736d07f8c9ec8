/*
Package cache provides tiered, fail-open memoization for expensive and
rate-limited operations.

Every outbound call in strata runs through this package: an operation is
wrapped once, and each invocation is addressed by a deterministic fingerprint
of the operation name and its arguments. Results flow through three tiers:

	┌─────────────────────────────────────────────┐
	│            Wrapped Operation                │
	│   (provider fetch, enrichment, indexing)    │
	└─────────────────────────────────────────────┘
	                     │
	┌─────────────────────────────────────────────┐
	│              Memory Tier                    │
	│   process-wide map, byte budget,            │
	│   full clear on overflow                    │
	└─────────────────────────────────────────────┘
	                     │
	┌─────────────────────────────────────────────┐
	│               Disk Tier                     │
	│   one file per key, advisory lock files,    │
	│   corrupt files deleted on read             │
	└─────────────────────────────────────────────┘
	                     │
	┌─────────────────────────────────────────────┐
	│              Remote Tier                    │
	│   optional S3 backup, retry with backoff,   │
	│   strictly best-effort                      │
	└─────────────────────────────────────────────┘

Entries carry an absolute expiry and the cache version at write time; either
can invalidate on read. Degenerate results (zero values, empty collections,
tiny payloads) are never persisted. Shared-mode calls coalesce concurrent
callers for the same key into a single execution.

The subsystem is strictly fail-open: no tier failure may change what the
wrapped operation returns, and the only error a caller ever sees is the
operation's own.
*/
package cache
