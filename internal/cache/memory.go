package cache

import (
	"sync"
)

// memoryTier is the process-wide first tier: a byte-budgeted map of live
// entries. A put that would exceed the budget clears the whole tier before
// inserting; there is no per-entry LRU bookkeeping. The mutex is never held
// across I/O.
type memoryTier struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	bytes    int64
	maxBytes int64
}

func newMemoryTier(maxBytes int64) *memoryTier {
	return &memoryTier{
		entries:  make(map[string]*Entry),
		maxBytes: maxBytes,
	}
}

// get returns the entry for key. Exclusive reads return a deep copy the caller
// may mutate; shared reads return the live entry, which callers must treat as
// read-only.
func (m *memoryTier) get(key string, exclusive bool) (*Entry, Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, NotFound
	}
	if exclusive {
		return e.Clone(), Found
	}
	return e, Found
}

// put inserts an entry, clearing the tier first if the insert would exceed the
// byte budget. Returns true when a full clear happened.
func (m *memoryTier) put(key string, e *Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared := false
	if prev, ok := m.entries[key]; ok {
		m.bytes -= prev.Size
	}
	if m.maxBytes > 0 && m.bytes+e.Size > m.maxBytes {
		m.entries = make(map[string]*Entry)
		m.bytes = 0
		cleared = true
	}
	m.entries[key] = e
	m.bytes += e.Size
	return cleared
}

func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		m.bytes -= e.Size
		delete(m.entries, key)
	}
}

func (m *memoryTier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*Entry)
	m.bytes = 0
}

func (m *memoryTier) size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytes
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
