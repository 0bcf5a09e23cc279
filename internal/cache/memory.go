// Package cache implements the two-tier (memory + disk) image cache. The
// memory tier holds decoded payloads under a byte budget with strict LRU
// eviction; entries it evicts are demoted to the disk tier rather than
// discarded. The disk tier applies the same LRU discipline against a fixed
// byte budget and deletes outright.
package cache

import (
	"container/list"
	"time"
)

type memEntry struct {
	key        string
	payload    []byte
	size       int64
	lastAccess time.Time
}

// memoryTier is an LRU map of payloads under a byte budget. Not safe for
// concurrent use; the owning Store serializes access.
type memoryTier struct {
	budget int64
	bytes  int64
	ll     *list.List // front = most recently used
	index  map[string]*list.Element
}

func newMemoryTier(budget int64) *memoryTier {
	return &memoryTier{
		budget: budget,
		ll:     list.New(),
		index:  make(map[string]*list.Element),
	}
}

func (m *memoryTier) get(key string) ([]byte, bool) {
	elem, ok := m.index[key]
	if !ok {
		return nil, false
	}
	m.ll.MoveToFront(elem)
	entry := elem.Value.(*memEntry)
	entry.lastAccess = time.Now()
	return entry.payload, true
}

// put inserts or replaces key and returns the entries evicted to bring the
// tier back under budget. A payload larger than the whole budget is not
// admitted and is returned as if it had been evicted immediately.
func (m *memoryTier) put(key string, payload []byte) []memEntry {
	size := int64(len(payload))

	if elem, ok := m.index[key]; ok {
		entry := elem.Value.(*memEntry)
		m.bytes += size - entry.size
		entry.payload = payload
		entry.size = size
		entry.lastAccess = time.Now()
		m.ll.MoveToFront(elem)
		return m.evictOver(m.budget)
	}

	if size > m.budget {
		return []memEntry{{key: key, payload: payload, size: size, lastAccess: time.Now()}}
	}

	entry := &memEntry{key: key, payload: payload, size: size, lastAccess: time.Now()}
	m.index[key] = m.ll.PushFront(entry)
	m.bytes += size
	return m.evictOver(m.budget)
}

func (m *memoryTier) remove(key string) {
	elem, ok := m.index[key]
	if !ok {
		return
	}
	entry := elem.Value.(*memEntry)
	m.ll.Remove(elem)
	delete(m.index, key)
	m.bytes -= entry.size
}

// evictOver removes least-recently-used entries until total bytes <= target.
func (m *memoryTier) evictOver(target int64) []memEntry {
	var evicted []memEntry
	for m.bytes > target {
		back := m.ll.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*memEntry)
		m.ll.Remove(back)
		delete(m.index, entry.key)
		m.bytes -= entry.size
		evicted = append(evicted, *entry)
	}
	return evicted
}

// flush empties the tier, returning everything for demotion.
func (m *memoryTier) flush() []memEntry {
	return m.evictOver(0)
}

// flushDiscard empties the tier without returning anything.
func (m *memoryTier) flushDiscard() {
	m.ll.Init()
	m.index = make(map[string]*list.Element)
	m.bytes = 0
}

func (m *memoryTier) len() int {
	return m.ll.Len()
}
