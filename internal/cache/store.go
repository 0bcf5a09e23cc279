package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// EntryInfo describes one cached payload for inspection tooling.
type EntryInfo struct {
	Key        string
	Size       int64
	LastAccess time.Time
	Tier       string // "memory" or "disk"
}

// Stats summarizes the store's occupancy and effectiveness.
type Stats struct {
	MemoryBytes   int64
	MemoryEntries int
	DiskBytes     int64
	DiskEntries   int
	Hits          uint64
	Misses        uint64
}

// Store is the shared image cache. The memory tier fronts the disk tier:
// gets promote disk hits into memory, memory evictions demote payloads to
// disk (write-back), and disk evictions delete. All mutation happens under
// one lock so byte accounting and LRU order stay consistent under concurrent
// requests.
//
// The store is the sole freshness authority: server cache headers are not
// consulted, and an entry lives until evicted or trimmed.
type Store struct {
	mu     sync.Mutex
	mem    *memoryTier
	disk   *diskTier
	hits   uint64
	misses uint64
	logger *slog.Logger
}

// NewStore opens (or creates) a store rooted at dir. memBudget and
// diskBudget are byte limits for the respective tiers.
func NewStore(dir string, memBudget, diskBudget int64, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	disk, err := newDiskTier(dir, diskBudget, logger)
	if err != nil {
		return nil, err
	}

	return &Store{
		mem:    newMemoryTier(memBudget),
		disk:   disk,
		logger: logger,
	}, nil
}

// Get returns the payload for key, if cached in either tier. Disk hits are
// promoted into the memory tier. Unreadable disk entries count as misses.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payload, ok := s.mem.get(key); ok {
		s.hits++
		return payload, true
	}

	payload, ok := s.disk.get(key)
	if !ok {
		s.misses++
		return nil, false
	}

	s.hits++
	s.demote(s.mem.put(key, payload))
	return payload, true
}

// Put stores the payload in the memory tier, demoting whatever the insert
// evicts.
func (s *Store) Put(key string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demote(s.mem.put(key, payload))
}

// demote writes freshly evicted memory entries through to disk.
// Caller holds s.mu.
func (s *Store) demote(evicted []memEntry) {
	for _, e := range evicted {
		s.disk.put(e.key, e.payload)
		s.logger.Debug("demoted cache entry to disk", "key", e.key, "size", e.size)
	}
}

// TrimMemory shrinks the memory tier to at most target bytes, demoting the
// evicted payloads.
func (s *Store) TrimMemory(target int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target < 0 {
		target = 0
	}
	s.demote(s.mem.evictOver(target))
}

// FlushMemory empties the memory tier entirely, demoting everything to disk.
// This is the response to critical memory pressure and is stronger than
// ordinary capacity eviction.
func (s *Store) FlushMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demote(s.mem.flush())
	s.logger.Info("memory cache flushed")
}

// TrimDisk shrinks the disk tier to at most target bytes.
func (s *Store) TrimDisk(target int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target < 0 {
		target = 0
	}
	s.disk.trim(target)
}

// Clear drops both tiers.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem.flushDiscard()
	s.disk.clear()
}

// MemoryBudget returns the configured memory-tier byte limit.
func (s *Store) MemoryBudget() int64 {
	return s.mem.budget
}

// List returns every cached entry, memory tier first, most recent first
// within each tier.
func (s *Store) List() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []EntryInfo
	for elem := s.mem.ll.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*memEntry)
		out = append(out, EntryInfo{Key: e.key, Size: e.size, LastAccess: e.lastAccess, Tier: "memory"})
	}

	diskEntries := s.disk.entries()
	sort.Slice(diskEntries, func(i, j int) bool {
		return diskEntries[i].meta.LastAccess > diskEntries[j].meta.LastAccess
	})
	for _, e := range diskEntries {
		out = append(out, EntryInfo{
			Key:        e.key,
			Size:       e.meta.Size,
			LastAccess: time.Unix(0, e.meta.LastAccess),
			Tier:       "disk",
		})
	}
	return out
}

// Stats returns current occupancy and hit counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	diskBytes, diskCount := s.disk.stats()
	return Stats{
		MemoryBytes:   s.mem.bytes,
		MemoryEntries: s.mem.len(),
		DiskBytes:     diskBytes,
		DiskEntries:   diskCount,
		Hits:          s.hits,
		Misses:        s.misses,
	}
}

// Close releases the disk index.
func (s *Store) Close() error {
	return s.disk.close()
}
