package cache_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpeters1430/Jellyfin-New-sub000/internal/cache"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/log"
)

func newTestStore(t *testing.T, memBudget, diskBudget int64) *cache.Store {
	t.Helper()
	s, err := cache.NewStore(t.TempDir(), memBudget, diskBudget, log.NullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func payload(n int) []byte {
	return bytes.Repeat([]byte{0xAB}, n)
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t, 1<<20, 10<<20)

	want := payload(128)
	s.Put("k1", want)

	got, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = s.Get("absent")
	assert.False(t, ok)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestStoreDemotesEvictionsToDisk(t *testing.T) {
	// Memory holds two 100-byte payloads; the third insert evicts the
	// least recently used one, which must land on disk, not vanish.
	s := newTestStore(t, 200, 10<<20)

	s.Put("a", payload(100))
	s.Put("b", payload(100))
	s.Put("c", payload(100))

	stats := s.Stats()
	assert.Equal(t, 2, stats.MemoryEntries)
	assert.Equal(t, 1, stats.DiskEntries)

	// "a" was demoted; reading it promotes it back to memory.
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, payload(100), got)

	for _, e := range s.List() {
		if e.Key == "a" {
			assert.Equal(t, "memory", e.Tier)
		}
	}
}

func TestStoreRespectsBudgets(t *testing.T) {
	const memBudget, diskBudget = 500, 1200
	s := newTestStore(t, memBudget, diskBudget)

	for i := 0; i < 20; i++ {
		s.Put(string(rune('a'+i)), payload(100))
	}

	stats := s.Stats()
	assert.LessOrEqual(t, stats.MemoryBytes, int64(memBudget))
	assert.LessOrEqual(t, stats.DiskBytes, int64(diskBudget))
	assert.Equal(t, 5, stats.MemoryEntries)
}

func TestStoreGetRefreshesRecency(t *testing.T) {
	// Capacity for two entries. Touching "a" makes "b" the eviction victim.
	s := newTestStore(t, 200, 10<<20)

	s.Put("a", payload(100))
	s.Put("b", payload(100))

	_, ok := s.Get("a")
	require.True(t, ok)

	s.Put("c", payload(100))

	tiers := make(map[string]string)
	for _, e := range s.List() {
		if _, seen := tiers[e.Key]; !seen {
			tiers[e.Key] = e.Tier
		}
	}
	assert.Equal(t, "memory", tiers["a"])
	assert.Equal(t, "disk", tiers["b"])
	assert.Equal(t, "memory", tiers["c"])
}

func TestStoreOversizedPayloadGoesStraightToDisk(t *testing.T) {
	s := newTestStore(t, 100, 10<<20)

	big := payload(500)
	s.Put("huge", big)

	stats := s.Stats()
	assert.Equal(t, 0, stats.MemoryEntries)
	assert.Equal(t, 1, stats.DiskEntries)

	got, ok := s.Get("huge")
	require.True(t, ok)
	assert.Equal(t, big, got)
}

func TestStoreCorruptDiskEntryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	s, err := cache.NewStore(dir, 1, 10<<20, log.NullLogger())
	require.NoError(t, err)
	defer s.Close()

	// Memory budget of one byte forces the payload onto disk immediately.
	s.Put("k1", payload(100))
	require.Equal(t, 1, s.Stats().DiskEntries)

	files, err := filepath.Glob(filepath.Join(dir, "*.img"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.NoError(t, os.WriteFile(files[0], []byte("truncated"), 0644))

	_, ok := s.Get("k1")
	assert.False(t, ok)

	// The stale index entry is dropped along with the miss.
	assert.Equal(t, 0, s.Stats().DiskEntries)
}

func TestStoreFlushMemoryDemotesEverything(t *testing.T) {
	s := newTestStore(t, 1<<20, 10<<20)

	s.Put("a", payload(100))
	s.Put("b", payload(100))

	s.FlushMemory()

	stats := s.Stats()
	assert.Equal(t, 0, stats.MemoryEntries)
	assert.Equal(t, 2, stats.DiskEntries)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, payload(100), got)
}

func TestStoreTrimMemory(t *testing.T) {
	s := newTestStore(t, 1<<20, 10<<20)

	for i := 0; i < 5; i++ {
		s.Put(string(rune('a'+i)), payload(100))
	}

	s.TrimMemory(250)

	stats := s.Stats()
	assert.LessOrEqual(t, stats.MemoryBytes, int64(250))
	assert.Equal(t, 2, stats.MemoryEntries)
	assert.Equal(t, 3, stats.DiskEntries)
}

func TestStoreTrimDiskEvictsOldestFirst(t *testing.T) {
	s := newTestStore(t, 1, 10<<20)

	s.Put("old", payload(100))
	time.Sleep(5 * time.Millisecond)
	s.Put("new", payload(100))

	s.TrimDisk(100)

	_, ok := s.Get("old")
	assert.False(t, ok)
	_, ok = s.Get("new")
	assert.True(t, ok)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := cache.NewStore(dir, 1<<20, 10<<20, log.NullLogger())
	require.NoError(t, err)
	s.Put("k1", payload(100))
	s.FlushMemory()
	require.NoError(t, s.Close())

	s, err = cache.NewStore(dir, 1<<20, 10<<20, log.NullLogger())
	require.NoError(t, err)
	defer s.Close()

	got, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, payload(100), got)
}

func TestStoreClear(t *testing.T) {
	s := newTestStore(t, 200, 10<<20)

	s.Put("a", payload(100))
	s.Put("b", payload(100))
	s.Put("c", payload(100)) // demotes one to disk

	s.Clear()

	stats := s.Stats()
	assert.Zero(t, stats.MemoryEntries)
	assert.Zero(t, stats.DiskEntries)
	assert.Empty(t, s.List())

	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestStoreListOrdersMemoryFirstMostRecentFirst(t *testing.T) {
	s := newTestStore(t, 1<<20, 10<<20)

	s.Put("first", payload(10))
	s.Put("second", payload(10))
	s.Put("third", payload(10))

	entries := s.List()
	require.Len(t, entries, 3)
	assert.Equal(t, "third", entries[0].Key)
	assert.Equal(t, "second", entries[1].Key)
	assert.Equal(t, "first", entries[2].Key)
	for _, e := range entries {
		assert.Equal(t, "memory", e.Tier)
	}
}
