package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketEntries = []byte("entries")

// diskMeta is the persisted index record for one cached payload.
type diskMeta struct {
	File       string `json:"file"`
	Size       int64  `json:"size"`
	LastAccess int64  `json:"last_access"` // unix nanos
}

// diskTier stores payloads as files in a dedicated directory with a BoltDB
// index carrying size and recency for LRU accounting. Not safe for
// concurrent use; the owning Store serializes access.
type diskTier struct {
	dir    string
	budget int64
	db     *bolt.DB
	logger *slog.Logger
}

func newDiskTier(dir string, budget int64, logger *slog.Logger) (*diskTier, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, "index.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &diskTier{dir: dir, budget: budget, db: db, logger: logger}, nil
}

func (d *diskTier) close() error {
	return d.db.Close()
}

func fileNameForKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".img"
}

func (d *diskTier) readMeta(key string) (*diskMeta, bool) {
	var meta *diskMeta
	d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketEntries).Get([]byte(key)); v != nil {
			var m diskMeta
			if json.Unmarshal(v, &m) == nil {
				meta = &m
			}
		}
		return nil
	})
	return meta, meta != nil
}

func (d *diskTier) writeMeta(key string, meta diskMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(key), data)
	})
}

// get returns the payload for key. A missing or unreadable file is treated
// as a miss and the stale entry is removed.
func (d *diskTier) get(key string) ([]byte, bool) {
	meta, ok := d.readMeta(key)
	if !ok {
		return nil, false
	}

	payload, err := os.ReadFile(filepath.Join(d.dir, meta.File))
	if err != nil || int64(len(payload)) != meta.Size {
		d.logger.Warn("dropping unreadable cache entry", "key", key, "error", err)
		d.remove(key)
		return nil, false
	}

	meta.LastAccess = time.Now().UnixNano()
	if err := d.writeMeta(key, *meta); err != nil {
		d.logger.Warn("failed to update cache recency", "key", key, "error", err)
	}
	return payload, true
}

// put stores the payload and trims the tier back under budget.
func (d *diskTier) put(key string, payload []byte) {
	name := fileNameForKey(key)
	path := filepath.Join(d.dir, name)

	if err := os.WriteFile(path, payload, 0644); err != nil {
		d.logger.Warn("failed to write cache file", "key", key, "error", err)
		return
	}

	meta := diskMeta{
		File:       name,
		Size:       int64(len(payload)),
		LastAccess: time.Now().UnixNano(),
	}
	if err := d.writeMeta(key, meta); err != nil {
		d.logger.Warn("failed to index cache file", "key", key, "error", err)
		os.Remove(path)
		return
	}

	d.trim(d.budget)
}

func (d *diskTier) remove(key string) {
	meta, ok := d.readMeta(key)
	if ok {
		os.Remove(filepath.Join(d.dir, meta.File))
	}
	d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(key))
	})
}

type indexedEntry struct {
	key  string
	meta diskMeta
}

func (d *diskTier) entries() []indexedEntry {
	var out []indexedEntry
	d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var m diskMeta
			if json.Unmarshal(v, &m) == nil {
				out = append(out, indexedEntry{key: string(k), meta: m})
			}
			return nil
		})
	})
	return out
}

// trim deletes least-recently-used entries until total size <= target.
// This is the bottom tier: trimmed entries are gone.
func (d *diskTier) trim(target int64) {
	entries := d.entries()

	var total int64
	for _, e := range entries {
		total += e.meta.Size
	}
	if total <= target {
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].meta.LastAccess < entries[j].meta.LastAccess
	})

	for _, e := range entries {
		if total <= target {
			break
		}
		d.remove(e.key)
		total -= e.meta.Size
		d.logger.Debug("evicted cache entry from disk", "key", e.key, "size", e.meta.Size)
	}
}

func (d *diskTier) stats() (bytes int64, count int) {
	for _, e := range d.entries() {
		bytes += e.meta.Size
		count++
	}
	return bytes, count
}

// clear removes every entry and its backing file.
func (d *diskTier) clear() {
	for _, e := range d.entries() {
		d.remove(e.key)
	}
}
