package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/voxq/internal/domain"
)

const indexFile = "index.json"

// Entry records one stored blob in the metadata index.
type Entry struct {
	Path         string            `json:"path"`
	Format       string            `json:"format"`
	Size         int64             `json:"size"`
	CreatedAt    time.Time         `json:"created_at"`
	LastAccessed time.Time         `json:"last_accessed"`
	Tags         map[string]string `json:"tags,omitempty"`
}

type index struct {
	Entries     map[string]Entry `json:"entries"`
	LastCleanup time.Time        `json:"last_cleanup"`
}

// Stats is a point-in-time summary of the cache contents.
type Stats struct {
	Count      int       `json:"count"`
	TotalBytes int64     `json:"total_bytes"`
	Oldest     time.Time `json:"oldest,omitempty"`
	Newest     time.Time `json:"newest,omitempty"`
}

// Cache is a content-addressed store of synthesized audio on local disk.
// Blobs live under <root>/<first two hex chars>/<fingerprint>.<ext> so no
// single directory grows unbounded; a JSON index beside them carries the
// metadata that eviction and stats work from.
//
// The mutex only serializes index writes within this process. Workers in
// other processes may race on the index file; last write wins, which is
// acceptable because blobs for the same fingerprint hold identical content.
type Cache struct {
	root   string
	log    *zap.Logger
	mu     sync.Mutex
	now    func() time.Time
}

func New(root string, log *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "create cache root")
	}
	return &Cache{root: root, log: log, now: time.Now}, nil
}

// Key derives the cache key for a request.
func Key(req domain.Request) string { return domain.Fingerprint(req) }

func (c *Cache) blobPath(key, format string) string {
	return filepath.Join(c.root, key[:2], key+"."+format)
}

// Has reports whether a non-empty blob exists for the key.
func (c *Cache) Has(key, format string) bool {
	if len(key) < 2 {
		return false
	}
	fi, err := os.Stat(c.blobPath(key, format))
	return err == nil && fi.Size() > 0
}

// Put writes the blob and then records it in the index. An index failure is
// logged and swallowed: the blob is already retrievable by key, stats just
// undercount until the next successful index write.
func (c *Cache) Put(key, format string, audio []byte, tags map[string]string) (string, error) {
	if len(key) < 2 {
		return "", errors.New("cache: key too short")
	}
	p := c.blobPath(key, format)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", errors.Wrap(err, "create shard dir")
	}
	if err := os.WriteFile(p, audio, 0o644); err != nil {
		return "", errors.Wrap(err, "write blob")
	}

	now := c.now()
	err := c.updateIndex(func(idx *index) {
		idx.Entries[key] = Entry{
			Path:         p,
			Format:       format,
			Size:         int64(len(audio)),
			CreatedAt:    entryCreatedAt(idx, key, now),
			LastAccessed: now,
			Tags:         tags,
		}
	})
	if err != nil {
		c.log.Warn("cache index write failed, blob kept", zap.String("key", key), zap.Error(err))
	}
	return p, nil
}

// entryCreatedAt preserves the original creation time on re-put of the same
// key, so a duplicate write does not reset the eviction clock.
func entryCreatedAt(idx *index, key string, now time.Time) time.Time {
	if prev, ok := idx.Entries[key]; ok {
		return prev.CreatedAt
	}
	return now
}

// Get returns the blob path and bumps last_accessed. Empty string means
// miss.
func (c *Cache) Get(key, format string) string {
	if !c.Has(key, format) {
		return ""
	}
	now := c.now()
	if err := c.updateIndex(func(idx *index) {
		if e, ok := idx.Entries[key]; ok {
			e.LastAccessed = now
			idx.Entries[key] = e
		}
	}); err != nil {
		c.log.Warn("cache access bump failed", zap.String("key", key), zap.Error(err))
	}
	return c.blobPath(key, format)
}

// EvictExpired removes entries created strictly before now-maxAge, and
// their blobs. A blob that is already gone still counts as removed.
func (c *Cache) EvictExpired(maxAge time.Duration) (int, error) {
	cutoff := c.now().Add(-maxAge)
	removed := 0
	err := c.updateIndex(func(idx *index) {
		for key, e := range idx.Entries {
			if !e.CreatedAt.Before(cutoff) {
				continue
			}
			if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
				c.log.Warn("evict: remove blob failed", zap.String("key", key), zap.Error(err))
				continue
			}
			delete(idx.Entries, key)
			removed++
		}
		idx.LastCleanup = c.now()
	})
	return removed, err
}

// Clear wipes every blob and the index. The confirm flag is a deliberate
// speed bump: without it nothing is touched.
func (c *Cache) Clear(confirm bool) (int, error) {
	if !confirm {
		return 0, errors.New("cache: clear requires confirmation")
	}
	removed := 0
	err := c.updateIndex(func(idx *index) {
		for key, e := range idx.Entries {
			if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
				c.log.Warn("clear: remove blob failed", zap.String("key", key), zap.Error(err))
			}
			delete(idx.Entries, key)
			removed++
		}
		idx.LastCleanup = c.now()
	})
	return removed, err
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.loadIndexLocked()
	s := Stats{Count: len(idx.Entries)}
	for _, e := range idx.Entries {
		s.TotalBytes += e.Size
		if s.Oldest.IsZero() || e.CreatedAt.Before(s.Oldest) {
			s.Oldest = e.CreatedAt
		}
		if e.CreatedAt.After(s.Newest) {
			s.Newest = e.CreatedAt
		}
	}
	return s
}

func (c *Cache) updateIndex(mut func(*index)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.loadIndexLocked()
	mut(idx)
	return c.saveIndexLocked(idx)
}

func (c *Cache) loadIndexLocked() *index {
	idx := &index{Entries: make(map[string]Entry)}
	raw, err := os.ReadFile(filepath.Join(c.root, indexFile))
	if err != nil {
		return idx
	}
	if err := json.Unmarshal(raw, idx); err != nil {
		// corrupt index: start fresh, blobs stay addressable by key
		c.log.Warn("cache index unreadable, rebuilding", zap.Error(err))
		return &index{Entries: make(map[string]Entry)}
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}
	return idx
}

func (c *Cache) saveIndexLocked(idx *index) error {
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(c.root, indexFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(c.root, indexFile))
}
