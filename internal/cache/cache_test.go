package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/voxq/internal/domain"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return c
}

func testKey(text string) string {
	return domain.Fingerprint(domain.Request{Text: text, VoiceID: "v1", Format: "mp3", Speed: 1})
}

func TestCachePutGetRoundtrip(t *testing.T) {
	c := newTestCache(t)
	key := testKey("hello")

	path, err := c.Put(key, "mp3", []byte("audio-bytes"), map[string]string{"voice": "v1"})
	require.NoError(t, err)
	assert.True(t, c.Has(key, "mp3"))

	got := c.Get(key, "mp3")
	assert.Equal(t, path, got)

	raw, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio-bytes"), raw)
}

func TestCacheShardsByKeyPrefix(t *testing.T) {
	c := newTestCache(t)
	key := testKey("sharded")

	path, err := c.Put(key, "mp3", []byte("x"), nil)
	require.NoError(t, err)
	assert.Equal(t, key[:2], filepath.Base(filepath.Dir(path)))
}

func TestCachePutIdempotent(t *testing.T) {
	c := newTestCache(t)
	key := testKey("same")

	_, err := c.Put(key, "mp3", []byte("x"), nil)
	require.NoError(t, err)
	_, err = c.Put(key, "mp3", []byte("x"), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Stats().Count)
}

func TestCacheMiss(t *testing.T) {
	c := newTestCache(t)
	assert.False(t, c.Has(testKey("nothing"), "mp3"))
	assert.Empty(t, c.Get(testKey("nothing"), "mp3"))
}

func TestCacheEvictionBoundary(t *testing.T) {
	c := newTestCache(t)
	maxAge := 30 * 24 * time.Hour
	now := time.Now()

	c.now = func() time.Time { return now.Add(-maxAge) }
	_, err := c.Put(testKey("exactly-at-cutoff"), "mp3", []byte("keep"), nil)
	require.NoError(t, err)

	c.now = func() time.Time { return now.Add(-maxAge).Add(-time.Second) }
	_, err = c.Put(testKey("one-second-older"), "mp3", []byte("evict"), nil)
	require.NoError(t, err)

	c.now = func() time.Time { return now }
	removed, err := c.EvictExpired(maxAge)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.True(t, c.Has(testKey("exactly-at-cutoff"), "mp3"))
	assert.False(t, c.Has(testKey("one-second-older"), "mp3"))
	assert.Equal(t, 1, c.Stats().Count)
}

func TestCacheEvictTolerantOfMissingBlob(t *testing.T) {
	c := newTestCache(t)
	now := time.Now()
	c.now = func() time.Time { return now.Add(-48 * time.Hour) }
	path, err := c.Put(testKey("gone"), "mp3", []byte("x"), nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	c.now = func() time.Time { return now }
	removed, err := c.EvictExpired(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestCacheClearRequiresConfirmation(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Put(testKey("precious"), "mp3", []byte("x"), nil)
	require.NoError(t, err)

	_, err = c.Clear(false)
	require.Error(t, err)
	assert.Equal(t, 1, c.Stats().Count)

	removed, err := c.Clear(true)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, c.Stats().Count)
}

func TestCacheStats(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Put(testKey("one"), "mp3", []byte("abc"), nil)
	require.NoError(t, err)
	_, err = c.Put(testKey("two"), "mp3", []byte("defgh"), nil)
	require.NoError(t, err)

	s := c.Stats()
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, int64(8), s.TotalBytes)
	assert.False(t, s.Oldest.IsZero())
	assert.False(t, s.Newest.Before(s.Oldest))
}
