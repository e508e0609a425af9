// Package cache is the on-disk, version-keyed store for expensive
// loader artifacts (forge/quilt server bundles, vanilla jars).
//
// Metadata lives in an in-memory TTL index; the artifact bytes live in
// one flat directory. An entry is valid only while its backing file
// exists, is young enough, and still has the recorded size — anything
// else is a miss and gets evicted on the spot.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/jellydator/ttlcache/v3"
)

// LockTimeout bounds the wait for the cross-process cache lock.
// Not acquiring in time means another process is handling the same
// artifact; that is not an error.
const LockTimeout = 5 * time.Second

// Entry records one cached artifact.
type Entry struct {
	Path      string
	IsArchive bool
	Size      int64
	StoredAt  time.Time
}

type Cache struct {
	dir     string
	maxSize int64
	index   *ttlcache.Cache[string, Entry]
	lock    *flock.Flock
}

// New builds a cache rooted at dir. Entries older than maxAge are
// treated as gone; the sum of entry sizes never exceeds maxSize.
func New(dir string, maxAge time.Duration, maxSize int64) *Cache {
	index := ttlcache.New(
		ttlcache.WithTTL[string, Entry](maxAge),
		ttlcache.WithDisableTouchOnHit[string, Entry](),
	)
	go index.Start()

	return &Cache{
		dir:     dir,
		maxSize: maxSize,
		index:   index,
		lock:    flock.New(filepath.Join(dir, ".cache.lock")),
	}
}

// Dir is the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// PathFor gives the canonical on-disk location for an artifact.
// Key is sanitized so version strings cannot escape the cache dir.
func (c *Cache) PathFor(key, ext string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(key)
	return filepath.Join(c.dir, safe+"."+ext)
}

// Lookup returns the entry for key only while it is fully valid:
// present in the index, backing file on disk, recorded size matching
// the actual one. A stale entry is evicted and reported as a miss.
func (c *Cache) Lookup(key string) (Entry, bool) {
	item := c.index.Get(key)
	if item == nil {
		return Entry{}, false
	}
	entry := item.Value()

	info, err := os.Stat(entry.Path)
	if err != nil || info.Size() != entry.Size {
		c.index.Delete(key)
		if err == nil {
			os.Remove(entry.Path)
		}
		return Entry{}, false
	}
	return entry, true
}

// Store registers a downloaded artifact already sitting at path.
// Insertion is skipped (with an error describing why) when it would
// push the cache past its size ceiling; callers treat that as
// non-fatal.
func (c *Cache) Store(key, path string, isArchive bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	var total int64
	for _, item := range c.index.Items() {
		total += item.Value().Size
	}
	if total+info.Size() > c.maxSize {
		return fmt.Errorf("cache size limit reached (%d + %d > %d), skipping", total, info.Size(), c.maxSize)
	}

	c.index.Set(key, Entry{
		Path:      path,
		IsArchive: isArchive,
		Size:      info.Size(),
		StoredAt:  time.Now(),
	}, ttlcache.DefaultTTL)
	return nil
}

// WithLock runs fn while holding the advisory cross-process lock on
// the cache directory. When the lock cannot be acquired within
// LockTimeout, fn is skipped and (false, nil) is returned: some other
// process owns the artifact download.
func (c *Cache) WithLock(ctx context.Context, fn func() error) (bool, error) {
	lctx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()

	ok, err := c.lock.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil || !ok {
		return false, nil
	}
	defer c.lock.Unlock()

	return true, fn()
}

// Stop terminates the expiration worker. For tests and shutdown.
func (c *Cache) Stop() {
	c.index.Stop()
}
