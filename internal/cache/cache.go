// Package cache implements the content-addressed, size-bounded,
// LRU-evicting disk cache for thumbnails and preview images (spec
// §4.I). Grounded on the shape of fluxcd/source-controller's
// storage.Interface (Store/Retrieve/Exists/Delete/GarbageCollect):
// one small port over a content-addressed directory, here specialized
// to the import engine's fixed size-ceiling eviction policy rather
// than a TTL/MaxRecords retention policy.
package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/vaultbridge/importengine/internal/ioport"
	"github.com/vaultbridge/importengine/internal/model"
	"go.uber.org/zap"
)

const defaultShrinkMB = 64

// Cache is a content-addressed directory of cached files, evicted by
// size ceiling when a new file is added.
type Cache struct {
	mu           sync.Mutex
	fs           ioport.FileIO
	dir          string
	maxSizeBytes int64
	shrinkBytes  int64
	logger       *zap.Logger
}

// New constructs a Cache rooted at dir. maxSizeMB is the configured
// ceiling (spec §6 settings.maxCacheSizeMb); shrinkMB is how far below
// the ceiling eviction targets (defaults to 64MiB, spec §4.I's
// "shrinkInMb").
func New(fs ioport.FileIO, dir string, maxSizeMB int64, shrinkMB int64, logger *zap.Logger) *Cache {
	if shrinkMB <= 0 {
		shrinkMB = defaultShrinkMB
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		fs:           fs,
		dir:          dir,
		maxSizeBytes: maxSizeMB * 1024 * 1024,
		shrinkBytes:  shrinkMB * 1024 * 1024,
		logger:       logger,
	}
}

// KeyForURL returns the cache key for a remote URL.
func KeyForURL(url string) string { return Hash128(url) }

// KeyForAsset returns the cache key for an asset identifier's preview.
func KeyForAsset(id model.AssetIdentifier) string { return Hash128(id.String()) }

func (c *Cache) path(key string) string { return filepath.Join(c.dir, key) }
func (c *Cache) tempPath(key string) string { return c.path(key) + ".tmp" }

// Get returns the cached bytes for key, touching its access time on a
// hit. found is false if the key is not cached (including when only a
// ".tmp" file from an interrupted write exists, per spec §8
// boundary 12).
func (c *Cache) Get(ctx context.Context, key string) (data []byte, found bool, err error) {
	p := c.path(key)
	exists, err := c.fs.FileExists(ctx, p)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	data, err = c.fs.FileReadAllBytes(ctx, p)
	if err != nil {
		return nil, false, err
	}
	_ = c.fs.Touch(ctx, p)
	return data, true, nil
}

// Put writes data under key atomically (temp-then-rename) and runs
// eviction afterward.
func (c *Cache) Put(ctx context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tmp := c.tempPath(key)
	if err := c.fs.FileWriteAllBytes(ctx, tmp, data); err != nil {
		return fmt.Errorf("writing cache temp file: %w", err)
	}
	if err := c.fs.FileMove(ctx, tmp, c.path(key)); err != nil {
		return fmt.Errorf("finalizing cache file %s: %w", key, err)
	}

	if err := c.evictLocked(ctx); err != nil {
		c.logger.Warn("cache eviction failed", zap.Error(err))
	}
	return nil
}

// evictLocked implements spec §4.I's eviction policy: compute current
// total size; if below the ceiling, return; otherwise delete files
// ordered by lastAccessTime descending (oldest last) from the tail
// until the shrink target is met. Caller must hold c.mu.
func (c *Cache) evictLocked(ctx context.Context) error {
	if c.maxSizeBytes <= 0 {
		return nil
	}

	stats, err := c.fs.GetOldestFiles(ctx, c.dir)
	if err != nil {
		return err
	}

	var total int64
	for _, s := range stats {
		total += s.Size
	}
	if total <= c.maxSizeBytes {
		return nil
	}

	shrinkTarget := total - (c.maxSizeBytes - c.shrinkBytes)
	if shrinkTarget <= 0 {
		shrinkTarget = c.shrinkBytes
	}

	// stats is ordered most-recently-accessed first; delete from the
	// tail (oldest first) until the shrink target amount has been
	// freed.
	var freed int64
	for i := len(stats) - 1; i >= 0 && freed < shrinkTarget; i-- {
		s := stats[i]
		if filepath.Ext(s.Path) == ".tmp" {
			continue
		}
		if err := c.fs.DeleteFile(ctx, s.Path, false); err != nil {
			c.logger.Warn("evicting cache file", zap.String("path", s.Path), zap.Error(err))
			continue
		}
		freed += s.Size
	}
	return nil
}

// Stats is a point-in-time summary of the cache's disk usage, for the
// API's cache-stats endpoint.
type Stats struct {
	FileCount  int
	TotalBytes int64
	MaxBytes   int64
}

// Stats reports the cache's current file count and total size.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	files, err := c.fs.GetOldestFiles(ctx, c.dir)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{MaxBytes: c.maxSizeBytes}
	for _, f := range files {
		if filepath.Ext(f.Path) == ".tmp" {
			continue
		}
		st.FileCount++
		st.TotalBytes += f.Size
	}
	return st, nil
}
