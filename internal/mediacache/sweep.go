package mediacache

import (
	"context"
	"log/slog"
	"os"
)

// InUseFunc reports whether a cache key is referenced by a live queue entry
// or a player's current track anywhere in the process.
type InUseFunc func(key string) bool

// Sweep deletes cached files that no live entry references. It runs
// opportunistically after a track finishes. The scan-then-delete is
// serialized by sweepMu; a key with an in-flight download, or one that a
// concurrently starting playback holds, is never deleted.
func (c *Cache) Sweep(ctx context.Context, inUse InUseFunc) error {
	if c.cfg.SaveDownloads {
		return nil
	}

	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	entries, err := os.ReadDir(c.cfg.CacheDir)
	if err != nil {
		return err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue // tmp/
		}
		key := e.Name()
		if !c.removable(key, inUse) {
			continue
		}
		if err := os.Remove(c.PathFor(key)); err != nil {
			slog.Warn("sweep: remove failed", "key", key, "err", err)
			continue
		}
		_ = c.repo.CacheRemove(ctx, key)
		removed++
	}
	if removed > 0 {
		slog.Debug("cache sweep", "removed", removed)
	}
	return nil
}

// EvictIfNeeded enforces the on-disk size limit, dropping least-recently
// accessed files first. Files in use or mid-download are spared.
func (c *Cache) EvictIfNeeded(ctx context.Context, inUse InUseFunc) error {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	total, err := c.repo.CacheTotalBytes(ctx)
	if err != nil {
		return err
	}
	if total <= c.cfg.CacheLimitBytes {
		return nil
	}

	oldest, err := c.repo.CacheOldest(ctx, 64)
	if err != nil {
		return err
	}
	for _, key := range oldest {
		if total <= c.cfg.CacheLimitBytes {
			break
		}
		if !c.removable(key, inUse) {
			continue
		}
		fi, err := os.Stat(c.PathFor(key))
		if err == nil {
			total -= fi.Size()
		}
		_ = os.Remove(c.PathFor(key))
		_ = c.repo.CacheRemove(ctx, key)
	}
	return nil
}

// removable decides whether a key may be deleted: not mid-download and not
// referenced by any live entry. Completed handles are dropped from the map so
// a later request re-downloads.
func (c *Cache) removable(key string, inUse InUseFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.downloads[key]; ok {
		select {
		case <-d.Ready():
			// completed, fall through
		default:
			return false
		}
	}
	if inUse != nil && inUse(key) {
		return false
	}
	delete(c.downloads, key)
	return true
}
