package mediacache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/config"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/repository"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/resolver"
)

// Fetcher produces the raw audio payload for a resolved media descriptor.
type Fetcher interface {
	Fetch(ctx context.Context, m media.Metadata) (io.ReadCloser, error)
}

// Cache coordinates downloads so each source is fetched at most once,
// no matter how many queue entries across guilds reference it.
type Cache struct {
	cfg     *config.Config
	repo    *repository.Repo
	fetcher Fetcher

	// mu guards downloads: the check-and-insert in GetOrStart must be atomic
	// so two concurrent calls with the same key never start two fetches.
	mu        sync.Mutex
	downloads map[string]*Download

	// sweepMu serializes the scan-then-delete of Sweep and EvictIfNeeded so a
	// concurrently starting playback never loses the file it is about to use.
	sweepMu sync.Mutex
}

func New(cfg *config.Config, repo *repository.Repo, fetcher Fetcher) *Cache {
	return &Cache{
		cfg:       cfg,
		repo:      repo,
		fetcher:   fetcher,
		downloads: make(map[string]*Download),
	}
}

func (c *Cache) PathFor(key string) string {
	return filepath.Join(c.cfg.CacheDir, key)
}

// GetOrStart returns the shared download handle for m's cache key, starting a
// background fetch when none exists. It registers the handle before returning
// and never blocks on the fetch itself. A completed handle, failed included,
// is returned as-is until Invalidate drops it.
func (c *Cache) GetOrStart(ctx context.Context, m media.Metadata) *Download {
	key := m.CacheKey()

	c.mu.Lock()
	if d, ok := c.downloads[key]; ok {
		c.mu.Unlock()
		return d
	}
	d := newDownload(key)
	c.downloads[key] = d
	c.mu.Unlock()

	// the fetch outlives the enqueueing command's context
	go c.run(context.WithoutCancel(ctx), d, m)
	return d
}

// Invalidate drops a completed entry so the next request retries instead of
// observing a poisoned handle forever. In-flight downloads are left alone.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.downloads[key]
	if !ok {
		return
	}
	select {
	case <-d.Ready():
		delete(c.downloads, key)
	default:
	}
}

func (c *Cache) run(ctx context.Context, d *Download, m media.Metadata) {
	d.state.Store(int32(StateDownloading))

	final := c.PathFor(d.key)

	// stat and resolve under the sweep lock: a concurrent scan-then-delete
	// must not remove a file between observing it here and handing its path
	// to the waiters
	c.sweepMu.Lock()
	if fi, err := os.Stat(final); err == nil && fi.Size() > 0 {
		_ = c.repo.CacheTouch(ctx, d.key, 0, false)
		slog.Debug("cache hit", "key", d.key, "title", m.Title)
		d.resolve(final)
		c.sweepMu.Unlock()
		return
	}
	c.sweepMu.Unlock()

	path, err := c.download(ctx, d.key, m)
	if err != nil {
		slog.Warn("download failed", "key", d.key, "title", m.Title, "err", err)
		var xerr *resolver.ExtractionError
		if !errors.As(err, &xerr) {
			err = &resolver.ExtractionError{Query: m.SourceURL, Err: err}
		}
		d.reject(err)
		return
	}
	slog.Info("download complete", "key", d.key, "title", m.Title)
	d.resolve(path)
}

func (c *Cache) download(ctx context.Context, key string, m media.Metadata) (string, error) {
	src, err := c.fetcher.Fetch(ctx, m)
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp := filepath.Join(c.cfg.CacheDir, "tmp", key)
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write payload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	info, err := os.Stat(tmp)
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("empty payload for %s", m.SourceURL)
	}

	final := c.PathFor(key)
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit: %w", err)
	}
	_ = c.repo.CacheTouch(ctx, key, info.Size(), true)
	return final, nil
}
