package mediacache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/config"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/repository"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/resolver"
)

// fakeFetcher serves a fixed payload, optionally failing or blocking until
// released.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	payload []byte
	err     error
	block   chan struct{} // when non-nil, Fetch waits for it to close
}

func (f *fakeFetcher) Fetch(ctx context.Context, m media.Metadata) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	err := f.err
	payload := f.payload
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func newTestCache(t *testing.T, f Fetcher) (*Cache, *config.Config) {
	t.Helper()
	dataDir := t.TempDir()
	cfg := &config.Config{
		DataDir:         dataDir,
		CacheDir:        filepath.Join(dataDir, "cache"),
		CacheLimitBytes: 1 << 20,
	}
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.CacheDir, "tmp"), 0o755))
	db, err := repository.OpenDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(cfg, repository.NewRepo(db), f), cfg
}

func track(url string) media.Metadata {
	return media.Metadata{SourceURL: url, Title: url, Duration: time.Minute}
}

// TestGetOrStartDeduplicates checks that concurrent requests for the same
// source share one handle and trigger exactly one fetch.
func TestGetOrStartDeduplicates(t *testing.T) {
	f := &fakeFetcher{payload: []byte("audio"), block: make(chan struct{})}
	c, _ := newTestCache(t, f)
	m := track("https://example.com/watch?v=dedup")

	const n = 16
	handles := make([]*Download, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = c.GetOrStart(context.Background(), m)
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, handles[0], handles[i])
	}

	close(f.block)
	path, err := handles[0].Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c.PathFor(m.CacheKey()), path)
	assert.Equal(t, 1, f.callCount())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), data)
	assert.Equal(t, StateReady, handles[0].State())
}

// TestFailureSharedUntilInvalidate verifies a failed download is observed by
// every waiter, that the same failed handle keeps being handed out, and that
// Invalidate makes the next request retry.
func TestFailureSharedUntilInvalidate(t *testing.T) {
	f := &fakeFetcher{err: errors.New("boom")}
	c, _ := newTestCache(t, f)
	m := track("https://example.com/watch?v=fail")

	d1 := c.GetOrStart(context.Background(), m)
	_, err := d1.Await(context.Background())
	require.Error(t, err)
	var xerr *resolver.ExtractionError
	assert.ErrorAs(t, err, &xerr)
	assert.Equal(t, StateFailed, d1.State())

	// the poisoned handle is shared, no new fetch happens
	d2 := c.GetOrStart(context.Background(), m)
	assert.Same(t, d1, d2)
	assert.Equal(t, 1, f.callCount())

	f.setErr(nil)
	f.mu.Lock()
	f.payload = []byte("second try")
	f.mu.Unlock()

	c.Invalidate(m.CacheKey())
	d3 := c.GetOrStart(context.Background(), m)
	require.NotSame(t, d1, d3)
	path, err := d3.Await(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, 2, f.callCount())
}

// TestInvalidateIgnoresInFlight makes sure an in-progress download cannot be
// dropped out from under its waiters.
func TestInvalidateIgnoresInFlight(t *testing.T) {
	f := &fakeFetcher{payload: []byte("audio"), block: make(chan struct{})}
	c, _ := newTestCache(t, f)
	m := track("https://example.com/watch?v=inflight")

	d1 := c.GetOrStart(context.Background(), m)
	c.Invalidate(m.CacheKey())

	d2 := c.GetOrStart(context.Background(), m)
	assert.Same(t, d1, d2)

	close(f.block)
	_, err := d1.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.callCount())
}

// TestDiskHitSkipsFetch resolves straight from an already cached file.
func TestDiskHitSkipsFetch(t *testing.T) {
	f := &fakeFetcher{payload: []byte("never used")}
	c, _ := newTestCache(t, f)
	m := track("https://example.com/watch?v=hit")

	require.NoError(t, os.WriteFile(c.PathFor(m.CacheKey()), []byte("cached"), 0o644))

	d := c.GetOrStart(context.Background(), m)
	path, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c.PathFor(m.CacheKey()), path)
	assert.Equal(t, 0, f.callCount())
}

// TestDiskHitWaitsForSweep serializes the disk short-circuit with the sweep
// lock: a file observed on disk cannot be deleted between the stat and the
// handle resolving to its path.
func TestDiskHitWaitsForSweep(t *testing.T) {
	f := &fakeFetcher{payload: []byte("never used")}
	c, _ := newTestCache(t, f)
	m := track("https://example.com/watch?v=warm")

	require.NoError(t, os.WriteFile(c.PathFor(m.CacheKey()), []byte("cached"), 0o644))

	c.sweepMu.Lock()
	d := c.GetOrStart(context.Background(), m)

	select {
	case <-d.Ready():
		c.sweepMu.Unlock()
		t.Fatal("disk hit resolved while the sweep lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	c.sweepMu.Unlock()

	path, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, 0, f.callCount())
}

// TestAwaitHonorsContext unblocks a waiter whose context ends first.
func TestAwaitHonorsContext(t *testing.T) {
	f := &fakeFetcher{payload: []byte("audio"), block: make(chan struct{})}
	defer close(f.block)
	c, _ := newTestCache(t, f)

	d := c.GetOrStart(context.Background(), track("https://example.com/watch?v=slow"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestSweepRespectsReferences deletes only files no live entry references.
func TestSweepRespectsReferences(t *testing.T) {
	f := &fakeFetcher{payload: []byte("audio")}
	c, _ := newTestCache(t, f)
	held := track("https://example.com/watch?v=held")
	loose := track("https://example.com/watch?v=loose")

	for _, m := range []media.Metadata{held, loose} {
		d := c.GetOrStart(context.Background(), m)
		_, err := d.Await(context.Background())
		require.NoError(t, err)
	}

	heldKey := held.CacheKey()
	inUse := func(key string) bool { return key == heldKey }
	require.NoError(t, c.Sweep(context.Background(), inUse))

	assert.FileExists(t, c.PathFor(heldKey))
	assert.NoFileExists(t, c.PathFor(loose.CacheKey()))
}

// TestSweepSparesInFlight never deletes a download that is still running.
func TestSweepSparesInFlight(t *testing.T) {
	f := &fakeFetcher{payload: []byte("audio"), block: make(chan struct{})}
	c, _ := newTestCache(t, f)
	m := track("https://example.com/watch?v=busy")

	d := c.GetOrStart(context.Background(), m)
	require.NoError(t, c.Sweep(context.Background(), nil))

	close(f.block)
	path, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)
}

// TestSaveDownloadsDisablesSweep keeps every file when the operator opted to
// retain downloads.
func TestSaveDownloadsDisablesSweep(t *testing.T) {
	f := &fakeFetcher{payload: []byte("audio")}
	c, cfg := newTestCache(t, f)
	cfg.SaveDownloads = true
	m := track("https://example.com/watch?v=keep")

	d := c.GetOrStart(context.Background(), m)
	_, err := d.Await(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Sweep(context.Background(), func(string) bool { return false }))
	assert.FileExists(t, c.PathFor(m.CacheKey()))
}

// TestEvictIfNeeded drops unreferenced files once the size limit is exceeded
// while sparing files still in use.
func TestEvictIfNeeded(t *testing.T) {
	f := &fakeFetcher{payload: bytes.Repeat([]byte("x"), 512)}
	c, cfg := newTestCache(t, f)
	cfg.CacheLimitBytes = 600

	held := track("https://example.com/watch?v=evict-held")
	loose := track("https://example.com/watch?v=evict-loose")
	for _, m := range []media.Metadata{held, loose} {
		d := c.GetOrStart(context.Background(), m)
		_, err := d.Await(context.Background())
		require.NoError(t, err)
	}

	heldKey := held.CacheKey()
	inUse := func(key string) bool { return key == heldKey }
	require.NoError(t, c.EvictIfNeeded(context.Background(), inUse))

	assert.FileExists(t, c.PathFor(heldKey))
	assert.NoFileExists(t, c.PathFor(loose.CacheKey()))
}
