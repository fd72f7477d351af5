package registry

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/config"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/mediacache"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/repository"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/resolver"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/voice"
)

type fakeConn struct {
	mu           sync.Mutex
	finish       func(error)
	disconnected bool
}

func (c *fakeConn) Play(ctx context.Context, file string, opts voice.PlayOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish = opts.OnFinished
	return nil
}

func (c *fakeConn) Pause() error  { return nil }
func (c *fakeConn) Resume() error { return nil }

func (c *fakeConn) Stop() {
	c.mu.Lock()
	fin := c.finish
	c.finish = nil
	c.mu.Unlock()
	if fin != nil {
		fin(nil)
	}
}

func (c *fakeConn) SetVolume(float64)       {}
func (c *fakeConn) Position() time.Duration { return 0 }
func (c *fakeConn) ChannelID() string       { return "voice-channel" }

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int
	fail  bool
	conns map[string]*fakeConn
}

func (d *fakeDialer) Connect(ctx context.Context, guildID, channelID string) (voice.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, &voice.ConnectError{GuildID: guildID, ChannelID: channelID, Err: errors.New("gateway unavailable")}
	}
	if d.conns == nil {
		d.conns = make(map[string]*fakeConn)
	}
	c := &fakeConn{}
	d.conns[guildID] = c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, m media.Metadata) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("audio")), nil
}

type stubResolver struct{}

func (stubResolver) ResolveOne(ctx context.Context, q string) (media.Metadata, error) {
	return media.Metadata{SourceURL: q, Title: q, Duration: time.Minute}, nil
}

func (stubResolver) ResolveStream(ctx context.Context, q string, opts resolver.Options) <-chan resolver.Event {
	ch := make(chan resolver.Event)
	close(ch)
	return ch
}

func newTestRegistry(t *testing.T) (*Registry, *fakeDialer) {
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

	cache := mediacache.New(cfg, repository.NewRepo(db), stubFetcher{})
	dialer := &fakeDialer{}
	return New(cache, stubResolver{}, dialer, nil), dialer
}

// TestGetOrCreateReturnsSameServer dials once per guild and hands out the
// same triple afterwards.
func TestGetOrCreateReturnsSameServer(t *testing.T) {
	r, dialer := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.GetOrCreate(ctx, "guild-1", "chan-1", 1.0)
	require.NoError(t, err)
	b, err := r.GetOrCreate(ctx, "guild-1", "chan-1", 1.0)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, dialer.dialCount())

	other, err := r.GetOrCreate(ctx, "guild-2", "chan-9", 1.0)
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, dialer.dialCount())
}

// TestGetOrCreateConcurrent never builds two servers for the same guild.
func TestGetOrCreateConcurrent(t *testing.T) {
	r, dialer := newTestRegistry(t)

	const n = 8
	servers := make([]*Server, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			srv, err := r.GetOrCreate(context.Background(), "guild-1", "chan-1", 1.0)
			require.NoError(t, err)
			servers[i] = srv
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, servers[0], servers[i])
	}
	assert.Equal(t, 1, dialer.dialCount())
}

// TestFailedDialLeavesNoEntry lets the next attempt retry from scratch.
func TestFailedDialLeavesNoEntry(t *testing.T) {
	r, dialer := newTestRegistry(t)
	ctx := context.Background()

	dialer.fail = true
	_, err := r.GetOrCreate(ctx, "guild-1", "chan-1", 1.0)
	var cerr *voice.ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Nil(t, r.Peek("guild-1"))

	dialer.fail = false
	srv, err := r.GetOrCreate(ctx, "guild-1", "chan-1", 1.0)
	require.NoError(t, err)
	assert.NotNil(t, srv)
	assert.Same(t, srv, r.Peek("guild-1"))
}

// TestTeardown kills the player, disconnects voice and forgets the guild.
func TestTeardown(t *testing.T) {
	r, dialer := newTestRegistry(t)
	ctx := context.Background()

	srv, err := r.GetOrCreate(ctx, "guild-1", "chan-1", 1.0)
	require.NoError(t, err)

	r.Teardown("guild-1")
	assert.Nil(t, r.Peek("guild-1"))

	select {
	case <-srv.Player.Done():
	default:
		t.Fatal("player must be killed on teardown")
	}
	conn := dialer.conns["guild-1"]
	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.disconnected)

	r.Teardown("guild-1") // unknown guild is a no-op
}

// TestInUseTracksLiveEntries reports keys held by any guild's player so the
// eviction sweep leaves their files alone.
func TestInUseTracksLiveEntries(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	srv, err := r.GetOrCreate(ctx, "guild-1", "chan-1", 1.0)
	require.NoError(t, err)

	m := media.Metadata{SourceURL: "https://example.com/watch?v=held", Title: "held", Duration: time.Minute}
	assert.False(t, r.inUse(m.CacheKey()))

	_, _, err = srv.Player.Enqueue(ctx, m, "alice", "c", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return r.inUse(m.CacheKey())
	}, 2*time.Second, 10*time.Millisecond)

	r.Teardown("guild-1")
	assert.False(t, r.inUse(m.CacheKey()))
}

// TestShutdown tears down every guild at once.
func TestShutdown(t *testing.T) {
	r, dialer := newTestRegistry(t)
	ctx := context.Background()

	for _, gid := range []string{"guild-1", "guild-2"} {
		_, err := r.GetOrCreate(ctx, gid, "chan", 1.0)
		require.NoError(t, err)
	}

	r.Shutdown()
	assert.Nil(t, r.Peek("guild-1"))
	assert.Nil(t, r.Peek("guild-2"))
	for gid, conn := range dialer.conns {
		conn.mu.Lock()
		assert.True(t, conn.disconnected, "guild %s still connected", gid)
		conn.mu.Unlock()
	}
}
