package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/config"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	dataDir := t.TempDir()
	cfg := &config.Config{DataDir: dataDir, CacheDir: filepath.Join(dataDir, "cache")}
	require.NoError(t, os.MkdirAll(cfg.CacheDir, 0o755))
	db, err := OpenDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepo(db)
}

// TestSettingsDefaults verifies a fresh guild row carries the migration
// defaults.
func TestSettingsDefaults(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	set, err := repo.UpsertSettings(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, "guild-1", set.GuildID)
	assert.Equal(t, 50, set.PlaylistLimit)
	assert.Equal(t, 0, set.MaxSongsPerUser)
	assert.Equal(t, 30, set.SecondsWaitAfterEmpty)
	assert.True(t, set.LeaveIfNoListeners)
	assert.False(t, set.AutoAnnounceNext)
	assert.Equal(t, 100, set.DefaultVolume)
	assert.Equal(t, 10, set.DefaultQueuePageSize)
	assert.Equal(t, 50, set.SkipRatio)
	assert.Equal(t, 4, set.MaxSkips)
	assert.False(t, set.AutoplaylistEnabled)
}

// TestSettingsRoundTrip persists every field through update and reload.
func TestSettingsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	set, err := repo.UpsertSettings(ctx, "guild-1")
	require.NoError(t, err)

	set.PlaylistLimit = 5
	set.MaxSongsPerUser = 3
	set.SecondsWaitAfterEmpty = 0
	set.LeaveIfNoListeners = false
	set.AutoAnnounceNext = true
	set.DefaultVolume = 80
	set.DefaultQueuePageSize = 20
	set.SkipRatio = 75
	set.MaxSkips = 2
	set.AutoplaylistEnabled = true
	require.NoError(t, repo.UpdateSettings(ctx, set))

	got, err := repo.GetSettings(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, set, got)

	// a second upsert keeps the stored values
	again, err := repo.UpsertSettings(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, set, again)
}

// TestAutoplaylistCRUD exercises add, duplicate insert, random pick, list
// and remove.
func TestAutoplaylistCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// empty list gives no pick, not an error
	url, err := repo.RandomAutoplaylistURL(ctx, "guild-1")
	require.NoError(t, err)
	assert.Empty(t, url)

	require.NoError(t, repo.AddAutoplaylistURL(ctx, "guild-1", "https://example.com/a", "alice"))
	require.NoError(t, repo.AddAutoplaylistURL(ctx, "guild-1", "https://example.com/b", "bob"))
	// duplicates are ignored per guild
	require.NoError(t, repo.AddAutoplaylistURL(ctx, "guild-1", "https://example.com/a", "carol"))
	// the same URL on another guild is a separate row
	require.NoError(t, repo.AddAutoplaylistURL(ctx, "guild-2", "https://example.com/a", "dave"))

	items, err := repo.ListAutoplaylist(ctx, "guild-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "https://example.com/a", items[0].URL)
	assert.Equal(t, "alice", items[0].AddedBy)

	url, err = repo.RandomAutoplaylistURL(ctx, "guild-1")
	require.NoError(t, err)
	assert.Contains(t, []string{"https://example.com/a", "https://example.com/b"}, url)

	n, err := repo.RemoveAutoplaylistURL(ctx, "guild-1", "https://example.com/a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = repo.RemoveAutoplaylistURL(ctx, "guild-1", "https://example.com/a")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	other, err := repo.ListAutoplaylist(ctx, "guild-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

// TestFileCacheAccounting tracks sizes and least-recently-accessed order.
func TestFileCacheAccounting(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	total, err := repo.CacheTotalBytes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	require.NoError(t, repo.CacheTouch(ctx, "aaa", 100, true))
	require.NoError(t, repo.CacheTouch(ctx, "bbb", 200, true))

	total, err = repo.CacheTotalBytes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 300, total)

	oldest, err := repo.CacheOldest(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, oldest, 2)

	require.NoError(t, repo.CacheRemove(ctx, "aaa"))
	total, err = repo.CacheTotalBytes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 200, total)

	// touching an unknown hash is harmless
	require.NoError(t, repo.CacheTouch(ctx, "zzz", 0, false))
}
