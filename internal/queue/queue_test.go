package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
)

func entry(url, requester string, dur time.Duration) *Entry {
	return &Entry{
		Media: media.Metadata{
			SourceURL: url,
			Title:     url,
			Duration:  dur,
		},
		Requester: requester,
	}
}

func liveEntry(url, requester string) *Entry {
	e := entry(url, requester, 0)
	e.Media.IsLive = true
	return e
}

// TestAddAndPopOrder verifies entries come back out in the order they went in.
func TestAddAndPopOrder(t *testing.T) {
	q := New()
	urls := []string{"a", "b", "c"}
	for n, u := range urls {
		pos, err := q.Add(entry(u, "user", time.Minute), 0)
		require.NoError(t, err)
		assert.Equal(t, n+1, pos)
	}

	for _, u := range urls {
		e := q.PopNext()
		require.NotNil(t, e)
		assert.Equal(t, u, e.Media.SourceURL)
	}
	assert.Nil(t, q.PopNext())
}

// TestPopRemoves ensures a popped entry is gone; no consumer sees it twice.
func TestPopRemoves(t *testing.T) {
	q := New()
	_, err := q.Add(entry("a", "user", time.Minute), 0)
	require.NoError(t, err)

	first := q.PopNext()
	require.NotNil(t, first)
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Peek())
}

// TestPerUserLimit checks the cap counts only the requesting user's entries
// and leaves the queue unchanged on rejection.
func TestPerUserLimit(t *testing.T) {
	q := New()
	_, err := q.Add(entry("a", "alice", time.Minute), 2)
	require.NoError(t, err)
	_, err = q.Add(entry("b", "alice", time.Minute), 2)
	require.NoError(t, err)

	_, err = q.Add(entry("c", "alice", time.Minute), 2)
	var perr *PermissionsError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "alice", perr.User)
	assert.Equal(t, 2, perr.Limit)
	assert.Equal(t, 2, q.Len())

	// another user is unaffected by alice's cap
	pos, err := q.Add(entry("d", "bob", time.Minute), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.Equal(t, 2, q.CountForUser("alice"))
	assert.Equal(t, 1, q.CountForUser("bob"))
}

// TestPromoteToFront moves the chosen entry to position 1 and keeps the rest
// in their relative order.
func TestPromoteToFront(t *testing.T) {
	q := New()
	for _, u := range []string{"a", "b", "c", "d"} {
		_, err := q.Add(entry(u, "user", time.Minute), 0)
		require.NoError(t, err)
	}

	e, err := q.PromoteToFront(3)
	require.NoError(t, err)
	assert.Equal(t, "c", e.Media.SourceURL)

	var got []string
	for _, e := range q.Snapshot() {
		got = append(got, e.Media.SourceURL)
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, got)
}

// TestPromoteLast moves the most recently added entry to the head.
func TestPromoteLast(t *testing.T) {
	q := New()
	for _, u := range []string{"a", "b", "c"} {
		_, err := q.Add(entry(u, "user", time.Minute), 0)
		require.NoError(t, err)
	}

	e, err := q.PromoteLast()
	require.NoError(t, err)
	assert.Equal(t, "c", e.Media.SourceURL)
	assert.Equal(t, "c", q.Peek().Media.SourceURL)

	q.Clear()
	_, err = q.PromoteLast()
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

// TestIndexBounds exercises the 1-based range checks on positional ops.
func TestIndexBounds(t *testing.T) {
	q := New()
	_, err := q.Add(entry("a", "user", time.Minute), 0)
	require.NoError(t, err)

	for _, pos := range []int{0, -1, 2} {
		_, err := q.RemoveAt(pos)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "RemoveAt(%d)", pos)
		_, err = q.PromoteToFront(pos)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "PromoteToFront(%d)", pos)
	}

	e, err := q.RemoveAt(1)
	require.NoError(t, err)
	assert.Equal(t, "a", e.Media.SourceURL)
	assert.Equal(t, 0, q.Len())
}

// TestClearReturnsRemoved verifies Clear hands back what it dropped.
func TestClearReturnsRemoved(t *testing.T) {
	q := New()
	for _, u := range []string{"a", "b"} {
		_, err := q.Add(entry(u, "user", time.Minute), 0)
		require.NoError(t, err)
	}
	removed := q.Clear()
	assert.Len(t, removed, 2)
	assert.Equal(t, 0, q.Len())
}

// TestSnapshotIsCopy ensures display code can't mutate queue order.
func TestSnapshotIsCopy(t *testing.T) {
	q := New()
	for _, u := range []string{"a", "b"} {
		_, err := q.Add(entry(u, "user", time.Minute), 0)
		require.NoError(t, err)
	}
	snap := q.Snapshot()
	snap[0], snap[1] = snap[1], snap[0]
	assert.Equal(t, "a", q.Peek().Media.SourceURL)
}

// TestShufflePreservesEntries checks shuffling changes only the order.
func TestShufflePreservesEntries(t *testing.T) {
	q := New()
	want := map[string]bool{}
	for _, u := range []string{"a", "b", "c", "d", "e"} {
		_, err := q.Add(entry(u, "user", time.Minute), 0)
		require.NoError(t, err)
		want[u] = true
	}
	q.Shuffle()
	got := map[string]bool{}
	for _, e := range q.Snapshot() {
		got[e.Media.SourceURL] = true
	}
	assert.Equal(t, want, got)
}

// TestEstimateTimeUntil sums the current track's remainder plus every entry
// ahead of the asked position.
func TestEstimateTimeUntil(t *testing.T) {
	q := New()
	_, err := q.Add(entry("a", "user", 3*time.Minute), 0)
	require.NoError(t, err)
	_, err = q.Add(entry("b", "user", 2*time.Minute), 0)
	require.NoError(t, err)

	// head starts as soon as the current track's 30s are over
	eta, ok := q.EstimateTimeUntil(1, 30*time.Second)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, eta)

	eta, ok = q.EstimateTimeUntil(2, 30*time.Second)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second+3*time.Minute, eta)

	_, ok = q.EstimateTimeUntil(0, 0)
	assert.False(t, ok)
	_, ok = q.EstimateTimeUntil(4, 0)
	assert.False(t, ok)
}

// TestEstimateTimeUntilUnknown refuses an estimate when a live or
// unknown-length entry sits ahead of the asked position.
func TestEstimateTimeUntilUnknown(t *testing.T) {
	q := New()
	_, err := q.Add(liveEntry("live", "user"), 0)
	require.NoError(t, err)
	_, err = q.Add(entry("b", "user", time.Minute), 0)
	require.NoError(t, err)

	// the live entry itself can still be positioned
	eta, ok := q.EstimateTimeUntil(1, 10*time.Second)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, eta)

	// anything behind it cannot
	_, ok = q.EstimateTimeUntil(2, 10*time.Second)
	assert.False(t, ok)
}

// TestContainsKey matches entries by their cache key.
func TestContainsKey(t *testing.T) {
	q := New()
	e := entry("https://example.com/watch?v=abc", "user", time.Minute)
	_, err := q.Add(e, 0)
	require.NoError(t, err)

	assert.True(t, q.ContainsKey(e.Media.CacheKey()))
	assert.False(t, q.ContainsKey(media.Key("something else")))
}

// TestErrIndexOutOfRangeIsSentinel keeps the error comparable for callers.
func TestErrIndexOutOfRangeIsSentinel(t *testing.T) {
	q := New()
	_, err := q.RemoveAt(5)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
}
