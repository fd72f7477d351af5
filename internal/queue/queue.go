package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/mediacache"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/utils"
)

// ErrIndexOutOfRange is returned for an invalid queue position. State is
// never changed on failure.
var ErrIndexOutOfRange = errors.New("queue position out of range")

// PermissionsError reports that a user hit their per-user queue limit.
type PermissionsError struct {
	User  string
	Limit int
}

func (e *PermissionsError) Error() string {
	return fmt.Sprintf("user %s already has %d songs queued", e.User, e.Limit)
}

// Entry is one queued or currently playing playback request. It is owned by
// the Queue that holds it until popped for playback, at which point ownership
// transfers to the Player for the duration of the track.
type Entry struct {
	Media      media.Metadata
	Requester  string
	Channel    string
	Download   *mediacache.Download
	EnqueuedAt time.Time
}

// Queue is the per-guild ordered holding area of entries, decoupled from
// download timing. FIFO except for explicit promotions. The entry currently
// being played never appears in the queue.
type Queue struct {
	mu      sync.Mutex
	entries []*Entry
}

func New() *Queue {
	return &Queue{}
}

// Add appends an entry and returns its 1-based position ("next up" = 1).
// maxPerUser > 0 enforces a per-user cap; exceeding it returns a
// PermissionsError and leaves the queue unchanged.
func (q *Queue) Add(e *Entry, maxPerUser int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if maxPerUser > 0 && e.Requester != "" {
		if q.countForUserLocked(e.Requester) >= maxPerUser {
			return 0, &PermissionsError{User: e.Requester, Limit: maxPerUser}
		}
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	q.entries = append(q.entries, e)
	return len(q.entries), nil
}

// Peek returns the head without removing it.
func (q *Queue) Peek() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[0]
}

// PopNext removes and returns the head. Used only by the Player.
func (q *Queue) PopNext() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e
}

// PromoteToFront moves the entry at 1-based position i to the head,
// preserving the relative order of everything else.
func (q *Queue) PromoteToFront(i int) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := i - 1
	if idx < 0 || idx >= len(q.entries) {
		return nil, ErrIndexOutOfRange
	}
	e := q.entries[idx]
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	q.entries = append([]*Entry{e}, q.entries...)
	return e, nil
}

// PromoteLast moves the most recently added entry to the head.
func (q *Queue) PromoteLast() (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.entries)
	if n == 0 {
		return nil, ErrIndexOutOfRange
	}
	e := q.entries[n-1]
	q.entries = append([]*Entry{e}, q.entries[:n-1]...)
	return e, nil
}

// RemoveAt removes and returns the entry at 1-based position i.
func (q *Queue) RemoveAt(i int) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := i - 1
	if idx < 0 || idx >= len(q.entries) {
		return nil, ErrIndexOutOfRange
	}
	e := q.entries[idx]
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	return e, nil
}

// Shuffle randomizes the remaining order. The currently playing entry is not
// held here, so it is unaffected.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	utils.ShuffleSlice(q.entries)
}

// Clear empties the queue and returns the removed entries so their cached
// files become eligible for the next eviction sweep.
func (q *Queue) Clear() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := q.entries
	q.entries = nil
	return removed
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot copies the current ordering for display.
func (q *Queue) Snapshot() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// CountForUser reports how many queued entries (not counting currently
// playing) were requested by user.
func (q *Queue) CountForUser(user string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.countForUserLocked(user)
}

func (q *Queue) countForUserLocked(user string) int {
	n := 0
	for _, e := range q.entries {
		if e.Requester == user {
			n++
		}
	}
	return n
}

// EstimateTimeUntil sums durations of all entries strictly before the 1-based
// position, plus the remaining duration of the current track. ok is false when
// any summed duration is unknown (live stream or metadata still pending), so
// callers never display a number computed from partial data.
func (q *Queue) EstimateTimeUntil(position int, currentRemaining time.Duration) (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if position < 1 || position > len(q.entries)+1 {
		return 0, false
	}

	total := currentRemaining
	for i := 0; i < position-1; i++ {
		m := q.entries[i].Media
		if m.IsLive || m.Duration <= 0 {
			return 0, false
		}
		total += m.Duration
	}
	return total, true
}

// ContainsKey reports whether any entry references the given cache key.
func (q *Queue) ContainsKey(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.Media.CacheKey() == key {
			return true
		}
	}
	return false
}
