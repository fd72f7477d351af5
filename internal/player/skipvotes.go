package player

import (
	"math"
	"sync"
)

// SkipThreshold computes how many votes end the current track: the skip
// ratio applied to the eligible listener count, capped at maxSkips when that
// cap is positive. At least one vote is always required.
func SkipThreshold(ratioPercent, maxSkips, listeners int) int {
	n := int(math.Ceil(float64(ratioPercent) / 100 * float64(listeners)))
	if maxSkips > 0 && n > maxSkips {
		n = maxSkips
	}
	if n < 1 {
		n = 1
	}
	return n
}

// SkipVoteTracker collects users who voted to skip the current track. It is
// reset every time a new track begins. The threshold decision belongs to the
// command layer.
type SkipVoteTracker struct {
	mu       sync.Mutex
	voters   map[string]struct{}
	messages map[string]struct{}
}

func NewSkipVoteTracker() *SkipVoteTracker {
	return &SkipVoteTracker{
		voters:   make(map[string]struct{}),
		messages: make(map[string]struct{}),
	}
}

// AddSkipper records a vote and returns the new count. Re-voting does not
// double count.
func (t *SkipVoteTracker) AddSkipper(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.voters[userID] = struct{}{}
	return len(t.voters)
}

func (t *SkipVoteTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voters)
}

func (t *SkipVoteTracker) HasVoted(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.voters[userID]
	return ok
}

// AddMessage remembers a vote-related message for later cleanup.
func (t *SkipVoteTracker) AddMessage(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages[messageID] = struct{}{}
}

// Messages returns and clears the remembered message IDs.
func (t *SkipVoteTracker) Messages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.messages))
	for id := range t.messages {
		out = append(out, id)
	}
	t.messages = make(map[string]struct{})
	return out
}

// Reset clears all votes; called on every track change.
func (t *SkipVoteTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.voters = make(map[string]struct{})
	t.messages = make(map[string]struct{})
}
