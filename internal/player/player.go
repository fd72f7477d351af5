package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/mediacache"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/queue"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/resolver"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/voice"
)

const MaxVolume = 5.0

type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	}
	return "unknown"
}

// Autoplaylist supplies fallback tracks when the queue runs dry.
type Autoplaylist interface {
	// PickOne returns a URL, or "" when nothing is available.
	PickOne(ctx context.Context) (string, error)
	// Remove is called when a picked URL turns out unplayable.
	Remove(ctx context.Context, url string) error
}

// Player owns the currently playing entry for one guild and advances through
// its queue as tracks finish.
type Player struct {
	guildID  string
	q        *queue.Queue
	cache    *mediacache.Cache
	conn     voice.Connection
	resolver resolver.Resolver
	apl      Autoplaylist      // may be nil
	sweep    func(context.Context) // opportunistic cache eviction, may be nil

	// playMu serializes playback attempts: at most one Play may be preparing
	// or starting a transport session at any time.
	playMu sync.Mutex

	// mu guards status, current, volume and the teardown flags.
	mu            sync.Mutex
	status        Status
	current       *queue.Entry
	volume        float64
	killed        bool
	stopRequested bool // explicit stop: skip the auto-advance once

	skips  *SkipVoteTracker
	events chan Event
	done   chan struct{}
}

type Deps struct {
	GuildID      string
	Queue        *queue.Queue
	Cache        *mediacache.Cache
	Conn         voice.Connection
	Resolver     resolver.Resolver
	Autoplaylist Autoplaylist
	Sweep        func(context.Context)
	Volume       float64
}

func New(d Deps) *Player {
	vol := d.Volume
	if vol <= 0 || vol > MaxVolume {
		vol = 1.0
	}
	return &Player{
		guildID:  d.GuildID,
		q:        d.Queue,
		cache:    d.Cache,
		conn:     d.Conn,
		resolver: d.Resolver,
		apl:      d.Autoplaylist,
		sweep:    d.Sweep,
		volume:   vol,
		skips:    NewSkipVoteTracker(),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
	}
}

func (p *Player) GuildID() string              { return p.guildID }
func (p *Player) Queue() *queue.Queue          { return p.q }
func (p *Player) Skips() *SkipVoteTracker      { return p.skips }
func (p *Player) Events() <-chan Event         { return p.events }
func (p *Player) Conn() voice.Connection       { return p.conn }

func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Player) Current() *queue.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// HoldsKey reports whether the cache key backs the current track or any
// queued entry. Both checks happen under the player lock, the same lock the
// queue-to-current handoff in Play holds, so an entry mid-handoff is always
// seen in one place or the other.
func (p *Player) HoldsKey(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.current.Media.CacheKey() == key {
		return true
	}
	return p.q.ContainsKey(key)
}

// Enqueue registers a download for the media, appends an entry and returns
// its 1-based position. Adding to an idle player starts playback.
func (p *Player) Enqueue(ctx context.Context, m media.Metadata, requester, channel string, maxPerUser int) (*queue.Entry, int, error) {
	e := &queue.Entry{
		Media:     m,
		Requester: requester,
		Channel:   channel,
		Download:  p.cache.GetOrStart(ctx, m),
	}
	pos, err := p.q.Add(e, maxPerUser)
	if err != nil {
		return nil, 0, err
	}
	p.emit(Event{Kind: EventEntryAdded, Entry: e})

	p.mu.Lock()
	idle := p.status == StatusIdle && p.current == nil && !p.killed
	p.mu.Unlock()
	if idle {
		go func() {
			if err := p.Play(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("playback start failed", "guildID", p.guildID, "err", err)
			}
		}()
	}
	return e, pos, nil
}

// Play pops entries off the queue until one starts playing. It is safe to
// call concurrently; a second call while a session is live or another Play is
// mid-transition does not start a second transport.
func (p *Player) Play(ctx context.Context) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	for {
		p.mu.Lock()
		if p.killed || p.current != nil {
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		// pop and adopt under one lock so the eviction sweep, which checks
		// queue membership and current entry through HoldsKey, never sees the
		// entry in neither place
		p.mu.Lock()
		e := p.q.PopNext()
		if e != nil {
			p.current = e
		}
		p.mu.Unlock()

		if e == nil {
			if m, ok := p.pickFromAutoplaylist(ctx); ok {
				// adopt as current before starting the download so the entry
				// is visible to HoldsKey the whole time
				e = &queue.Entry{Media: m}
				p.mu.Lock()
				p.current = e
				p.mu.Unlock()
				e.Download = p.cache.GetOrStart(ctx, m)
			}
		}
		if e == nil {
			p.mu.Lock()
			p.status = StatusIdle
			p.mu.Unlock()
			p.emit(Event{Kind: EventStop})
			return nil
		}

		path, err := e.Download.Await(ctx)
		if err != nil {
			// a failed entry never stalls the player: report and move on
			slog.Warn("entry unplayable, skipping", "guildID", p.guildID, "title", e.Media.Title, "err", err)
			p.cache.Invalidate(e.Media.CacheKey())
			p.emit(Event{Kind: EventFinished, Entry: e, Err: err})
			p.clearCurrent()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if p.consumeStop() {
				// the operator stopped while this entry was downloading;
				// do not refill from the autoplaylist
				return nil
			}
			continue
		}

		// a stop issued while the download was pending must not let the
		// entry reach the transport
		if p.consumeStop() {
			p.clearCurrent()
			return nil
		}

		p.mu.Lock()
		vol := p.volume
		p.mu.Unlock()

		err = p.conn.Play(ctx, path, voice.PlayOptions{
			Volume: vol,
			OnFinished: func(perr error) {
				p.handleFinished(e, perr)
			},
		})
		if err != nil {
			slog.Warn("transport refused entry, skipping", "guildID", p.guildID, "title", e.Media.Title, "err", err)
			p.emit(Event{Kind: EventFinished, Entry: e, Err: err})
			p.clearCurrent()
			continue
		}

		p.mu.Lock()
		p.status = StatusPlaying
		p.mu.Unlock()
		p.skips.Reset()
		p.emit(Event{Kind: EventPlay, Entry: e})
		slog.Info("now playing", "guildID", p.guildID, "title", e.Media.Title)
		return nil
	}
}

func (p *Player) clearCurrent() {
	p.mu.Lock()
	p.current = nil
	p.status = StatusIdle
	p.mu.Unlock()
}

// consumeStop reports and clears a pending stop request. Whichever advance
// path observes the request first consumes it.
func (p *Player) consumeStop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	stopped := p.stopRequested
	p.stopRequested = false
	return stopped
}

// handleFinished is the transport completion callback: it drives the
// auto-advance from one track to the next.
func (p *Player) handleFinished(e *queue.Entry, perr error) {
	p.mu.Lock()
	if p.current != e {
		// stale callback from a replaced session
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.status = StatusIdle
	killed := p.killed
	stopped := p.stopRequested
	p.stopRequested = false
	p.mu.Unlock()

	p.emit(Event{Kind: EventFinished, Entry: e, Err: perr})

	ctx := context.Background()
	if p.sweep != nil {
		p.sweep(ctx)
	}
	if killed || stopped {
		return
	}
	if err := p.Play(ctx); err != nil {
		slog.Warn("auto-advance failed", "guildID", p.guildID, "err", err)
	}
}

// pickFromAutoplaylist asks the autoplaylist collaborator for one more URL.
// Unplayable picks are removed from the list and the next pick is tried, a
// few times at most.
func (p *Player) pickFromAutoplaylist(ctx context.Context) (media.Metadata, bool) {
	if p.apl == nil || p.resolver == nil {
		return media.Metadata{}, false
	}
	for attempt := 0; attempt < 3; attempt++ {
		url, err := p.apl.PickOne(ctx)
		if err != nil || url == "" {
			return media.Metadata{}, false
		}
		m, err := p.resolver.ResolveOne(ctx, url)
		if err != nil {
			slog.Info("autoplaylist entry unplayable, removing", "guildID", p.guildID, "url", url, "err", err)
			_ = p.apl.Remove(ctx, url)
			continue
		}
		return m, true
	}
	return media.Metadata{}, false
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusPlaying {
		return errors.New("not playing")
	}
	if err := p.conn.Pause(); err != nil {
		return err
	}
	p.status = StatusPaused
	p.emit(Event{Kind: EventPause, Entry: p.current})
	return nil
}

func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusPaused {
		return errors.New("not paused")
	}
	if err := p.conn.Resume(); err != nil {
		return err
	}
	p.status = StatusPlaying
	p.emit(Event{Kind: EventResume, Entry: p.current})
	return nil
}

// Skip forcibly ends the current track. The transport's completion callback
// fires as if the track finished naturally, which advances the queue.
func (p *Player) Skip() error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return errors.New("nothing playing")
	}
	p.mu.Unlock()
	p.conn.Stop()
	return nil
}

// Stop ends playback and drops the whole queue. Unlike a natural finish it
// does not fall back to the autoplaylist; the player stays idle until the
// next enqueue.
func (p *Player) Stop() {
	p.q.Clear()
	p.mu.Lock()
	cur := p.current
	if cur != nil {
		p.stopRequested = true
	}
	p.mu.Unlock()
	if cur != nil {
		p.conn.Stop()
	}
	p.emit(Event{Kind: EventStop})
}

// Kill is the hard teardown on disconnect or shutdown: the transport stops
// and the queue is abandoned. The player accepts no further work.
func (p *Player) Kill() {
	p.mu.Lock()
	already := p.killed
	p.killed = true
	if !already {
		close(p.done)
	}
	p.mu.Unlock()
	if already {
		return
	}
	p.q.Clear()
	p.conn.Stop()
	p.emit(Event{Kind: EventStop})
}

// Done is closed when the player has been killed. Event consumers use it to
// stop ranging over Events.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// SetVolume sets the gain multiplier in (0, 5.0]. Takes effect on the next
// audio frame.
func (p *Player) SetVolume(v float64) error {
	if v <= 0 || v > MaxVolume {
		return fmt.Errorf("volume must be in (0, %.1f], got %.2f", MaxVolume, v)
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	p.conn.SetVolume(v)
	return nil
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// CurrentRemaining reports how long the current track has left. ok is false
// when nothing is playing with a known finite duration.
func (p *Player) CurrentRemaining() (time.Duration, bool) {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	if cur == nil {
		return 0, true
	}
	if cur.Media.IsLive || cur.Media.Duration <= 0 {
		return 0, false
	}
	rem := cur.Media.Duration - p.conn.Position()
	if rem < 0 {
		rem = 0
	}
	return rem, true
}

// EstimateTimeUntil estimates the wait before the entry at the 1-based queue
// position starts. ok is false when any needed duration is unknown.
func (p *Player) EstimateTimeUntil(position int) (time.Duration, bool) {
	rem, ok := p.CurrentRemaining()
	if !ok {
		return 0, false
	}
	return p.q.EstimateTimeUntil(position, rem)
}

// emit delivers an event without ever blocking the player; when no consumer
// keeps up the oldest event is dropped.
func (p *Player) emit(ev Event) {
	for {
		select {
		case p.events <- ev:
			return
		default:
			select {
			case <-p.events:
			default:
			}
		}
	}
}
