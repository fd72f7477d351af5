package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/config"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/utils"
)

// YtdlpResolver resolves queries with yt-dlp, translating Spotify links into
// YouTube searches. It is the production Resolver implementation.
type YtdlpResolver struct {
	cfg *config.Config
}

func NewYtdlpResolver(cfg *config.Config) *YtdlpResolver {
	return &YtdlpResolver{cfg: cfg}
}

// send delivers one event unless the consumer is gone. Every producer send
// goes through it so an abandoned ResolveStream channel never strands the
// producing goroutine.
func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *YtdlpResolver) ResolveOne(ctx context.Context, query string) (media.Metadata, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch := r.ResolveStream(ctx, query, Options{PlaylistLimit: 1})
	for ev := range ch {
		if ev.Err != nil {
			return media.Metadata{}, ev.Err
		}
		if ev.Media.SourceURL != "" {
			return ev.Media, nil
		}
	}
	return media.Metadata{}, &ExtractionError{Query: query, Err: fmt.Errorf("no results")}
}

func (r *YtdlpResolver) ResolveStream(ctx context.Context, query string, opts Options) <-chan Event {
	ch := make(chan Event, 8)

	go func() {
		defer close(ch)
		q := strings.TrimSpace(query)

		if strings.HasPrefix(q, "http://") || strings.HasPrefix(q, "https://") || strings.HasPrefix(q, "spotify:") {
			switch {
			case isSpotifyQuery(q):
				r.resolveSpotify(ctx, q, opts, ch)
			case strings.Contains(q, "youtube.com") || strings.Contains(q, "youtu.be") || strings.Contains(q, "music.youtube."):
				if strings.Contains(q, "list=") {
					r.resolveYouTubePlaylist(ctx, q, opts, ch)
				} else {
					r.resolveSingle(ctx, q, ch)
				}
			default:
				// HLS or radio stream URL; no metadata to fetch
				send(ctx, ch, Event{Media: media.Metadata{
					SourceURL: q,
					Title:     q,
					Artist:    q,
					StreamURL: q,
					Kind:      media.KindHLS,
					IsLive:    true,
				}})
			}
			return
		}

		// not a URL, search YouTube
		r.resolveSingle(ctx, "ytsearch1:"+q, ch)
	}()

	return ch
}

func (r *YtdlpResolver) resolveSingle(ctx context.Context, q string, ch chan<- Event) {
	info, err := ytdlpGetInfo(ctx, r.cfg, q)
	if err != nil {
		send(ctx, ch, Event{Err: &ExtractionError{Query: q, Err: err}})
		return
	}
	if len(info.Entries) > 0 {
		// search results come back as a one-entry container
		for i := range info.Entries {
			if !send(ctx, ch, Event{Media: ytInfoToMetadata(&info.Entries[i], nil)}) {
				return
			}
		}
		return
	}
	send(ctx, ch, Event{Media: ytInfoToMetadata(info, nil)})
}

func (r *YtdlpResolver) resolveYouTubePlaylist(ctx context.Context, q string, opts Options, ch chan<- Event) {
	listing, err := ytdlpPlaylist(ctx, r.cfg, q)
	if err != nil || len(listing.Entries) == 0 {
		send(ctx, ch, Event{Err: &ExtractionError{Query: q, Err: fmt.Errorf("playlist not found")}})
		return
	}

	entries := listing.Entries
	if opts.PlaylistLimit > 0 && len(entries) > opts.PlaylistLimit {
		utils.ShuffleSlice(entries)
		entries = entries[:opts.PlaylistLimit]
		if !send(ctx, ch, Event{Info: fmt.Sprintf("a random sample of %d songs was taken", opts.PlaylistLimit)}) {
			return
		}
	}

	qp := &media.PlaylistMeta{Title: listing.Title, Source: q}

	// each entry resolved and emitted incrementally so the queue fills as we go
	for i := range entries {
		e := &entries[i]
		if !opts.FullExpansion {
			if !send(ctx, ch, Event{Media: ytInfoToMetadata(e, qp)}) {
				return
			}
			continue
		}
		full, err := ytdlpGetInfo(ctx, r.cfg, "https://www.youtube.com/watch?v="+e.ID)
		if err != nil {
			if !send(ctx, ch, Event{Err: &ExtractionError{Query: e.ID, Err: err}}) {
				return
			}
			continue
		}
		if !send(ctx, ch, Event{Media: ytInfoToMetadata(full, qp)}) {
			return
		}
	}
}

func (r *YtdlpResolver) resolveSpotify(ctx context.Context, q string, opts Options, ch chan<- Event) {
	if r.cfg.SpotifyClientID == "" || r.cfg.SpotifyClientSecret == "" {
		send(ctx, ch, Event{Err: &ExtractionError{Query: q, Err: fmt.Errorf("spotify is not enabled")}})
		return
	}
	sp, err := newSpotifyClient(r.cfg.SpotifyClientID, r.cfg.SpotifyClientSecret)
	if err != nil {
		send(ctx, ch, Event{Err: &ExtractionError{Query: q, Err: fmt.Errorf("spotify auth: %w", err)}})
		return
	}
	typ, id, err := parseSpotifyID(q)
	if err != nil {
		send(ctx, ch, Event{Err: &ExtractionError{Query: q, Err: fmt.Errorf("invalid spotify identifier")}})
		return
	}

	var (
		tracks []spotifyTrack
		qp     *media.PlaylistMeta
	)
	switch typ {
	case "album":
		var meta media.PlaylistMeta
		tracks, meta, err = sp.album(ctx, id, opts.PlaylistLimit)
		qp = &meta
	case "playlist":
		var meta media.PlaylistMeta
		tracks, meta, err = sp.playlist(ctx, id, opts.PlaylistLimit)
		qp = &meta
	case "track":
		var t spotifyTrack
		t, err = sp.track(ctx, id)
		tracks = []spotifyTrack{t}
	case "artist":
		tracks, err = sp.artistTop(ctx, id, "US", opts.PlaylistLimit)
	default:
		err = fmt.Errorf("unsupported spotify type: %s", typ)
	}
	if err != nil {
		send(ctx, ch, Event{Err: &ExtractionError{Query: q, Err: err}})
		return
	}

	if opts.PlaylistLimit > 0 && len(tracks) > opts.PlaylistLimit {
		utils.ShuffleSlice(tracks)
		tracks = tracks[:opts.PlaylistLimit]
		if !send(ctx, ch, Event{Info: fmt.Sprintf("a random sample of %d songs was taken", opts.PlaylistLimit)}) {
			return
		}
	}

	for _, t := range tracks {
		search := fmt.Sprintf(`ytsearch1:"%s" "%s"`, t.Name, t.Artist)
		info, err := ytdlpGetInfo(ctx, r.cfg, search)
		if err != nil {
			if !send(ctx, ch, Event{Err: &ExtractionError{Query: search, Err: fmt.Errorf("not found: %s - %s", t.Artist, t.Name)}}) {
				return
			}
			continue
		}
		if len(info.Entries) > 0 {
			info = &info.Entries[0]
		}
		if !send(ctx, ch, Event{Media: ytInfoToMetadata(info, qp)}) {
			return
		}
	}
}
