package media

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type SourceKind int

const (
	KindYouTube SourceKind = iota
	KindHLS
)

// Metadata describes one resolved, playable source. Immutable once created.
type Metadata struct {
	SourceURL string // canonical page/stream URL, identity of the source
	Title     string
	Artist    string
	Duration  time.Duration // zero when unknown or live
	StreamURL string        // direct media URL, may expire
	Kind      SourceKind
	IsLive    bool
	Thumbnail string
	Playlist  *PlaylistMeta
}

type PlaylistMeta struct {
	Title  string
	Source string
}

// CacheKey normalizes the source identity used to deduplicate downloads.
// Two Metadata values with the same SourceURL share one download.
func (m Metadata) CacheKey() string {
	return Key(m.SourceURL)
}

func Key(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:])
}
