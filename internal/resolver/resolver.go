package resolver

import (
	"context"
	"fmt"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
)

// Event is one item produced while resolving a query. Playlist expansions
// emit many events so entries become visible to the queue incrementally.
type Event struct {
	Media media.Metadata
	Info  string
	Err   error
}

type Options struct {
	// PlaylistLimit caps how many tracks a playlist expansion may produce.
	// 0 means unlimited. Oversized playlists are randomly sampled.
	PlaylistLimit int
	// FullExpansion fetches full per-entry info during playlist expansion
	// instead of the flat listing.
	FullExpansion bool
}

// Resolver turns a user-supplied string (URL or search phrase) into one or
// more playable media descriptors.
type Resolver interface {
	ResolveStream(ctx context.Context, query string, opts Options) <-chan Event
	ResolveOne(ctx context.Context, query string) (media.Metadata, error)
}

// ExtractionError reports a resolution or download failure for one source.
// It is recoverable at the entry level: skip the entry, keep the queue going.
type ExtractionError struct {
	Query string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %q: %v", e.Query, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
