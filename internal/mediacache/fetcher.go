package mediacache

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/resolver"
)

// StreamFetcher downloads the audio payload over HTTP. Stream URLs expire, so
// a missing or rejected URL is re-resolved through the resolver first.
type StreamFetcher struct {
	resolver resolver.Resolver
	client   *http.Client
}

func NewStreamFetcher(r resolver.Resolver) *StreamFetcher {
	return &StreamFetcher{
		resolver: r,
		client:   &http.Client{Timeout: 10 * time.Minute},
	}
}

func (f *StreamFetcher) Fetch(ctx context.Context, m media.Metadata) (io.ReadCloser, error) {
	if m.IsLive {
		return nil, &resolver.ExtractionError{Query: m.SourceURL, Err: fmt.Errorf("live streams are not cached")}
	}

	if m.StreamURL != "" {
		rc, err := f.get(ctx, m.StreamURL)
		if err == nil {
			return rc, nil
		}
	}

	// stream URL absent or expired, resolve a fresh one
	fresh, err := f.resolver.ResolveOne(ctx, m.SourceURL)
	if err != nil {
		return nil, err
	}
	if fresh.StreamURL == "" {
		return nil, &resolver.ExtractionError{Query: m.SourceURL, Err: fmt.Errorf("no usable media URL")}
	}
	return f.get(ctx, fresh.StreamURL)
}

func (f *StreamFetcher) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", randomUserAgent())
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func randomUserAgent() string {
	// Chrome major versions roughly within the last six months
	const minMajor = 132
	const maxMajor = 138

	major := rand.IntN(maxMajor-minMajor+1) + minMajor
	return fmt.Sprintf(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		major,
	)
}
