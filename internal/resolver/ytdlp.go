package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/config"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
)

var installOnce sync.Once

// helpers to safely read pointer fields with defaults
func s(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
func f(ptr *float64) float64 {
	if ptr == nil {
		return 0
	}
	return *ptr
}
func b(ptr *bool) bool {
	if ptr == nil {
		return false
	}
	return *ptr
}

type ytInfo struct {
	ID         string
	Title      string
	Uploader   string
	Duration   float64
	IsLive     bool
	WebpageURL string
	URL        string
	Thumbnail  string
	Entries    []ytInfo
}

func newYtdlpCmd(cfg *config.Config, url string) *ytdlp.Command {
	cmd := ytdlp.New().
		Format("ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best").
		NoCheckCertificates().
		DumpJSON()

	if cfg.YouTubeCookiesPath != "" {
		cmd = cmd.Cookies(cfg.YouTubeCookiesPath)
	}
	if strings.Contains(url, "youtube.com") || strings.Contains(url, "youtu.be") {
		extractorArgs := "youtube:player-client=default,mweb"
		if cfg.YouTubePOToken != "" {
			extractorArgs += ";po_token=" + cfg.YouTubePOToken
		}
		cmd = cmd.ExtractorArgs(extractorArgs)
	}
	return cmd
}

func mapExtracted(e *ytdlp.ExtractedInfo) ytInfo {
	out := ytInfo{
		ID:         e.ID,
		Title:      s(e.Title),
		Uploader:   s(e.Uploader),
		Duration:   f(e.Duration),
		IsLive:     b(e.IsLive),
		WebpageURL: s(e.WebpageURL),
		URL:        s(e.URL),
	}
	for _, t := range e.Thumbnails {
		if t != nil && t.URL != "" {
			out.Thumbnail = t.URL // last one wins; yt-dlp orders small to large
		}
	}
	for _, sub := range e.Entries {
		if sub == nil {
			continue
		}
		out.Entries = append(out.Entries, mapExtracted(sub))
	}
	return out
}

// ytdlpGetInfo runs yt-dlp -J against a URL or ytsearch query.
func ytdlpGetInfo(ctx context.Context, cfg *config.Config, url string) (*ytInfo, error) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})

	res, err := newYtdlpCmd(cfg, url).Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp run: %w", err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("parse yt-dlp json: no info returned")
	}
	info := mapExtracted(infos[0])
	return &info, nil
}

// ytdlpPlaylist fetches a flat playlist listing (no per-entry stream URLs).
func ytdlpPlaylist(ctx context.Context, cfg *config.Config, url string) (*ytInfo, error) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})

	cmd := ytdlp.New().FlatPlaylist().DumpJSON()
	if cfg.YouTubeCookiesPath != "" {
		cmd = cmd.Cookies(cfg.YouTubeCookiesPath)
	}

	res, err := cmd.Run(ctx, url)
	if err != nil {
		if strings.Contains(err.Error(), "Sign in to confirm") {
			return nil, fmt.Errorf("yt-dlp playlist fetch failed (PO token may be required): %w", err)
		}
		return nil, fmt.Errorf("yt-dlp playlist fetch failed for %s: %w", url, err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp playlist json for %s: %w", url, err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("yt-dlp returned empty playlist info for %s", url)
	}
	info := mapExtracted(infos[0])
	return &info, nil
}

func ytInfoToMetadata(info *ytInfo, qp *media.PlaylistMeta) media.Metadata {
	sourceURL := info.WebpageURL
	if sourceURL == "" && info.ID != "" {
		sourceURL = "https://www.youtube.com/watch?v=" + info.ID
	}
	dur := time.Duration(0)
	if !info.IsLive && info.Duration > 0 {
		dur = time.Duration(info.Duration * float64(time.Second))
	}
	return media.Metadata{
		SourceURL: sourceURL,
		Title:     info.Title,
		Artist:    info.Uploader,
		Duration:  dur,
		StreamURL: info.URL,
		Kind:      media.KindYouTube,
		IsLive:    info.IsLive,
		Thumbnail: info.Thumbnail,
		Playlist:  qp,
	}
}
