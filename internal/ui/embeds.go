package ui

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/media"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/player"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/queue"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/utils"
)

func secs(d time.Duration) int {
	return int(d / time.Second)
}

func mediaLink(m media.Metadata) string {
	return fmt.Sprintf("[%s](%s)", utils.EscapeMd(m.Title), m.SourceURL)
}

func durLabel(m media.Metadata) string {
	if m.IsLive {
		return "live"
	}
	if m.Duration <= 0 {
		return "?"
	}
	return utils.PrettyTime(secs(m.Duration))
}

func BuildPlayingEmbed(p *player.Player) *discordgo.MessageEmbed {
	cur := p.Current()
	if cur == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "The queue is empty and nothing is playing",
			Color:       0x992222,
		}
	}
	pos := p.Conn().Position()
	button := "▶️"
	if p.Status() == player.StatusPlaying {
		button = "⏹️"
	}
	progress := 0.0
	if cur.Media.Duration > 0 {
		progress = float64(pos) / float64(cur.Media.Duration)
	}
	bar := ProgressBar(10, progress)
	elapsed := "live"
	if !cur.Media.IsLive && cur.Media.Duration > 0 {
		elapsed = fmt.Sprintf("%s/%s", utils.PrettyTime(secs(pos)), utils.PrettyTime(secs(cur.Media.Duration)))
	}

	requested := ""
	if cur.Requester != "" {
		requested = fmt.Sprintf("Requested by: <@%s>\n", cur.Requester)
	}
	desc := fmt.Sprintf("**%s**\n%s\n%s %s `[ %s ]`",
		mediaLink(cur.Media),
		requested,
		button, bar, elapsed,
	)

	color := 0x006400
	title := "Now Playing"
	if p.Status() != player.StatusPlaying {
		color = 0x8B0000
		title = "Paused"
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       color,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Source: %s", cur.Media.Artist),
		},
	}
	if cur.Media.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cur.Media.Thumbnail}
	}
	return embed
}

func BuildQueueEmbed(p *player.Player, page int, pageSize int) (*discordgo.MessageEmbed, error) {
	cur := p.Current()
	if cur == nil {
		return nil, fmt.Errorf("queue is empty")
	}
	entries := p.Queue().Snapshot()
	total := len(entries)
	maxPage := (total + pageSize - 1) / pageSize
	if maxPage < 1 {
		maxPage = 1
	}
	if page < 1 || page > maxPage {
		return nil, fmt.Errorf("the queue isn't that big")
	}

	begin := (page - 1) * pageSize
	end := begin + pageSize
	if end > total {
		end = total
	}

	out := ""
	for idx, e := range entries[begin:end] {
		n := begin + idx + 1
		line := fmt.Sprintf("`%d.` %s `[ %s ]`", n, mediaLink(e.Media), durLabel(e.Media))
		if eta, ok := p.EstimateTimeUntil(n); ok {
			line += fmt.Sprintf(" starts in %s", utils.PrettyTime(secs(eta)))
		}
		out += line + "\n"
	}

	pos := p.Conn().Position()
	progress := 0.0
	if cur.Media.Duration > 0 {
		progress = float64(pos) / float64(cur.Media.Duration)
	}
	bar := ProgressBar(10, progress)
	elapsed := "live"
	if !cur.Media.IsLive && cur.Media.Duration > 0 {
		elapsed = fmt.Sprintf("%s/%s", utils.PrettyTime(secs(pos)), utils.PrettyTime(secs(cur.Media.Duration)))
	}

	requested := ""
	if cur.Requester != "" {
		requested = fmt.Sprintf("Requested by: <@%s>\n", cur.Requester)
	}
	desc := fmt.Sprintf("**%s**\n%s\n%s `[ %s ]`\n\n", mediaLink(cur.Media), requested, bar, elapsed)
	if len(out) > 0 {
		desc += "**Up next:**\n" + out
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: desc,
		Color:       0x006400,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: queueInfo(total), Inline: true},
			{Name: "Total length", Value: totalLenLabel(entries), Inline: true},
			{Name: "Page", Value: fmt.Sprintf("%d out of %d", page, maxPage), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Source: %s %s", cur.Media.Artist, func() string {
				if cur.Media.Playlist != nil {
					return "(" + cur.Media.Playlist.Title + ")"
				}
				return ""
			}()),
		},
	}
	if cur.Media.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cur.Media.Thumbnail}
	}
	return embed, nil
}

func queueInfo(n int) string {
	if n == 0 {
		return "-"
	}
	if n == 1 {
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}

// totalLenLabel sums finite durations only; a queue holding any live or
// unknown-length entry reports an open-ended total.
func totalLenLabel(entries []*queue.Entry) string {
	var total time.Duration
	open := false
	for _, e := range entries {
		if e.Media.IsLive || e.Media.Duration <= 0 {
			open = true
			continue
		}
		total += e.Media.Duration
	}
	if total <= 0 {
		return "-"
	}
	if open {
		return utils.PrettyTime(secs(total)) + "+"
	}
	return utils.PrettyTime(secs(total))
}
