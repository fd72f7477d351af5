package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/autoplaylist"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/config"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/player"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/queue"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/registry"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/repository"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/resolver"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/ui"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/utils"
)

type CommandHandler struct {
	cfg  *config.Config
	repo *repository.Repo
	res  resolver.Resolver
	apl  *autoplaylist.Service
	reg  *registry.Registry

	watchMu sync.Mutex
	watched map[string]bool
}

func NewCommandHandler(cfg *config.Config, repo *repository.Repo, res resolver.Resolver, apl *autoplaylist.Service, reg *registry.Registry) *CommandHandler {
	return &CommandHandler{
		cfg:     cfg,
		repo:    repo,
		res:     res,
		apl:     apl,
		reg:     reg,
		watched: make(map[string]bool),
	}
}

func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string, guildID string) error {
	start := time.Now()
	slog.Info("registering application commands", "appID", appID, "guildID", guildID)

	cmds := []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song (YouTube/Spotify URL, HLS URL, or search)",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "query or URL", Type: discordgo.ApplicationCommandOptionString, Required: true},
				{Name: "immediate", Description: "add to front of queue", Type: discordgo.ApplicationCommandOptionBoolean},
				{Name: "shuffle", Description: "shuffle additions", Type: discordgo.ApplicationCommandOptionBoolean},
			},
		},
		{Name: "pause", Description: "Pause the current song"},
		{Name: "resume", Description: "Resume playback"},
		{Name: "skip", Description: "Vote to skip the current song"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "summon", Description: "Join your voice channel"},
		{Name: "disconnect", Description: "Disconnect and forget this guild's queue"},
		{Name: "clear", Description: "Clear the queue except the current song"},
		{Name: "shuffle", Description: "Shuffle the queue"},
		{Name: "now-playing", Description: "Show the currently playing song"},
		{
			Name:        "queue",
			Description: "Show the current queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "page", Description: "page of queue to show [default: 1]", Type: discordgo.ApplicationCommandOptionInteger},
				{Name: "page-size", Description: "how many items per page [default: 10, max: 30]", Type: discordgo.ApplicationCommandOptionInteger},
			},
		},
		{
			Name:        "remove",
			Description: "Remove a song from the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "position", Description: "position of the song to remove", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
			},
		},
		{
			Name:        "promote",
			Description: "Move a song to the front of the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "position", Description: "position to promote [default: last added]", Type: discordgo.ApplicationCommandOptionInteger},
			},
		},
		{
			Name:        "volume",
			Description: "Set playback volume",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "level", Description: "percent, 100 = normal, max 500", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
			},
		},
		{
			Name:        "autoplaylist",
			Description: "Manage the fallback playlist",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "add a URL",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "url", Description: "source URL", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "remove a URL",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "url", Description: "source URL", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "list autoplaylist entries"},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "toggle",
					Description: "enable or disable the autoplaylist",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "enabled", Description: "true/false", Type: discordgo.ApplicationCommandOptionBoolean, Required: true},
					},
				},
			},
		},
		{
			Name:        "config",
			Description: "Configure bot settings",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "get", Description: "show settings"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-playlist-limit", Description: "max tracks added per playlist", Options: []*discordgo.ApplicationCommandOption{
					{Name: "limit", Description: "max tracks", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-max-songs-per-user", Description: "queued songs allowed per user (0 = unlimited)", Options: []*discordgo.ApplicationCommandOption{
					{Name: "limit", Description: "max songs", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-wait-after-queue-empties", Description: "time to wait before leaving VC (0 = never leave)", Options: []*discordgo.ApplicationCommandOption{
					{Name: "delay", Description: "seconds", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-leave-if-no-listeners", Description: "leave when no listeners remain", Options: []*discordgo.ApplicationCommandOption{
					{Name: "value", Description: "true/false", Type: discordgo.ApplicationCommandOptionBoolean, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-auto-announce-next-song", Description: "announce each song as it starts", Options: []*discordgo.ApplicationCommandOption{
					{Name: "value", Description: "true/false", Type: discordgo.ApplicationCommandOptionBoolean, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-default-volume", Description: "default volume percent", Options: []*discordgo.ApplicationCommandOption{
					{Name: "level", Description: "1-500", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-default-queue-page-size", Description: "queue page size", Options: []*discordgo.ApplicationCommandOption{
					{Name: "page_size", Description: "1-30", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-skip-ratio", Description: "percent of listeners needed to skip", Options: []*discordgo.ApplicationCommandOption{
					{Name: "percent", Description: "1-100", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-max-skips", Description: "vote cap regardless of listener count (0 = no cap)", Options: []*discordgo.ApplicationCommandOption{
					{Name: "count", Description: "max votes", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
			},
		},
	}

	for _, c := range cmds {
		if _, err := s.ApplicationCommandCreate(appID, guildID, c); err != nil {
			slog.Error("failed to create application command", "guildID", guildID, "command", c.Name, "err", err)
			return err
		}
		slog.Debug("registered command", "guildID", guildID, "command", c.Name)
	}

	slog.Info("finished registering commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	slog.Debug("interaction", "guildID", i.GuildID, "userID", userIDOf(i), "command", data.Name)
	switch data.Name {
	case "play":
		h.cmdPlay(s, i)
	case "pause":
		h.cmdPause(s, i)
	case "resume":
		h.cmdResume(s, i)
	case "skip":
		h.cmdSkip(s, i)
	case "stop":
		h.cmdStop(s, i)
	case "summon":
		h.cmdSummon(s, i)
	case "disconnect":
		h.cmdDisconnect(s, i)
	case "clear":
		h.cmdClear(s, i)
	case "shuffle":
		h.cmdShuffle(s, i)
	case "now-playing":
		h.cmdNowPlaying(s, i)
	case "queue":
		h.cmdQueue(s, i)
	case "remove":
		h.cmdRemove(s, i)
	case "promote":
		h.cmdPromote(s, i)
	case "volume":
		h.cmdVolume(s, i)
	case "autoplaylist":
		h.cmdAutoplaylist(s, i)
	case "config":
		h.cmdConfig(s, i)
	default:
		slog.Debug("unknown command", "name", data.Name, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	}); err != nil {
		slog.Warn("embed respond failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func userInVoice(s *discordgo.Session, guildID, userID string) (channelID string, ok bool) {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		g, _ = s.Guild(guildID)
	}
	if g == nil {
		return "", false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

func (h *CommandHandler) settings(ctx context.Context, guildID string) (*repository.Settings, error) {
	if _, err := h.repo.UpsertSettings(ctx, guildID); err != nil {
		slog.Warn("upsert settings failed", "guildID", guildID, "err", err)
	}
	return h.repo.GetSettings(ctx, guildID)
}

// getServer joins the caller's voice channel (if not already connected) and
// returns the guild's server, starting the event watcher on first creation.
func (h *CommandHandler) getServer(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, set *repository.Settings) (*registry.Server, error) {
	chID, ok := userInVoice(s, i.GuildID, userIDOf(i))
	if !ok {
		return nil, errors.New("gotta be in a voice channel")
	}
	srv, err := h.reg.GetOrCreate(ctx, i.GuildID, chID, float64(set.DefaultVolume)/100)
	if err != nil {
		return nil, err
	}
	h.watch(s, srv)
	return srv, nil
}

// watch consumes a server's player events for announcements and the
// empty-queue disconnect timer. One watcher per live guild.
func (h *CommandHandler) watch(s *discordgo.Session, srv *registry.Server) {
	h.watchMu.Lock()
	if h.watched[srv.GuildID] {
		h.watchMu.Unlock()
		return
	}
	h.watched[srv.GuildID] = true
	h.watchMu.Unlock()

	go func() {
		defer func() {
			h.watchMu.Lock()
			delete(h.watched, srv.GuildID)
			h.watchMu.Unlock()
		}()
		var idle *time.Timer
		stopIdle := func() {
			if idle != nil {
				idle.Stop()
				idle = nil
			}
		}
		defer stopIdle()
		for {
			select {
			case <-srv.Player.Done():
				return
			case ev := <-srv.Player.Events():
				switch ev.Kind {
				case player.EventPlay:
					stopIdle()
					h.announce(s, srv, ev)
				case player.EventEntryAdded:
					stopIdle()
				case player.EventFinished:
					if ev.Err != nil && ev.Entry != nil && ev.Entry.Channel != "" {
						msg := fmt.Sprintf("skipping **%s**: %v", utils.EscapeMd(ev.Entry.Media.Title), ev.Err)
						if _, err := s.ChannelMessageSend(ev.Entry.Channel, msg); err != nil {
							slog.Warn("failure notice failed", "guildID", srv.GuildID, "err", err)
						}
					}
				case player.EventStop:
					set, err := h.repo.GetSettings(context.Background(), srv.GuildID)
					if err != nil || set == nil || set.SecondsWaitAfterEmpty <= 0 {
						continue
					}
					stopIdle()
					idle = time.AfterFunc(time.Duration(set.SecondsWaitAfterEmpty)*time.Second, func() {
						if srv.Player.Status() == player.StatusIdle {
							slog.Info("queue stayed empty, leaving", "guildID", srv.GuildID)
							h.reg.Teardown(srv.GuildID)
						}
					})
				}
			}
		}
	}()
}

func (h *CommandHandler) announce(s *discordgo.Session, srv *registry.Server, ev player.Event) {
	if ev.Entry == nil || ev.Entry.Channel == "" {
		return
	}
	set, err := h.repo.GetSettings(context.Background(), srv.GuildID)
	if err != nil || set == nil || !set.AutoAnnounceNext {
		return
	}
	if _, err := s.ChannelMessageSendEmbed(ev.Entry.Channel, ui.BuildPlayingEmbed(srv.Player)); err != nil {
		slog.Warn("announce failed", "guildID", srv.GuildID, "err", err)
	}
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var query string
	var immediate, shuffleAdd bool
	for _, o := range i.ApplicationCommandData().Options {
		switch o.Name {
		case "query":
			query = o.StringValue()
		case "immediate":
			immediate = o.BoolValue()
		case "shuffle":
			shuffleAdd = o.BoolValue()
		}
	}
	slog.Info("cmd play", "guildID", i.GuildID, "userID", userIDOf(i), "query", query, "immediate", immediate, "shuffle", shuffleAdd)

	// cancelled on every return so an abandoned resolve stream winds down
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	set, err := h.settings(ctx, i.GuildID)
	if err != nil {
		slog.Error("get settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "internal error", true)
		return
	}

	srv, err := h.getServer(ctx, s, i, set)
	if err != nil {
		slog.Warn("voice connect failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, err.Error(), true)
		return
	}

	h.deferReply(s, i)

	memberID := userIDOf(i)
	added := 0
	var lastErr error
	for ev := range h.res.ResolveStream(ctx, query, resolver.Options{PlaylistLimit: set.PlaylistLimit}) {
		if ev.Err != nil {
			lastErr = ev.Err
			slog.Debug("resolve failed", "guildID", i.GuildID, "query", query, "err", ev.Err)
			continue
		}
		entry, pos, err := srv.Player.Enqueue(ctx, ev.Media, memberID, i.ChannelID, set.MaxSongsPerUser)
		if err != nil {
			var perr *queue.PermissionsError
			if errors.As(err, &perr) {
				h.editReply(s, i, perr.Error())
				return
			}
			slog.Warn("enqueue failed", "guildID", i.GuildID, "title", ev.Media.Title, "err", err)
			continue
		}
		added++
		if added == 1 {
			if immediate {
				if _, err := srv.Queue.PromoteLast(); err == nil {
					pos = 1
				}
			}
			msg := fmt.Sprintf("**%s** added to the queue (position %d)", utils.EscapeMd(entry.Media.Title), pos)
			if eta, ok := srv.Player.EstimateTimeUntil(pos); ok && eta > 0 {
				msg += fmt.Sprintf(", starts in ~%s", utils.PrettyTime(int(eta/time.Second)))
			}
			h.editReply(s, i, msg)
		}
	}

	if added == 0 {
		if lastErr != nil {
			h.editReply(s, i, "couldn't find anything playable: "+lastErr.Error())
		} else {
			h.editReply(s, i, "no songs found")
		}
		return
	}
	if added > 1 {
		if shuffleAdd {
			srv.Queue.Shuffle()
		}
		h.editReply(s, i, fmt.Sprintf("added **%d** songs to the queue", added))
	}
}

func (h *CommandHandler) cmdPause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	srv := h.reg.Peek(i.GuildID)
	if srv == nil {
		h.reply(s, i, "not connected", true)
		return
	}
	if err := srv.Player.Pause(); err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd pause", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "paused", false)
}

func (h *CommandHandler) cmdResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	srv := h.reg.Peek(i.GuildID)
	if srv == nil {
		h.reply(s, i, "not connected", true)
		return
	}
	if err := srv.Player.Resume(); err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd resume", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "resumed", false)
}

func (h *CommandHandler) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	srv := h.reg.Peek(i.GuildID)
	if srv == nil {
		h.reply(s, i, "not connected", true)
		return
	}
	cur := srv.Player.Current()
	if cur == nil {
		h.reply(s, i, "nothing is playing", true)
		return
	}

	uid := userIDOf(i)
	title := utils.EscapeMd(cur.Media.Title)

	// the requester skips their own track without a vote
	if uid != "" && uid == cur.Requester {
		if err := srv.Player.Skip(); err != nil {
			h.reply(s, i, err.Error(), true)
			return
		}
		slog.Info("cmd skip (requester)", "guildID", i.GuildID, "userID", uid)
		h.reply(s, i, fmt.Sprintf("skipped **%s**", title), false)
		return
	}

	set, err := h.settings(context.Background(), i.GuildID)
	if err != nil {
		slog.Error("get settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "internal error", true)
		return
	}

	// the requester's own presence doesn't count toward the vote pool
	listeners := getNonBotSize(s, i.GuildID, srv.Conn.ChannelID())
	if _, ok := userInVoice(s, i.GuildID, cur.Requester); ok && listeners > 0 {
		listeners--
	}
	needed := player.SkipThreshold(set.SkipRatio, set.MaxSkips, listeners)

	votes := srv.Player.Skips().AddSkipper(uid)
	if votes >= needed {
		if err := srv.Player.Skip(); err != nil {
			h.reply(s, i, err.Error(), true)
			return
		}
		slog.Info("cmd skip (vote passed)", "guildID", i.GuildID, "userID", uid, "votes", votes, "needed", needed)
		h.reply(s, i, fmt.Sprintf("vote passed, skipped **%s**", title), false)
		return
	}
	slog.Info("cmd skip (vote)", "guildID", i.GuildID, "userID", uid, "votes", votes, "needed", needed)
	h.reply(s, i, fmt.Sprintf("skip vote added for **%s** (%d/%d)", title, votes, needed), false)
}

func (h *CommandHandler) cmdStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	srv := h.reg.Peek(i.GuildID)
	if srv == nil {
		h.reply(s, i, "not connected", true)
		return
	}
	srv.Player.Stop()
	slog.Info("cmd stop", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "stopped and cleared the queue", false)
}

func (h *CommandHandler) cmdSummon(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	set, err := h.settings(ctx, i.GuildID)
	if err != nil {
		h.reply(s, i, "internal error", true)
		return
	}
	if _, err := h.getServer(ctx, s, i, set); err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd summon", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "hello", false)
}

func (h *CommandHandler) cmdDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if h.reg.Peek(i.GuildID) == nil {
		h.reply(s, i, "not connected", true)
		return
	}
	h.reg.Teardown(i.GuildID)
	slog.Info("cmd disconnect", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "disconnected", false)
}

func (h *CommandHandler) cmdClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	srv := h.reg.Peek(i.GuildID)
	if srv == nil {
		h.reply(s, i, "not connected", true)
		return
	}
	srv.Queue.Clear()
	slog.Info("cmd clear", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "queue cleared", false)
}

func (h *CommandHandler) cmdShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	srv := h.reg.Peek(i.GuildID)
	if srv == nil || srv.Queue.Len() == 0 {
		h.reply(s, i, "nothing to shuffle", true)
		return
	}
	srv.Queue.Shuffle()
	slog.Info("cmd shuffle", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "queue shuffled", false)
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	srv := h.reg.Peek(i.GuildID)
	if srv == nil || srv.Player.Current() == nil {
		h.reply(s, i, "nothing is currently playing", true)
		return
	}
	h.replyEmbed(s, i, ui.BuildPlayingEmbed(srv.Player))
}

func (h *CommandHandler) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	set, err := h.settings(ctx, i.GuildID)
	if err != nil {
		slog.Error("get settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "failed to fetch settings", true)
		return
	}

	page := 1
	pageSize := set.DefaultQueuePageSize
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "page" {
			page = int(o.IntValue())
		} else if o.Name == "page-size" {
			pageSize = int(o.IntValue())
			if pageSize < 1 {
				pageSize = 1
			}
			if pageSize > 30 {
				pageSize = 30
			}
		}
	}

	srv := h.reg.Peek(i.GuildID)
	if srv == nil {
		h.reply(s, i, "not connected", true)
		return
	}
	embed, err := ui.BuildQueueEmbed(srv.Player, page, pageSize)
	if err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	h.replyEmbed(s, i, embed)
}

func (h *CommandHandler) cmdRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pos := 0
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "position" {
			pos = int(o.IntValue())
		}
	}
	srv := h.reg.Peek(i.GuildID)
	if srv == nil {
		h.reply(s, i, "not connected", true)
		return
	}
	e, err := srv.Queue.RemoveAt(pos)
	if err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd remove", "guildID", i.GuildID, "userID", userIDOf(i), "pos", pos, "title", e.Media.Title)
	h.reply(s, i, fmt.Sprintf(":wastebasket: removed **%s**", utils.EscapeMd(e.Media.Title)), false)
}

func (h *CommandHandler) cmdPromote(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pos := 0
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "position" {
			pos = int(o.IntValue())
		}
	}
	srv := h.reg.Peek(i.GuildID)
	if srv == nil {
		h.reply(s, i, "not connected", true)
		return
	}
	var e *queue.Entry
	var err error
	if pos > 0 {
		e, err = srv.Queue.PromoteToFront(pos)
	} else {
		e, err = srv.Queue.PromoteLast()
	}
	if err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd promote", "guildID", i.GuildID, "userID", userIDOf(i), "pos", pos, "title", e.Media.Title)
	h.reply(s, i, fmt.Sprintf("**%s** will play next", utils.EscapeMd(e.Media.Title)), false)
}

func (h *CommandHandler) cmdVolume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	level := 0
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "level" {
			level = int(o.IntValue())
		}
	}
	srv := h.reg.Peek(i.GuildID)
	if srv == nil {
		h.reply(s, i, "not connected", true)
		return
	}
	if err := srv.Player.SetVolume(float64(level) / 100); err != nil {
		h.reply(s, i, err.Error(), true)
		return
	}
	slog.Info("cmd volume", "guildID", i.GuildID, "userID", userIDOf(i), "level", level)
	h.reply(s, i, fmt.Sprintf("volume set to %d%%", level), false)
}

func (h *CommandHandler) cmdAutoplaylist(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub := i.ApplicationCommandData().Options[0]
	ctx := context.Background()
	switch sub.Name {
	case "add":
		url := sub.Options[0].StringValue()
		if err := h.apl.Add(ctx, i.GuildID, url, userIDOf(i)); err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				h.reply(s, i, "that URL is already on the autoplaylist", true)
				return
			}
			slog.Warn("autoplaylist add failed", "guildID", i.GuildID, "url", url, "err", err)
			h.reply(s, i, "failed to add", true)
			return
		}
		slog.Info("autoplaylist add", "guildID", i.GuildID, "userID", userIDOf(i), "url", url)
		h.reply(s, i, "added to the autoplaylist", false)
	case "remove":
		url := sub.Options[0].StringValue()
		removed, err := h.apl.Remove(ctx, i.GuildID, url)
		if err != nil {
			slog.Warn("autoplaylist remove failed", "guildID", i.GuildID, "url", url, "err", err)
			h.reply(s, i, "failed to remove", true)
			return
		}
		if !removed {
			h.reply(s, i, "that URL isn't on the autoplaylist", true)
			return
		}
		slog.Info("autoplaylist remove", "guildID", i.GuildID, "userID", userIDOf(i), "url", url)
		h.reply(s, i, "removed from the autoplaylist", false)
	case "list":
		items, err := h.apl.List(ctx, i.GuildID)
		if err != nil {
			slog.Warn("autoplaylist list failed", "guildID", i.GuildID, "err", err)
			h.reply(s, i, "failed to list", true)
			return
		}
		if len(items) == 0 {
			h.reply(s, i, "the autoplaylist is empty", true)
			return
		}
		var b strings.Builder
		for n, it := range items {
			line := fmt.Sprintf("`%d.` <%s> (<@%s>)\n", n+1, it.URL, it.AddedBy)
			if b.Len()+len(line) > 1900 {
				fmt.Fprintf(&b, "…and %d more", len(items)-n)
				break
			}
			b.WriteString(line)
		}
		h.reply(s, i, b.String(), true)
	case "toggle":
		enabled := sub.Options[0].BoolValue()
		if err := h.apl.SetEnabled(ctx, i.GuildID, enabled); err != nil {
			slog.Warn("autoplaylist toggle failed", "guildID", i.GuildID, "err", err)
			h.reply(s, i, "failed to update", true)
			return
		}
		slog.Info("autoplaylist toggle", "guildID", i.GuildID, "userID", userIDOf(i), "enabled", enabled)
		if enabled {
			h.reply(s, i, "autoplaylist enabled", false)
		} else {
			h.reply(s, i, "autoplaylist disabled", false)
		}
	}
}

func (h *CommandHandler) cmdConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	set, err := h.settings(ctx, i.GuildID)
	if err != nil {
		slog.Error("get settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "failed to fetch config", true)
		return
	}

	sub := i.ApplicationCommandData().Options[0]
	switch sub.Name {
	case "get":
		msg := fmt.Sprintf(
			"Config\n- Playlist limit: %d\n- Max songs per user: %s\n- Wait before leaving after queue empty: %s\n- Leave if no listeners: %t\n- Auto announce next song: %t\n- Default volume: %d%%\n- Default queue page size: %d\n- Skip ratio: %d%%\n- Max skips: %d\n- Autoplaylist enabled: %t",
			set.PlaylistLimit,
			unlimitedLabel(set.MaxSongsPerUser),
			func() string {
				if set.SecondsWaitAfterEmpty == 0 {
					return "never leave"
				}
				return fmt.Sprintf("%ds", set.SecondsWaitAfterEmpty)
			}(),
			set.LeaveIfNoListeners,
			set.AutoAnnounceNext,
			set.DefaultVolume,
			set.DefaultQueuePageSize,
			set.SkipRatio,
			set.MaxSkips,
			set.AutoplaylistEnabled,
		)
		h.reply(s, i, msg, false)
		return
	case "set-playlist-limit":
		limit := int(sub.Options[0].IntValue())
		if limit < 1 {
			h.reply(s, i, "invalid limit", true)
			return
		}
		set.PlaylistLimit = limit
	case "set-max-songs-per-user":
		limit := int(sub.Options[0].IntValue())
		if limit < 0 {
			h.reply(s, i, "invalid limit", true)
			return
		}
		set.MaxSongsPerUser = limit
	case "set-wait-after-queue-empties":
		set.SecondsWaitAfterEmpty = int(sub.Options[0].IntValue())
	case "set-leave-if-no-listeners":
		set.LeaveIfNoListeners = sub.Options[0].BoolValue()
	case "set-auto-announce-next-song":
		set.AutoAnnounceNext = sub.Options[0].BoolValue()
	case "set-default-volume":
		level := int(sub.Options[0].IntValue())
		if level < 1 || level > int(player.MaxVolume*100) {
			h.reply(s, i, "invalid volume", true)
			return
		}
		set.DefaultVolume = level
	case "set-default-queue-page-size":
		size := int(sub.Options[0].IntValue())
		if size < 1 || size > 30 {
			h.reply(s, i, "invalid page size", true)
			return
		}
		set.DefaultQueuePageSize = size
	case "set-skip-ratio":
		pct := int(sub.Options[0].IntValue())
		if pct < 1 || pct > 100 {
			h.reply(s, i, "invalid percentage", true)
			return
		}
		set.SkipRatio = pct
	case "set-max-skips":
		n := int(sub.Options[0].IntValue())
		if n < 0 {
			h.reply(s, i, "invalid count", true)
			return
		}
		set.MaxSkips = n
	default:
		return
	}

	if err := h.repo.UpdateSettings(ctx, set); err != nil {
		slog.Error("update settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "failed to save config", true)
		return
	}
	slog.Info("config updated", "guildID", i.GuildID, "userID", userIDOf(i), "key", sub.Name)
	h.reply(s, i, "setting updated", false)
}

func unlimitedLabel(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i == nil || i.Member == nil || i.Member.User == nil {
		return ""
	}
	return i.Member.User.ID
}
