package handlers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/autoplaylist"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/config"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/mediacache"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/player"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/registry"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/repository"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/resolver"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/voice"
)

const sweepInterval = 30 * time.Minute

type Bot struct {
	cfg   *config.Config
	repo  *repository.Repo
	cache *mediacache.Cache
	res   resolver.Resolver
	apl   *autoplaylist.Service
}

func NewBot(cfg *config.Config, repo *repository.Repo, cache *mediacache.Cache, res resolver.Resolver, apl *autoplaylist.Service) *Bot {
	return &Bot{cfg: cfg, repo: repo, cache: cache, res: res, apl: apl}
}

func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	dialer := &voice.DiscordDialer{Session: dg}
	reg := registry.New(b.cache, b.res, dialer, func(guildID string) player.Autoplaylist {
		return b.apl.ForGuild(guildID)
	})
	defer reg.Shutdown()

	cmd := NewCommandHandler(b.cfg, b.repo, b.res, b.apl, reg)

	// On ready: register commands depending on configuration
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", s.State.User.Username)
		appID := s.State.User.ID

		if err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
			Status: b.cfg.BotStatus,
			Activities: []*discordgo.Activity{
				{Name: b.cfg.BotActivity, Type: discordgo.ActivityTypeListening},
			},
		}); err != nil {
			slog.Warn("set presence failed", "err", err)
		}

		if b.cfg.RegisterCommandsOnBot {
			if err := cmd.RegisterCommands(s, appID, ""); err != nil {
				slog.Error("register global commands", "err", err)
			} else {
				slog.Info("registered global application commands")
			}
		} else {
			var wg sync.WaitGroup
			for _, g := range s.State.Guilds {
				wg.Add(1)
				go func(guildID string) {
					defer wg.Done()
					if err := cmd.RegisterCommands(s, appID, guildID); err != nil {
						slog.Error("register guild commands", "guild", guildID, "err", err)
					}
				}(g.ID)
			}
			wg.Wait()

			if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
				slog.Error("clear global commands", "err", err)
			}
			slog.Info("registered commands on all guilds")
		}
	})

	// If registering per-guild, register on new guilds too
	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if b.cfg.RegisterCommandsOnBot {
			return
		}
		appID := s.State.User.ID
		if err := cmd.RegisterCommands(s, appID, g.ID); err != nil {
			slog.Error("register guild commands on join", "guild", g.ID, "err", err)
		}
	})

	dg.AddHandler(cmd.HandleInteraction)

	// voice state update for leave-if-no-listeners
	dg.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		gid := vs.GuildID
		srv := reg.Peek(gid)
		if srv == nil {
			return
		}
		set, err := b.repo.GetSettings(context.Background(), gid)
		if err != nil || set == nil || !set.LeaveIfNoListeners {
			return
		}
		if getNonBotSize(s, gid, srv.Conn.ChannelID()) == 0 {
			slog.Info("no listeners left, leaving", "guildID", gid)
			reg.Teardown(gid)
		}
	})

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				reg.Sweep(ctx)
			}
		}
	}()

	<-ctx.Done()
	return nil
}

func getNonBotSize(s *discordgo.Session, guildID, channelID string) int {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		return 0
	}
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == channelID {
			m, _ := s.State.Member(guildID, vs.UserID)
			if m != nil && m.User != nil && !m.User.Bot {
				n++
			}
		}
	}
	return n
}
