package autoplaylist

import (
	"context"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/repository"
)

// Service maintains per-guild fallback playlists in the repository. A guild's
// player consumes a GuildList, which only yields picks while the guild has
// the autoplaylist enabled.
type Service struct {
	repo *repository.Repo
}

func NewService(repo *repository.Repo) *Service {
	return &Service{repo: repo}
}

func (s *Service) ForGuild(guildID string) *GuildList {
	return &GuildList{svc: s, guildID: guildID}
}

func (s *Service) Add(ctx context.Context, guildID, url, addedBy string) error {
	return s.repo.AddAutoplaylistURL(ctx, guildID, url, addedBy)
}

func (s *Service) Remove(ctx context.Context, guildID, url string) (bool, error) {
	n, err := s.repo.RemoveAutoplaylistURL(ctx, guildID, url)
	return n > 0, err
}

func (s *Service) List(ctx context.Context, guildID string) ([]repository.AutoplaylistItem, error) {
	return s.repo.ListAutoplaylist(ctx, guildID)
}

func (s *Service) SetEnabled(ctx context.Context, guildID string, enabled bool) error {
	set, err := s.repo.UpsertSettings(ctx, guildID)
	if err != nil {
		return err
	}
	set.AutoplaylistEnabled = enabled
	return s.repo.UpdateSettings(ctx, set)
}

// GuildList binds the service to one guild; it satisfies the player's
// Autoplaylist interface.
type GuildList struct {
	svc     *Service
	guildID string
}

func (g *GuildList) PickOne(ctx context.Context) (string, error) {
	set, err := g.svc.repo.GetSettings(ctx, g.guildID)
	if err != nil || set == nil || !set.AutoplaylistEnabled {
		return "", nil
	}
	return g.svc.repo.RandomAutoplaylistURL(ctx, g.guildID)
}

func (g *GuildList) Remove(ctx context.Context, url string) error {
	_, err := g.svc.Remove(ctx, g.guildID, url)
	return err
}
