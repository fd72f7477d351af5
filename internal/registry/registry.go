package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/mediacache"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/player"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/queue"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/resolver"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/voice"
)

// Server is one guild's live playback triple.
type Server struct {
	GuildID string
	Conn    voice.Connection
	Player  *player.Player
	Queue   *queue.Queue
}

// AutoplaylistFactory yields the per-guild autoplaylist collaborator.
type AutoplaylistFactory func(guildID string) player.Autoplaylist

// Registry maps a guild to its (connection, player, queue) triple, creating
// it lazily on first use. Creation and teardown go through one guarded path
// so concurrent first-use never builds two players for the same guild.
type Registry struct {
	cache    *mediacache.Cache
	resolver resolver.Resolver
	dialer   voice.Dialer
	aplFor   AutoplaylistFactory

	mu      sync.Mutex
	servers map[string]*Server
}

func New(cache *mediacache.Cache, res resolver.Resolver, dialer voice.Dialer, aplFor AutoplaylistFactory) *Registry {
	return &Registry{
		cache:    cache,
		resolver: res,
		dialer:   dialer,
		aplFor:   aplFor,
		servers:  make(map[string]*Server),
	}
}

// GetOrCreate returns the guild's triple, dialing voice and constructing a
// fresh player and queue on first access. A failed dial leaves no entry
// behind, so the next attempt retries cleanly.
func (r *Registry) GetOrCreate(ctx context.Context, guildID, channelID string, volume float64) (*Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if srv, ok := r.servers[guildID]; ok {
		return srv, nil
	}

	conn, err := r.dialer.Connect(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}

	q := queue.New()
	var apl player.Autoplaylist
	if r.aplFor != nil {
		apl = r.aplFor(guildID)
	}
	p := player.New(player.Deps{
		GuildID:      guildID,
		Queue:        q,
		Cache:        r.cache,
		Conn:         conn,
		Resolver:     r.resolver,
		Autoplaylist: apl,
		Sweep:        r.Sweep,
		Volume:       volume,
	})

	srv := &Server{GuildID: guildID, Conn: conn, Player: p, Queue: q}
	r.servers[guildID] = srv
	slog.Info("server registered", "guildID", guildID, "channelID", channelID)
	return srv, nil
}

// Peek returns the guild's triple without creating one.
func (r *Registry) Peek(guildID string) *Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.servers[guildID]
}

// Teardown kills the player, disconnects voice and forgets the guild.
func (r *Registry) Teardown(guildID string) {
	r.mu.Lock()
	srv, ok := r.servers[guildID]
	if ok {
		delete(r.servers, guildID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	srv.Player.Kill()
	if err := srv.Conn.Disconnect(); err != nil {
		slog.Warn("voice disconnect failed", "guildID", guildID, "err", err)
	}
	slog.Info("server torn down", "guildID", guildID)
}

// Shutdown tears down every guild. Used on process exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	servers := r.servers
	r.servers = make(map[string]*Server)
	r.mu.Unlock()

	for gid, srv := range servers {
		srv.Player.Kill()
		if err := srv.Conn.Disconnect(); err != nil {
			slog.Warn("voice disconnect failed", "guildID", gid, "err", err)
		}
	}
}

// inUse reports whether any live queue entry or current track across all
// guilds references the cache key. It backs the eviction sweep's safety
// check.
func (r *Registry) inUse(key string) bool {
	r.mu.Lock()
	servers := make([]*Server, 0, len(r.servers))
	for _, srv := range r.servers {
		servers = append(servers, srv)
	}
	r.mu.Unlock()

	for _, srv := range servers {
		if srv.Player.HoldsKey(key) {
			return true
		}
	}
	return false
}

// Sweep runs the reference-checked cache eviction across all guilds.
func (r *Registry) Sweep(ctx context.Context) {
	if err := r.cache.Sweep(ctx, r.inUse); err != nil {
		slog.Warn("cache sweep failed", "err", err)
	}
	if err := r.cache.EvictIfNeeded(ctx, r.inUse); err != nil {
		slog.Warn("cache size eviction failed", "err", err)
	}
}
