package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	_, _ = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id) VALUES (?)`, guild,
	)
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, playlist_limit, max_songs_per_user, seconds_wait_after_empty,
	       leave_if_no_listeners, auto_announce_next_song, default_volume,
	       default_queue_page_size, skip_ratio, max_skips, autoplaylist_enabled
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var b1, b2, b3 int
	if err := row.Scan(
		&s.GuildID,
		&s.PlaylistLimit,
		&s.MaxSongsPerUser,
		&s.SecondsWaitAfterEmpty,
		&b1, // leave_if_no_listeners
		&b2, // auto_announce_next_song
		&s.DefaultVolume,
		&s.DefaultQueuePageSize,
		&s.SkipRatio,
		&s.MaxSkips,
		&b3, // autoplaylist_enabled
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}

	s.LeaveIfNoListeners = b1 != 0
	s.AutoAnnounceNext = b2 != 0
	s.AutoplaylistEnabled = b3 != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  playlist_limit=?,
		  max_songs_per_user=?,
		  seconds_wait_after_empty=?,
		  leave_if_no_listeners=?,
		  auto_announce_next_song=?,
		  default_volume=?,
		  default_queue_page_size=?,
		  skip_ratio=?,
		  max_skips=?,
		  autoplaylist_enabled=?
		WHERE guild_id=?`,
		s.PlaylistLimit, s.MaxSongsPerUser, s.SecondsWaitAfterEmpty,
		boolToInt(s.LeaveIfNoListeners), boolToInt(s.AutoAnnounceNext),
		s.DefaultVolume, s.DefaultQueuePageSize, s.SkipRatio, s.MaxSkips,
		boolToInt(s.AutoplaylistEnabled), s.GuildID,
	)
	return err
}

func (r *Repo) AddAutoplaylistURL(ctx context.Context, guild, url, addedBy string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO autoplaylist(guild_id, url, added_by, created_at) VALUES (?,?,?,?)`,
		guild, url, addedBy, time.Now().Unix(),
	)
	return err
}

func (r *Repo) RemoveAutoplaylistURL(ctx context.Context, guild, url string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM autoplaylist WHERE guild_id=? AND url=?`, guild, url)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) RandomAutoplaylistURL(ctx context.Context, guild string) (string, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT url FROM autoplaylist WHERE guild_id=? ORDER BY RANDOM() LIMIT 1`, guild)
	var url string
	if err := row.Scan(&url); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return url, nil
}

func (r *Repo) ListAutoplaylist(ctx context.Context, guild string) ([]AutoplaylistItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, guild_id, url, added_by FROM autoplaylist WHERE guild_id=? ORDER BY id ASC`, guild)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AutoplaylistItem
	for rows.Next() {
		var it AutoplaylistItem
		if err := rows.Scan(&it.ID, &it.GuildID, &it.URL, &it.AddedBy); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) CacheTouch(ctx context.Context, hash string, size int64, created bool) error {
	now := time.Now().Unix()
	if created {
		_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO file_cache(hash,bytes,accessed_at,created_at) VALUES (?,?,?,COALESCE((SELECT created_at FROM file_cache WHERE hash=?),?))`,
			hash, size, now, hash, now)
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE file_cache SET accessed_at=? WHERE hash=?`, now, hash)
	return err
}

func (r *Repo) CacheRemove(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM file_cache WHERE hash=?`, hash)
	return err
}

func (r *Repo) CacheTotalBytes(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(bytes),0) FROM file_cache`)
	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// CacheOldest returns cached file hashes ordered least-recently-accessed first.
func (r *Repo) CacheOldest(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT hash FROM file_cache ORDER BY accessed_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
