package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

type Settings struct {
	GuildID               string
	PlaylistLimit         int
	MaxSongsPerUser       int // 0 = unlimited
	SecondsWaitAfterEmpty int
	LeaveIfNoListeners    bool
	AutoAnnounceNext      bool
	DefaultVolume         int // percent, 100 = unity gain
	DefaultQueuePageSize  int
	SkipRatio             int // percent of listeners required to skip
	MaxSkips              int
	AutoplaylistEnabled   bool
}

type AutoplaylistItem struct {
	ID      int64
	GuildID string
	URL     string
	AddedBy string
}
