package config

type Config struct {
	DiscordToken          string
	SpotifyClientID       string
	SpotifyClientSecret   string
	DataDir               string
	CacheDir              string
	CacheLimitBytes       int64
	SaveDownloads         bool   // keep downloaded media out of the eviction sweep
	BotStatus             string // online/dnd/idle
	BotActivity           string
	RegisterCommandsOnBot bool
	YouTubeCookiesPath    string
	YouTubePOToken        string
}
