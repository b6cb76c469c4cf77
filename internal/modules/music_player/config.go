package music_player

// Config holds the music player module configuration.
type Config struct {
	LavalinkAddress  string `env:"LAVALINK_ADDRESS,notEmpty"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD,notEmpty"`
	YtdlpPath        string `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	HistorySize      int    `env:"HISTORY_SIZE" envDefault:"10"`
	FetchConcurrency int    `env:"FETCH_CONCURRENCY" envDefault:"4"`
}
