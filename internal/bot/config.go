package bot

import (
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the bot-wide configuration loaded from environment
// variables. Module-specific settings live on each module's own Config
// and are loaded through ConfigurableModule.
type Config struct {
	// DiscordToken authenticates the gateway session.
	DiscordToken string `env:"DISCORD_TOKEN,notEmpty"`

	// CommandGuildID scopes slash-command registration to one guild.
	// Guild commands propagate immediately, which helps during
	// development; when empty, commands are registered globally.
	CommandGuildID string `env:"COMMAND_GUILD_ID"`

	// LogLevel is the minimum log level: debug, info, warn or error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig loads configuration from environment variables.
// Returns an error if required fields are missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SlogLevel maps the configured LogLevel to a slog.Level.
// Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
