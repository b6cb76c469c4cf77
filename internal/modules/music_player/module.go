package music_player

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
	"github.com/otoha-bot/otoha/internal/bot"
	"github.com/otoha-bot/otoha/internal/modules/music_player/application/events"
	"github.com/otoha-bot/otoha/internal/modules/music_player/application/usecases"
	"github.com/otoha-bot/otoha/internal/modules/music_player/infrastructure"
	"github.com/otoha-bot/otoha/internal/modules/music_player/presentation"
)

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var _ bot.ConfigurableModule = (*MusicPlayerModule)(nil)

// MusicPlayerModule provides music playback commands.
type MusicPlayerModule struct {
	config          *Config
	commandHandlers *presentation.CommandHandlers
	eventHandlers   *presentation.EventHandlers
	observer        *presentation.NotificationObserver
	sink            *infrastructure.LavalinkSink
	bus             *events.Bus
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Commands returns the slash commands for this module.
func (m *MusicPlayerModule) Commands() []*discordgo.ApplicationCommand {
	return presentation.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *MusicPlayerModule) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"join":     m.commandHandlers.HandleJoin,
		"leave":    m.commandHandlers.HandleLeave,
		"play":     m.commandHandlers.HandlePlay,
		"pause":    m.commandHandlers.HandlePause,
		"skip":     m.commandHandlers.HandleSkip,
		"stop":     m.commandHandlers.HandleStop,
		"previous": m.commandHandlers.HandlePrevious,
		"shuffle":  m.commandHandlers.HandleShuffle,
		"loop":     m.commandHandlers.HandleLoop,
		"queue":    m.commandHandlers.HandleQueue,
	}
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			m.handleVoiceServerUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.handleVoiceStateUpdate(s, event)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Init initializes the module.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	if deps.Session == nil {
		slog.Warn("music_player module initialized without session, playback disabled")
		return m.initWithoutSession()
	}

	return m.initWithSession(deps)
}

func (m *MusicPlayerModule) initWithoutSession() error {
	// Initialize with nil collaborators. Commands fail at runtime if
	// invoked, but the module can load for tests.
	repo := infrastructure.NewMemoryRepository()
	m.bus = events.NewBus()

	player := usecases.NewPlayerService(repo, nil, nil, m.bus, m.config.FetchConcurrency)
	voiceChannel := usecases.NewVoiceChannelService(repo, nil, nil, m.config.HistorySize)

	m.commandHandlers = presentation.NewCommandHandlers(voiceChannel, player)
	return nil
}

func (m *MusicPlayerModule) initWithSession(deps bot.ModuleDependencies) error {
	sink, err := infrastructure.NewLavalinkSink(deps.Session, infrastructure.LavalinkConfig{
		Address:  m.config.LavalinkAddress,
		Password: m.config.LavalinkPassword,
	})
	if err != nil {
		return err
	}
	m.sink = sink

	repo := infrastructure.NewMemoryRepository()
	provider := infrastructure.NewYtdlpProvider(m.config.YtdlpPath)
	voiceState := infrastructure.NewVoiceStateProvider(deps.Session)
	notifier := infrastructure.NewNotifier(deps.Session)
	m.bus = events.NewBus()

	player := usecases.NewPlayerService(repo, provider, sink, m.bus, m.config.FetchConcurrency)
	voiceChannel := usecases.NewVoiceChannelService(repo, sink, voiceState, m.config.HistorySize)

	// The sink's idle notification drives queue advancement.
	sink.OnStatus(player.HandleSinkStatus)

	m.observer = presentation.NewNotificationObserver(repo, notifier)
	m.observer.Start(m.bus)

	botID, err := snowflake.Parse(deps.Session.State.User.ID)
	if err != nil {
		return err
	}
	m.commandHandlers = presentation.NewCommandHandlers(voiceChannel, player)
	m.eventHandlers = presentation.NewEventHandlers(botID, voiceChannel)

	slog.Info("music_player module initialized",
		"lavalink", m.config.LavalinkAddress,
		"ytdlp", m.config.YtdlpPath,
	)

	return nil
}

// Shutdown cleans up module resources.
func (m *MusicPlayerModule) Shutdown() error {
	if m.sink != nil {
		m.sink.Close()
	}
	return nil
}

// Event handlers.

func (m *MusicPlayerModule) handleVoiceServerUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceServerUpdate,
) {
	if m.sink != nil {
		m.sink.OnVoiceServerUpdate(event)
	}
}

func (m *MusicPlayerModule) handleVoiceStateUpdate(
	s *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if m.sink != nil {
		m.sink.OnVoiceStateUpdate(event)
	}
	if m.eventHandlers != nil {
		m.eventHandlers.HandleVoiceStateUpdate(s, event)
	}
}
