package bot

import "github.com/bwmarrin/discordgo"

// InteractionHandler handles a slash-command interaction. Responses go
// through the Responder so the handler can be tested without a session.
type InteractionHandler func(s *discordgo.Session, i *discordgo.InteractionCreate, r Responder) error

// EventHandler is a gateway event handler in one of discordgo's handler
// shapes, e.g. func(s *discordgo.Session, e *discordgo.VoiceStateUpdate).
// Handlers are passed straight to session.AddHandler.
type EventHandler any

// ModuleDependencies provides dependencies that modules may need during
// initialization. Session is the open gateway connection; it is nil only
// when a module is loaded without connecting (sessionless setups).
type ModuleDependencies struct {
	Session *discordgo.Session
}

// Module defines the interface that all bot modules must implement.
// Modules self-register from their package init (see
// internal/modules/music_player).
type Module interface {
	// Name returns the unique identifier for this module.
	Name() string

	// Commands returns the slash commands that this module provides.
	Commands() []*discordgo.ApplicationCommand

	// CommandHandlers returns a map of command names to their handlers.
	CommandHandlers() map[string]InteractionHandler

	// EventHandlers returns the gateway event handlers for this module.
	EventHandlers() []EventHandler

	// Init initializes the module with the provided dependencies. It runs
	// after the gateway connection is open.
	Init(deps ModuleDependencies) error

	// Shutdown gracefully shuts down the module.
	Shutdown() error
}

// ConfigurableModule is an optional interface for modules that need
// configuration. LoadConfig runs before the Discord connection is opened
// and before Init, so a misconfigured module fails fast.
type ConfigurableModule interface {
	// LoadConfig loads and validates module-specific configuration.
	// Should return an error if required configuration is missing or invalid.
	LoadConfig() error
}
