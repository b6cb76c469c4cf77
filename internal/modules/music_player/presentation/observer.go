package presentation

import (
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/otoha-bot/otoha/internal/modules/music_player/application/events"
	"github.com/otoha-bot/otoha/internal/modules/music_player/application/ports"
	"github.com/otoha-bot/otoha/internal/modules/music_player/domain"
)

// nowPlayingMessage identifies a posted "Now Playing" message.
type nowPlayingMessage struct {
	channelID snowflake.ID
	messageID snowflake.ID
}

// NotificationObserver subscribes to player events and keeps exactly one
// "Now Playing" message per guild in the notification channel.
type NotificationObserver struct {
	repo     domain.PlayerStateRepository
	notifier ports.NotificationSender

	mu       sync.Mutex
	messages map[snowflake.ID]nowPlayingMessage
}

// NewNotificationObserver creates a new NotificationObserver.
func NewNotificationObserver(
	repo domain.PlayerStateRepository,
	notifier ports.NotificationSender,
) *NotificationObserver {
	return &NotificationObserver{
		repo:     repo,
		notifier: notifier,
		messages: make(map[snowflake.ID]nowPlayingMessage),
	}
}

// Start registers the observer's handlers on the bus.
func (o *NotificationObserver) Start(bus *events.Bus) {
	bus.Subscribe(domain.EventPlaying, o.handlePlaying)
	bus.Subscribe(domain.EventIdle, o.handleIdle)
	bus.Subscribe(domain.EventError, o.handleError)

	slog.Debug("notification observer started")
}

func (o *NotificationObserver) handlePlaying(event domain.Event) {
	channelID := o.notificationChannel(event.GuildID)
	if channelID == 0 || event.Track == nil {
		return
	}

	o.deleteMessage(event.GuildID)

	messageID, err := o.notifier.SendNowPlaying(channelID, event.Track)
	if err != nil {
		slog.Error("failed to send now playing notification",
			"guild", event.GuildID,
			"error", err,
		)
		return
	}

	o.mu.Lock()
	o.messages[event.GuildID] = nowPlayingMessage{
		channelID: channelID,
		messageID: messageID,
	}
	o.mu.Unlock()
}

func (o *NotificationObserver) handleIdle(event domain.Event) {
	o.deleteMessage(event.GuildID)
}

func (o *NotificationObserver) handleError(event domain.Event) {
	channelID := o.notificationChannel(event.GuildID)
	if channelID == 0 || event.Err == nil {
		return
	}

	if err := o.notifier.SendError(channelID, event.Err.Error()); err != nil {
		slog.Warn("failed to send error notification",
			"guild", event.GuildID,
			"error", err,
		)
	}
}

func (o *NotificationObserver) notificationChannel(guildID snowflake.ID) snowflake.ID {
	state := o.repo.Get(guildID)
	if state == nil {
		return 0
	}
	return state.NotificationChannelID()
}

func (o *NotificationObserver) deleteMessage(guildID snowflake.ID) {
	o.mu.Lock()
	msg, ok := o.messages[guildID]
	if ok {
		delete(o.messages, guildID)
	}
	o.mu.Unlock()

	if !ok {
		return
	}

	if err := o.notifier.DeleteMessage(msg.channelID, msg.messageID); err != nil {
		slog.Warn("failed to delete now playing message",
			"guild", guildID,
			"error", err,
		)
	}
}
