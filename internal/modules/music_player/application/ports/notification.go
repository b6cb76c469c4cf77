package ports

import (
	"github.com/disgoorg/snowflake/v2"
	"github.com/otoha-bot/otoha/internal/modules/music_player/domain"
)

// NotificationSender defines the interface for posting player
// notifications to Discord channels.
type NotificationSender interface {
	// SendNowPlaying posts a "Now Playing" embed and returns the message ID.
	SendNowPlaying(channelID snowflake.ID, track *domain.Track) (snowflake.ID, error)

	// SendError posts an error embed.
	SendError(channelID snowflake.ID, message string) error

	// DeleteMessage deletes a previously posted message.
	DeleteMessage(channelID, messageID snowflake.ID) error
}
