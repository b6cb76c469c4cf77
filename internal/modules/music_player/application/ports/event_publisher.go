package ports

import "github.com/otoha-bot/otoha/internal/modules/music_player/domain"

// EventPublisher defines the interface for publishing player lifecycle events.
type EventPublisher interface {
	Publish(event domain.Event)
}
