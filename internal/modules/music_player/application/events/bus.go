package events

import (
	"log/slog"
	"sync"

	"github.com/otoha-bot/otoha/internal/modules/music_player/application/ports"
	"github.com/otoha-bot/otoha/internal/modules/music_player/domain"
)

// Compile-time check that Bus implements ports.EventPublisher.
var _ ports.EventPublisher = (*Bus)(nil)

// Handler receives a published event.
type Handler func(event domain.Event)

// Bus is a synchronous typed publish/subscribe channel scoped to one
// player. Publish invokes subscribers in subscription order on the
// publishing goroutine; a panicking subscriber never prevents the
// remaining subscribers from running. There is no persistence or replay.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventKind][]Handler
	all      []Handler
}

// NewBus creates a new empty Bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[domain.EventKind][]Handler),
	}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind domain.EventKind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[kind] = append(b.handlers[kind], handler)
}

// SubscribeAll registers a handler invoked for every event kind,
// after the kind-specific handlers.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.all = append(b.all, handler)
}

// Publish delivers the event to all subscribers synchronously,
// in subscription order.
func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	kindHandlers := b.handlers[event.Kind]
	allHandlers := b.all
	b.mu.RUnlock()

	slog.Debug("publishing event", "type", event.Kind.String(), "guild", event.GuildID)

	for _, handler := range kindHandlers {
		invoke(handler, event)
	}
	for _, handler := range allHandlers {
		invoke(handler, event)
	}
}

// invoke runs one handler, isolating panics so the remaining
// subscribers still run.
func invoke(handler Handler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked",
				"type", event.Kind.String(),
				"guild", event.GuildID,
				"panic", r,
			)
		}
	}()
	handler(event)
}
