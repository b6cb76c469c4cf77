package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// SinkStatus is a coarse playback status reported by the audio sink.
type SinkStatus int

const (
	SinkIdle SinkStatus = iota
	SinkPlaying
	SinkPaused
	SinkBuffering
	SinkError
)

// String returns the status name used in logs.
func (s SinkStatus) String() string {
	switch s {
	case SinkPlaying:
		return "playing"
	case SinkPaused:
		return "paused"
	case SinkBuffering:
		return "buffering"
	case SinkError:
		return "error"
	default:
		return "idle"
	}
}

// SinkStatusHandler receives asynchronous status transitions from the sink.
// err is non-nil only for SinkError.
type SinkStatusHandler func(guildID snowflake.ID, status SinkStatus, err error)

// AudioSink defines the interface for the audio output transport.
// Exactly one stream may be active per guild; starting a new stream tears
// down the previous one. The sink's SinkIdle notification is the only
// source of truth for "this track actually finished".
type AudioSink interface {
	// Open connects the sink to the given voice channel.
	Open(ctx context.Context, guildID, channelID snowflake.ID) error

	// StartStreaming begins streaming the given source URL, replacing any
	// active stream for the guild. The caller never inspects the bytes.
	StartStreaming(ctx context.Context, guildID snowflake.ID, sourceURL string) error

	// Pause suspends streaming. The boolean reports whether the sink state
	// actually changed. The suspended state persists across Stop and
	// StartStreaming until Resume clears it.
	Pause(ctx context.Context, guildID snowflake.ID) (bool, error)

	// Resume continues a suspended stream. The boolean reports whether the
	// sink state actually changed.
	Resume(ctx context.Context, guildID snowflake.ID) (bool, error)

	// Stop ends the active stream without disconnecting.
	Stop(ctx context.Context, guildID snowflake.ID) error

	// Release tears down the guild's connection and stream handle.
	Release(ctx context.Context, guildID snowflake.ID) error

	// OnStatus registers the handler invoked for asynchronous status
	// transitions. Only one handler is supported; later calls replace it.
	OnStatus(handler SinkStatusHandler)
}
