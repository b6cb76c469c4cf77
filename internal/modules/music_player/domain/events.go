package domain

import (
	"github.com/disgoorg/snowflake/v2"
)

// EventKind identifies a player lifecycle notification.
type EventKind int

const (
	EventError         EventKind = iota // Err is set
	EventIdle                           // playback stopped, no payload
	EventPlaying                        // Track started streaming
	EventPaused                         // Track paused
	EventUnpaused                       // Track resumed
	EventSongAdded                      // Track enqueued
	EventPlaylistAdded                  // Tracks enqueued from a playlist
	EventShuffled                       // Queue holds the new order
	EventSkipped                        // Track was skipped
	EventStopped                        // Track playback was stopped
	EventPrevious                       // Track was playing, NewTrack restored from history
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventError:
		return "error"
	case EventIdle:
		return "idle"
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventUnpaused:
		return "unpaused"
	case EventSongAdded:
		return "song_added"
	case EventPlaylistAdded:
		return "playlist_added"
	case EventShuffled:
		return "shuffled"
	case EventSkipped:
		return "skipped"
	case EventStopped:
		return "stopped"
	case EventPrevious:
		return "previous"
	}
	return "unknown"
}

// Event is a notification published by the player while it is alive.
// Only the payload fields relevant to the kind are set.
type Event struct {
	Kind    EventKind
	GuildID snowflake.ID

	Track    *Track   // current track for kinds that carry one
	NewTrack *Track   // EventPrevious: the restored track about to play
	Tracks   []*Track // EventPlaylistAdded: the inserted tracks
	Queue    []*Track // EventShuffled: queue snapshot after the shuffle
	Err      error    // EventError
}
