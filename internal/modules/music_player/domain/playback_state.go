package domain

// PlaybackState is the persisted state of a guild's player.
// Transient notifications (skipped, stopped, shuffled, ...) are
// modelled as event kinds, never as playback states.
type PlaybackState int

const (
	StateIdle    PlaybackState = iota // nothing streaming
	StatePlaying                      // the queue front is streaming
	StatePaused                       // streaming suspended, position kept
)

// String returns a human-readable representation of the state.
func (s PlaybackState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}
