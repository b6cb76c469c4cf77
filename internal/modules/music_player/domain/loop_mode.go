package domain

// LoopMode represents the loop mode for queue playback.
type LoopMode int

const (
	LoopDisabled LoopMode = iota // Default: no looping
	LoopSong                     // Reinsert the finished track at the queue front
	LoopQueue                    // Append the finished track to the queue back
)

// Cycle advances to the next loop mode, wrapping Queue -> Disabled.
func (m LoopMode) Cycle() LoopMode {
	switch m {
	case LoopDisabled:
		return LoopSong
	case LoopSong:
		return LoopQueue
	default:
		return LoopDisabled
	}
}

// String returns a human-readable representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopSong:
		return "song"
	case LoopQueue:
		return "queue"
	default:
		return "disabled"
	}
}

// ParseLoopMode converts a string to a LoopMode.
func ParseLoopMode(s string) LoopMode {
	switch s {
	case "song":
		return LoopSong
	case "queue":
		return LoopQueue
	default:
		return LoopDisabled
	}
}
