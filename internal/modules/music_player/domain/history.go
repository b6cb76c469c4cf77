package domain

// DefaultHistorySize is the history capacity used when none is configured.
const DefaultHistorySize = 10

// History is a bounded record of completed tracks, newest last.
// When capacity is exceeded the oldest entry is evicted first; eviction
// is purely insertion-order based.
type History struct {
	capacity int
	tracks   []*Track
}

// NewHistory creates a History with the given capacity.
// Non-positive capacities fall back to DefaultHistorySize.
func NewHistory(capacity int) History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return History{
		capacity: capacity,
		tracks:   make([]*Track, 0, capacity),
	}
}

// Len returns the number of archived tracks.
func (h *History) Len() int {
	return len(h.tracks)
}

// Cap returns the configured capacity.
func (h *History) Cap() int {
	return h.capacity
}

// Push archives a completed track, evicting the oldest entry when full.
func (h *History) Push(track *Track) {
	if len(h.tracks) >= h.capacity {
		h.tracks = h.tracks[1:]
	}
	h.tracks = append(h.tracks, track)
}

// Pop removes and returns the most recently archived track,
// or nil if the history is empty.
func (h *History) Pop() *Track {
	if len(h.tracks) == 0 {
		return nil
	}
	track := h.tracks[len(h.tracks)-1]
	h.tracks = h.tracks[:len(h.tracks)-1]
	return track
}

// List returns a copy of the archived tracks, oldest first.
func (h *History) List() []*Track {
	result := make([]*Track, len(h.tracks))
	copy(result, h.tracks)
	return result
}
