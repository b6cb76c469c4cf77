package domain

import "math/rand/v2"

// Queue is an ordered sequence of tracks. Insertion order is play order.
// While playback is active the front element is the track the audio sink
// is streaming. The same locator may appear more than once.
type Queue struct {
	tracks []*Track
}

// NewQueue creates a new empty Queue.
func NewQueue() Queue {
	return Queue{
		tracks: make([]*Track, 0),
	}
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Front returns the track at the front of the queue without removing it,
// or nil if the queue is empty.
func (q *Queue) Front() *Track {
	if q.IsEmpty() {
		return nil
	}
	return q.tracks[0]
}

// PopFront removes and returns the front track, or nil if the queue is empty.
func (q *Queue) PopFront() *Track {
	if q.IsEmpty() {
		return nil
	}
	track := q.tracks[0]
	q.tracks = q.tracks[1:]
	return track
}

// PushFront inserts track(s) at the front of the queue, preserving
// their relative order.
func (q *Queue) PushFront(tracks ...*Track) {
	q.tracks = append(tracks, q.tracks...)
}

// Append adds track(s) to the end of the queue.
func (q *Queue) Append(tracks ...*Track) {
	q.tracks = append(q.tracks, tracks...)
}

// DropLeading removes and returns the first n tracks.
// If n exceeds the queue length the whole queue is drained.
func (q *Queue) DropLeading(n int) []*Track {
	if n <= 0 {
		return nil
	}
	if n > q.Len() {
		n = q.Len()
	}
	dropped := make([]*Track, n)
	copy(dropped, q.tracks[:n])
	q.tracks = q.tracks[n:]
	return dropped
}

// List returns a copy of all tracks in play order.
func (q *Queue) List() []*Track {
	result := make([]*Track, q.Len())
	copy(result, q.tracks)
	return result
}

// Upcoming returns a copy of the tracks after the front element.
func (q *Queue) Upcoming() []*Track {
	if q.Len() <= 1 {
		return nil
	}
	result := make([]*Track, q.Len()-1)
	copy(result, q.tracks[1:])
	return result
}

// Shuffle randomizes the queue order with a uniform permutation.
// When holdFront is true the front element stays in place and only
// the remainder is shuffled.
func (q *Queue) Shuffle(holdFront bool) {
	tracks := q.tracks
	if holdFront && len(tracks) > 0 {
		tracks = tracks[1:]
	}
	rand.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}

// Clear removes all tracks from the queue and returns how many were removed.
func (q *Queue) Clear() int {
	count := q.Len()
	q.tracks = make([]*Track, 0)
	return count
}
