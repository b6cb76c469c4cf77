package usecases

import "errors"

// Domain errors for the music player module.
var (
	// ErrNotConnected is returned when an operation requires the bot to be in a voice channel.
	ErrNotConnected = errors.New("not connected to a voice channel")

	// ErrUserNotInVoice is returned when the user is not in a voice channel.
	ErrUserNotInVoice = errors.New("you must be in a voice channel")

	// ErrNotPlaying is returned when no track is currently playing.
	ErrNotPlaying = errors.New("nothing is currently playing")

	// ErrQueueEmpty is returned when the queue is empty.
	ErrQueueEmpty = errors.New("the queue is empty")

	// ErrEmptyQuery is returned when the locator is blank.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrNoResults is returned when a search or playlist yields no playable tracks.
	ErrNoResults = errors.New("no results found")

	// ErrIncompleteMetadata is returned when the provider resolves an item
	// without the fields required for playback.
	ErrIncompleteMetadata = errors.New("metadata is missing required fields")

	// ErrInvalidSkipPosition is returned when a skip position falls outside
	// [1, queue length - 1].
	ErrInvalidSkipPosition = errors.New("invalid skip position")

	// ErrNoHistory is returned by Previous when no completed track is available.
	ErrNoHistory = errors.New("no previously played track available")
)
