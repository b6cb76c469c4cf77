package domain

import (
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// PlaylistMembership records the playlist a track was added from.
// Fields come from the per-track metadata when present, otherwise
// they are backfilled from the playlist's own metadata.
type PlaylistMembership struct {
	ID         string
	Title      string
	Uploader   string
	ChannelID  string
	URL        string
	TrackCount int
}

// Track is an immutable metadata snapshot for a single playable item.
// The only field the player mutates after construction is StartedAt,
// which is set when the audio sink begins streaming the track.
type Track struct {
	ID          string
	Title       string
	Thumbnail   string
	Description string
	Duration    int // seconds, 0 for live streams
	ViewCount   int64
	LikeCount   int64
	AgeLimit    int
	PlaybackURL string // canonical URL handed to the audio sink
	ChannelID   string
	ChannelURL  string
	UploaderID  string
	UploaderURL string
	UploadedAt  time.Time
	Playlist    *PlaylistMembership

	RequesterID   snowflake.ID // Discord user who added the track
	RequesterName string       // Display name of the requester
	EnqueuedAt    time.Time

	StartedAt time.Time // zero until playback starts; owned by the player
}

// IsValid returns true if the track has the minimum required fields.
func (t *Track) IsValid() bool {
	return t.ID != "" && t.PlaybackURL != ""
}

// MarkStarted records the playback start time.
func (t *Track) MarkStarted(now time.Time) {
	t.StartedAt = now
}

// HasStarted returns true if the track has ever been streamed.
func (t *Track) HasStarted() bool {
	return !t.StartedAt.IsZero()
}

// ElapsedSeconds returns the whole seconds elapsed between the playback
// start and now. Returns 0 if the track was never started.
func (t *Track) ElapsedSeconds(now time.Time) int {
	if !t.HasStarted() || now.Before(t.StartedAt) {
		return 0
	}
	return int(now.Sub(t.StartedAt).Seconds())
}

// ElapsedString returns the elapsed playback time formatted as mm:ss.
func (t *Track) ElapsedString(now time.Time) string {
	total := t.ElapsedSeconds(now)
	return formatTimeShort(total/60, total%60)
}

// FormattedDuration returns the duration as a human-readable string
// (mm:ss or hh:mm:ss). Live streams have no duration.
func (t *Track) FormattedDuration() string {
	if t.Duration <= 0 {
		return "LIVE"
	}

	hours := t.Duration / 3600
	minutes := (t.Duration % 3600) / 60
	seconds := t.Duration % 60

	if hours > 0 {
		return formatTime(hours, minutes, seconds)
	}
	return formatTimeShort(minutes, seconds)
}

func formatTime(hours, minutes, seconds int) string {
	return pad(hours) + ":" + pad(minutes) + ":" + pad(seconds)
}

func formatTimeShort(minutes, seconds int) string {
	return pad(minutes) + ":" + pad(seconds)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
