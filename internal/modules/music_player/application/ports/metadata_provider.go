package ports

import (
	"context"
	"time"
)

// TrackMetadata is the raw metadata the provider extracts for one item.
type TrackMetadata struct {
	ID          string
	Title       string
	Thumbnail   string
	Description string
	Duration    int // seconds, 0 for live streams
	ViewCount   int64
	LikeCount   int64
	AgeLimit    int
	PlaybackURL string
	ChannelID   string
	ChannelURL  string
	UploaderID  string
	UploaderURL string
	UploadedAt  time.Time

	// Playlist-membership fields, set when the item was extracted as part
	// of a playlist. Empty values are backfilled from PlaylistMetadata.
	PlaylistID       string
	PlaylistTitle    string
	PlaylistUploader string
	PlaylistChannel  string
	PlaylistURL      string
	PlaylistCount    int
}

// PlaylistEntry is a lightweight member reference from a flat playlist
// extraction. Full metadata is fetched per entry afterwards.
type PlaylistEntry struct {
	ID    string
	URL   string
	Title string
}

// PlaylistMetadata describes a playlist and its member references.
type PlaylistMetadata struct {
	ID         string
	Title      string
	Uploader   string
	ChannelID  string
	WebpageURL string
	TrackCount int
	Entries    []PlaylistEntry
}

// MetadataProvider defines the interface for the external metadata
// extraction tool. Queries are either URLs or search expressions
// produced by domain.Locator.ProviderQuery.
type MetadataProvider interface {
	// FetchTrack extracts metadata for a single item. Search expressions
	// resolve to exactly the provider's first match.
	FetchTrack(ctx context.Context, query string) (*TrackMetadata, error)

	// FetchPlaylist enumerates a playlist without resolving its members.
	FetchPlaylist(ctx context.Context, url string) (*PlaylistMetadata, error)
}

// ProviderError wraps a metadata extraction failure with the locator
// that caused it.
type ProviderError struct {
	Locator string
	Err     error
}

func (e *ProviderError) Error() string {
	return "metadata fetch failed for " + e.Locator + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
