package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/GiGurra/cmder"
	"github.com/otoha-bot/otoha/internal/modules/music_player/application/ports"
)

const (
	// trackFetchTimeout bounds a single-track metadata extraction.
	trackFetchTimeout = 60 * time.Second
	// playlistFetchTimeout bounds a flat playlist enumeration, which only
	// lists entries and never resolves individual streams.
	playlistFetchTimeout = 120 * time.Second
)

// YtdlpProvider extracts track and playlist metadata by shelling out to
// yt-dlp. Extraction runs with -J, so every invocation yields a single
// JSON document on stdout.
type YtdlpProvider struct {
	path string
}

// NewYtdlpProvider creates a provider using the given yt-dlp executable.
func NewYtdlpProvider(path string) *YtdlpProvider {
	return &YtdlpProvider{path: path}
}

// FetchTrack resolves a URL or search query to a single track's metadata.
func (p *YtdlpProvider) FetchTrack(
	ctx context.Context,
	query string,
) (*ports.TrackMetadata, error) {
	result := cmder.New(p.path, "-J", "--no-playlist", query).
		WithAttemptTimeout(trackFetchTimeout).
		Run(ctx)
	if result.Err != nil {
		slog.Warn("yt-dlp track extraction failed",
			"query", query,
			"error", result.Err,
			"output", result.Combined,
		)
		return nil, &ports.ProviderError{
			Locator: query,
			Err:     fmt.Errorf("yt-dlp extraction failed: %w", result.Err),
		}
	}

	meta, err := parseTrackJSON([]byte(result.StdOut))
	if err != nil {
		return nil, &ports.ProviderError{Locator: query, Err: err}
	}
	return meta, nil
}

// FetchPlaylist enumerates a playlist without resolving its members.
func (p *YtdlpProvider) FetchPlaylist(
	ctx context.Context,
	url string,
) (*ports.PlaylistMetadata, error) {
	result := cmder.New(p.path, "-J", "--flat-playlist", url).
		WithAttemptTimeout(playlistFetchTimeout).
		Run(ctx)
	if result.Err != nil {
		slog.Warn("yt-dlp playlist enumeration failed",
			"url", url,
			"error", result.Err,
			"output", result.Combined,
		)
		return nil, &ports.ProviderError{
			Locator: url,
			Err:     fmt.Errorf("yt-dlp enumeration failed: %w", result.Err),
		}
	}

	meta, err := parsePlaylistJSON([]byte(result.StdOut))
	if err != nil {
		return nil, &ports.ProviderError{Locator: url, Err: err}
	}
	return meta, nil
}

// ytdlpEntry mirrors the subset of yt-dlp's -J output the provider reads.
// Search queries yield a playlist-typed document whose entries carry full
// track metadata; flat playlist enumeration yields stub entries.
type ytdlpEntry struct {
	Type        string       `json:"_type"`
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Thumbnail   string       `json:"thumbnail"`
	Description string       `json:"description"`
	Duration    float64      `json:"duration"`
	ViewCount   int64        `json:"view_count"`
	LikeCount   int64        `json:"like_count"`
	AgeLimit    int          `json:"age_limit"`
	URL         string       `json:"url"`
	WebpageURL  string       `json:"webpage_url"`
	ChannelID   string       `json:"channel_id"`
	ChannelURL  string       `json:"channel_url"`
	Uploader    string       `json:"uploader"`
	UploaderID  string       `json:"uploader_id"`
	UploaderURL string       `json:"uploader_url"`
	UploadDate  string       `json:"upload_date"`
	Playlist    string       `json:"playlist"`
	PlaylistID  string       `json:"playlist_id"`
	Count       int          `json:"playlist_count"`
	Entries     []ytdlpEntry `json:"entries"`
}

func parseTrackJSON(data []byte) (*ports.TrackMetadata, error) {
	var entry ytdlpEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp output: %w", err)
	}

	// Search queries come back wrapped in a one-entry playlist document.
	if entry.Type == "playlist" {
		if len(entry.Entries) == 0 {
			return nil, fmt.Errorf("no results")
		}
		entry = entry.Entries[0]
	}
	if entry.ID == "" {
		return nil, fmt.Errorf("yt-dlp returned no track metadata")
	}

	return entryToTrackMetadata(entry), nil
}

func parsePlaylistJSON(data []byte) (*ports.PlaylistMetadata, error) {
	var doc ytdlpEntry
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp output: %w", err)
	}
	if doc.Type != "playlist" {
		return nil, fmt.Errorf("locator does not resolve to a playlist")
	}
	if len(doc.Entries) == 0 {
		return nil, fmt.Errorf("playlist is empty")
	}

	entries := make([]ports.PlaylistEntry, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		url := entry.URL
		if url == "" {
			url = entry.WebpageURL
		}
		if url == "" {
			slog.Warn("skipping playlist entry without URL", "entry", entry.ID)
			continue
		}
		entries = append(entries, ports.PlaylistEntry{
			ID:    entry.ID,
			URL:   url,
			Title: entry.Title,
		})
	}

	count := doc.Count
	if count == 0 {
		count = len(entries)
	}

	return &ports.PlaylistMetadata{
		ID:         doc.ID,
		Title:      doc.Title,
		Uploader:   doc.Uploader,
		ChannelID:  doc.ChannelID,
		WebpageURL: doc.WebpageURL,
		TrackCount: count,
		Entries:    entries,
	}, nil
}

func entryToTrackMetadata(entry ytdlpEntry) *ports.TrackMetadata {
	meta := &ports.TrackMetadata{
		ID:            entry.ID,
		Title:         entry.Title,
		Thumbnail:     entry.Thumbnail,
		Description:   entry.Description,
		Duration:      int(entry.Duration),
		ViewCount:     entry.ViewCount,
		LikeCount:     entry.LikeCount,
		AgeLimit:      entry.AgeLimit,
		PlaybackURL:   entry.WebpageURL,
		ChannelID:     entry.ChannelID,
		ChannelURL:    entry.ChannelURL,
		UploaderID:    entry.UploaderID,
		UploaderURL:   entry.UploaderURL,
		PlaylistID:    entry.PlaylistID,
		PlaylistTitle: entry.Playlist,
		PlaylistCount: entry.Count,
	}
	if meta.PlaybackURL == "" {
		meta.PlaybackURL = entry.URL
	}

	if entry.UploadDate != "" {
		uploadedAt, err := time.Parse("20060102", entry.UploadDate)
		if err != nil {
			slog.Debug("unparseable upload date",
				"track", entry.ID,
				"value", entry.UploadDate,
			)
		} else {
			meta.UploadedAt = uploadedAt
		}
	}

	return meta
}

var _ ports.MetadataProvider = (*YtdlpProvider)(nil)
