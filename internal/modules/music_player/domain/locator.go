package domain

import (
	"net/url"
	"strings"
)

// LocatorKind classifies user input before the metadata provider is invoked.
type LocatorKind int

const (
	LocatorSearch      LocatorKind = iota // free-text search term
	LocatorTrackURL                       // URL for a single item
	LocatorPlaylistURL                    // URL carrying a playlist-identifying query parameter
)

// playlistParam is the query parameter that marks a URL as a playlist.
const playlistParam = "list"

// Locator is a classified user input: a playlist URL, a plain URL,
// or a free-text search term.
type Locator struct {
	Raw  string
	Kind LocatorKind
}

// ParseLocator classifies the given input.
func ParseLocator(input string) Locator {
	input = strings.TrimSpace(input)

	if !isURL(input) {
		return Locator{Raw: input, Kind: LocatorSearch}
	}

	kind := LocatorTrackURL
	if u, err := url.Parse(input); err == nil && u.Query().Get(playlistParam) != "" {
		kind = LocatorPlaylistURL
	}
	return Locator{Raw: input, Kind: kind}
}

// IsValid returns true if the locator is not empty.
func (l Locator) IsValid() bool {
	return l.Raw != ""
}

// ProviderQuery returns the string handed to the metadata provider.
// URLs pass through unchanged; search terms resolve to the provider's
// first match via the ytsearch prefix.
func (l Locator) ProviderQuery() string {
	if l.Kind == LocatorSearch {
		return "ytsearch1:" + l.Raw
	}
	return l.Raw
}

// isURL checks if the input looks like a URL.
func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") ||
		strings.HasPrefix(input, "https://") ||
		strings.HasPrefix(input, "www.")
}
