// Package store persists the podcast and episode inverted indexes in
// SQLite FTS5 and answers multi-tier text queries against them.
// This is the persistence layer for all indexed data.
package store

// DefaultMaxFieldLength bounds the description portion of an episode
// search blob, in runes.
const DefaultMaxFieldLength = 4096

// DefaultMaxTitleLength bounds the stored episode title, in runes, after
// HTML stripping.
const DefaultMaxTitleLength = 512

// CurrentSchemaVersion is the index schema version.
const CurrentSchemaVersion = 1

// PodcastDoc is the input for podcast writes. Title and Description may
// carry raw markup; the store cleans them before persisting.
type PodcastDoc struct {
	PodcastID   string
	Title       string
	Description string
}

// EpisodeDoc is the input for episode writes. The store derives the
// search blob from Description, Title, PubDate, and AudioURL; only the
// cleaned title is kept for display.
type EpisodeDoc struct {
	EpisodeID   string
	PodcastID   string
	Title       string
	Description string
	PubDate     string
	AudioURL    string
}

// IndexedEpisode is the stored per-episode record returned by point lookups.
type IndexedEpisode struct {
	EpisodeID string
	PodcastID string
	Title     string
}

// PodcastHit is a podcast search result.
type PodcastHit struct {
	PodcastID   string
	Title       string
	Description string
}

// EpisodeHit is an episode search result.
type EpisodeHit struct {
	EpisodeID string
	PodcastID string
	Title     string
}
