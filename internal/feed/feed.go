// Package feed fetches podcast and episode metadata from configured
// RSS/Atom sources. The indexing pipeline consumes already-fetched
// records through the Source interface and never touches the network
// itself.
package feed

import "context"

// Podcast is the raw record a source returns for one show.
type Podcast struct {
	ID          string
	Title       string
	Description string
	FeedURL     string
	ImageURL    string
	Genres      []string
}

// Episode is the raw record a source returns for one episode.
type Episode struct {
	ID          string
	Title       string
	Description string
	AudioURL    string
	PubDate     string
	ImageURL    string
}

// Source provides podcast and episode metadata to the pipeline. A
// failure must surface as an error, never as a silently empty list, so
// the pipeline can tell "nothing to index" apart from "could not fetch".
type Source interface {
	FetchPodcasts(ctx context.Context, forceRefresh bool) ([]*Podcast, error)
	FetchEpisodes(ctx context.Context, p *Podcast) ([]*Episode, error)
}
