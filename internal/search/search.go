// Package search turns free-form queries into candidate songs. Three
// adapters feed the same suggestion shape: an LLM gateway for text and
// lyric queries, ACRCloud for hum and sung-melody matching, and
// MusicBrainz for structured catalog lookups. Suggestions are hints for
// a human to pick from; selecting one starts a normal job.
package search

import "errors"

// Suggestion sources.
const (
	SourceLLM         = "llm"
	SourceACRCloud    = "acrcloud"
	SourceMusicBrainz = "musicbrainz"
)

// ErrNotConfigured is returned by adapters missing their credentials.
var ErrNotConfigured = errors.New("search adapter is not configured")

// ErrRateLimited is returned when the upstream service answers 429.
var ErrRateLimited = errors.New("search provider rate limit exhausted")

// SongSuggestion is one candidate track for the client to select.
type SongSuggestion struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	Album        string  `json:"album,omitempty"`
	AlbumArt     string  `json:"album_art,omitempty"`
	ISRC         string  `json:"isrc,omitempty"`
	Confidence   float64 `json:"confidence"`
	Source       string  `json:"source"`
	SpotifyID    string  `json:"spotify_id,omitempty"`
	AppleMusicID string  `json:"apple_music_id,omitempty"`
}
