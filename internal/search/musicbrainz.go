package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MusicBrainz search types.
const (
	MBRecording = "recording"
	MBArtist    = "artist"
)

const mbUserAgent = "TuneForge/1.0 (https://github.com/imnotfancy/TuneForge-sub000)"

// MusicBrainzSearcher queries the public MusicBrainz ws/2 API. No
// credentials are needed, only a descriptive User-Agent.
type MusicBrainzSearcher struct {
	client  *http.Client
	baseURL string
}

func NewMusicBrainzSearcher(baseURL string) *MusicBrainzSearcher {
	return &MusicBrainzSearcher{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Search runs a recording or artist lucene query. Artist hits carry no
// title; they are offered so the client can refine by artist name.
func (m *MusicBrainzSearcher) Search(ctx context.Context, query, searchType string) ([]SongSuggestion, error) {
	if searchType != MBRecording && searchType != MBArtist {
		return nil, fmt.Errorf("unsupported musicbrainz search type %q", searchType)
	}

	u := fmt.Sprintf("%s/ws/2/%s?query=%s&fmt=json&limit=10",
		m.baseURL, searchType, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", mbUserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("musicbrainz request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("musicbrainz: %w", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("musicbrainz returned %d: %s", resp.StatusCode, body)
	}

	if searchType == MBArtist {
		return decodeArtists(resp.Body)
	}
	return decodeRecordings(resp.Body)
}

func decodeRecordings(r io.Reader) ([]SongSuggestion, error) {
	var result struct {
		Recordings []struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			Score        int    `json:"score"`
			ISRCs        []string `json:"isrcs"`
			ArtistCredit []struct {
				Name string `json:"name"`
			} `json:"artist-credit"`
			Releases []struct {
				Title string `json:"title"`
			} `json:"releases"`
		} `json:"recordings"`
	}
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode musicbrainz recordings: %w", err)
	}

	suggestions := make([]SongSuggestion, 0, len(result.Recordings))
	for _, rec := range result.Recordings {
		s := SongSuggestion{
			ID:         rec.ID,
			Title:      rec.Title,
			Confidence: float64(rec.Score) / 100,
			Source:     SourceMusicBrainz,
		}
		names := make([]string, 0, len(rec.ArtistCredit))
		for _, ac := range rec.ArtistCredit {
			names = append(names, ac.Name)
		}
		s.Artist = strings.Join(names, ", ")
		if len(rec.Releases) > 0 {
			s.Album = rec.Releases[0].Title
		}
		if len(rec.ISRCs) > 0 {
			s.ISRC = rec.ISRCs[0]
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

func decodeArtists(r io.Reader) ([]SongSuggestion, error) {
	var result struct {
		Artists []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Score int    `json:"score"`
		} `json:"artists"`
	}
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode musicbrainz artists: %w", err)
	}

	suggestions := make([]SongSuggestion, 0, len(result.Artists))
	for _, a := range result.Artists {
		suggestions = append(suggestions, SongSuggestion{
			ID:         a.ID,
			Artist:     a.Name,
			Confidence: float64(a.Score) / 100,
			Source:     SourceMusicBrainz,
		})
	}
	return suggestions, nil
}
