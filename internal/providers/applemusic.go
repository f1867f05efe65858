package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const itunesLookupURL = "https://itunes.apple.com/lookup"

// AppleMusicLookup resolves an Apple Music track ID through the public
// iTunes lookup API, which needs no credentials.
type AppleMusicLookup struct {
	client  *http.Client
	baseURL string
}

// NewAppleMusicLookup creates the Apple-Music-ID identifier.
func NewAppleMusicLookup() *AppleMusicLookup {
	return &AppleMusicLookup{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: itunesLookupURL,
	}
}

func (a *AppleMusicLookup) Name() string { return "apple_music" }

func (a *AppleMusicLookup) Supports(sourceType string) bool {
	return sourceType == "apple_music_id"
}

type itunesLookupResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		TrackID         int64  `json:"trackId"`
		TrackName       string `json:"trackName"`
		ArtistName      string `json:"artistName"`
		CollectionName  string `json:"collectionName"`
		ArtworkURL100   string `json:"artworkUrl100"`
		TrackTimeMillis int    `json:"trackTimeMillis"`
	} `json:"results"`
}

// Identify looks up a track by Apple Music / iTunes ID.
func (a *AppleMusicLookup) Identify(ctx context.Context, sourceType, sourceValue string) (*Identification, error) {
	reqURL := fmt.Sprintf("%s?id=%s&entity=song", a.baseURL, url.QueryEscape(sourceValue))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("itunes request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("itunes returned status %d", resp.StatusCode)
	}

	var lookup itunesLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return nil, fmt.Errorf("failed to decode lookup: %w", err)
	}
	if lookup.ResultCount == 0 {
		return nil, fmt.Errorf("%w: itunes has no track %s", ErrTrackNotFound, sourceValue)
	}

	track := lookup.Results[0]

	// The 100px artwork URL scales by rewriting the size segment.
	albumArt := strings.Replace(track.ArtworkURL100, "100x100", "1200x1200", 1)

	return &Identification{
		Title:            track.TrackName,
		Artist:           track.ArtistName,
		Album:            track.CollectionName,
		AlbumArt:         albumArt,
		Duration:         track.TrackTimeMillis / 1000,
		CrossPlatformIDs: map[string]string{"appleMusic": fmt.Sprintf("%d", track.TrackID)},
	}, nil
}
