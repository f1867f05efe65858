package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	spotifyAuthURL = "https://accounts.spotify.com/api/token"
	spotifyAPIBase = "https://api.spotify.com/v1"
)

// SpotifyLookup resolves a Spotify track ID to canonical metadata using the
// client-credentials flow.
type SpotifyLookup struct {
	client       *http.Client
	authURL      string
	apiURL       string
	clientID     string
	clientSecret string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewSpotifyLookup creates the Spotify-ID identifier. Both credentials must
// be present for the provider to resolve anything.
func NewSpotifyLookup(clientID, clientSecret string) *SpotifyLookup {
	return &SpotifyLookup{
		client:       &http.Client{Timeout: 30 * time.Second},
		authURL:      spotifyAuthURL,
		apiURL:       spotifyAPIBase,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (s *SpotifyLookup) Name() string { return "spotify" }

func (s *SpotifyLookup) Supports(sourceType string) bool {
	return sourceType == "spotify_id"
}

type spotifyTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
}

// Identify looks up a track by its Spotify ID.
func (s *SpotifyLookup) Identify(ctx context.Context, sourceType, sourceValue string) (*Identification, error) {
	if s.clientID == "" || s.clientSecret == "" {
		return nil, ErrNotConfigured
	}

	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/tracks/%s", s.apiURL, url.PathEscape(sourceValue))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: spotify has no track %s", ErrTrackNotFound, sourceValue)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify returned status %d", resp.StatusCode)
	}

	var track spotifyTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}

	var artists []string
	for _, a := range track.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}
	albumArt := ""
	if len(track.Album.Images) > 0 {
		albumArt = track.Album.Images[0].URL
	}

	return &Identification{
		Title:            track.Name,
		Artist:           strings.Join(artists, ", "),
		Album:            track.Album.Name,
		AlbumArt:         albumArt,
		Duration:         track.DurationMS / 1000,
		ISRC:             track.ExternalIDs.ISRC,
		SpotifyID:        track.ID,
		CrossPlatformIDs: map[string]string{},
	}, nil
}

func (s *SpotifyLookup) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Now().Before(s.tokenExpiry) {
		return s.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get access token: HTTP %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}

	s.accessToken = result.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn-60) * time.Second)
	return s.accessToken, nil
}
