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

const deezerMediaAPIBase = "https://api.deezmate.com/v1"

// DeezerProvider acquires masters from Deezer. Its catalog search is a
// public no-auth API, so an unconfigured instance can still resolve track
// IDs; downloading requires an ARL cookie.
type DeezerProvider struct {
	client   *http.Client
	apiURL   string
	mediaURL string
	arl      string
}

// NewDeezerProvider creates the Deezer acquisition provider.
func NewDeezerProvider(arl string) *DeezerProvider {
	return &DeezerProvider{
		client:   &http.Client{Timeout: 60 * time.Second},
		apiURL:   deezerAPIBase,
		mediaURL: deezerMediaAPIBase,
		arl:      arl,
	}
}

func (d *DeezerProvider) Name() string  { return "deezer" }
func (d *DeezerProvider) Priority() int { return 2 }

func (d *DeezerProvider) Configured() bool {
	return d.arl != ""
}

func (d *DeezerProvider) Configure(creds Credentials) {
	if creds.APIKey != "" {
		d.arl = creds.APIKey
	}
}

// SearchByISRC resolves an ISRC through Deezer's public catalog.
func (d *DeezerProvider) SearchByISRC(ctx context.Context, isrc string) (string, error) {
	reqURL := fmt.Sprintf("%s/track/isrc:%s", d.apiURL, url.PathEscape(isrc))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deezer search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deezer returned status %d", resp.StatusCode)
	}

	var track deezerTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return "", fmt.Errorf("failed to decode search result: %w", err)
	}
	if track.Error != nil || track.ID == 0 {
		return "", fmt.Errorf("%w: deezer has no track for ISRC %s", ErrTrackNotFound, isrc)
	}
	return fmt.Sprintf("%d", track.ID), nil
}

// GetTrackInfo fetches metadata for a Deezer track ID (public API).
func (d *DeezerProvider) GetTrackInfo(ctx context.Context, trackID string) (*TrackInfo, error) {
	reqURL := fmt.Sprintf("%s/track/%s", d.apiURL, url.PathEscape(trackID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deezer track lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deezer returned status %d", resp.StatusCode)
	}

	var track deezerTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}
	if track.Error != nil || track.ID == 0 {
		return nil, fmt.Errorf("%w: deezer track %s", ErrTrackNotFound, trackID)
	}

	return &TrackInfo{
		ID:       fmt.Sprintf("%d", track.ID),
		Title:    track.Title,
		Artist:   track.Artist.Name,
		Album:    track.Album.Title,
		ISRC:     track.ISRC,
		Duration: track.Duration,
		CoverURL: track.Album.CoverXL,
	}, nil
}

// DownloadTrack fetches the FLAC stream URL from the media API and saves
// the file to outputPath.
func (d *DeezerProvider) DownloadTrack(ctx context.Context, trackID, outputPath string) (*DownloadResult, error) {
	if !d.Configured() {
		return nil, ErrNotConfigured
	}

	reqURL := fmt.Sprintf("%s/track/%s?format=flac", d.mediaURL, url.PathEscape(trackID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Cookie", "arl="+d.arl)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deezer media request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media API returned status %d", resp.StatusCode)
	}

	var media struct {
		Success bool `json:"success"`
		Links   struct {
			FLAC string `json:"flac"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return nil, fmt.Errorf("failed to decode media response: %w", err)
	}
	if !media.Success || media.Links.FLAC == "" {
		return nil, fmt.Errorf("no FLAC link for track %s", trackID)
	}

	if err := downloadToFile(ctx, d.client, media.Links.FLAC, outputPath); err != nil {
		return nil, err
	}

	format := "FLAC"
	if !strings.Contains(strings.ToLower(media.Links.FLAC), "flac") {
		format = "MP3"
	}
	return &DownloadResult{
		Path:    outputPath,
		Format:  format,
		Quality: "LOSSLESS",
		Service: d.Name(),
	}, nil
}
