package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tidalAuthURL = "https://auth.tidal.com/v1/oauth2/token"
	tidalAPIBase = "https://api.tidal.com/v1"
)

// TidalProvider acquires lossless masters from Tidal. Highest priority of
// the three streaming providers.
type TidalProvider struct {
	client       *http.Client
	authURL      string
	apiURL       string
	clientID     string
	clientSecret string
}

// NewTidalProvider creates the Tidal acquisition provider.
func NewTidalProvider(clientID, clientSecret string) *TidalProvider {
	return &TidalProvider{
		client:       &http.Client{Timeout: 60 * time.Second},
		authURL:      tidalAuthURL,
		apiURL:       tidalAPIBase,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (t *TidalProvider) Name() string  { return "tidal" }
func (t *TidalProvider) Priority() int { return 1 }

func (t *TidalProvider) Configured() bool {
	return t.clientID != "" && t.clientSecret != ""
}

func (t *TidalProvider) Configure(creds Credentials) {
	if creds.APIKey != "" {
		t.clientID = creds.APIKey
	}
	if creds.APISecret != "" {
		t.clientSecret = creds.APISecret
	}
}

type tidalTrack struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	ISRC         string `json:"isrc"`
	AudioQuality string `json:"audioQuality"`
	Duration     int    `json:"duration"`
	Album        struct {
		Title string `json:"title"`
		Cover string `json:"cover"`
	} `json:"album"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

// SearchByISRC resolves an ISRC to a Tidal track ID. Requires credentials;
// Tidal has no public no-auth search path.
func (t *TidalProvider) SearchByISRC(ctx context.Context, isrc string) (string, error) {
	if !t.Configured() {
		return "", ErrNotConfigured
	}

	token, err := t.accessToken(ctx)
	if err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s/tracks/isrc/%s?countryCode=US", t.apiURL, url.PathEscape(isrc))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tidal search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: tidal has no track for ISRC %s", ErrTrackNotFound, isrc)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tidal returned status %d", resp.StatusCode)
	}

	var result struct {
		Items []tidalTrack `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode search result: %w", err)
	}
	if len(result.Items) == 0 {
		return "", fmt.Errorf("%w: tidal has no track for ISRC %s", ErrTrackNotFound, isrc)
	}
	return fmt.Sprintf("%d", result.Items[0].ID), nil
}

// GetTrackInfo fetches track metadata by Tidal ID.
func (t *TidalProvider) GetTrackInfo(ctx context.Context, trackID string) (*TrackInfo, error) {
	if !t.Configured() {
		return nil, ErrNotConfigured
	}

	token, err := t.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/tracks/%s?countryCode=US", t.apiURL, url.PathEscape(trackID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tidal track lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: tidal track %s", ErrTrackNotFound, trackID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to get track info: HTTP %d - %s", resp.StatusCode, string(body))
	}

	var track tidalTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, fmt.Errorf("failed to decode track info: %w", err)
	}

	var artists []string
	for _, a := range track.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}

	return &TrackInfo{
		ID:       fmt.Sprintf("%d", track.ID),
		Title:    track.Title,
		Artist:   strings.Join(artists, ", "),
		Album:    track.Album.Title,
		ISRC:     track.ISRC,
		Duration: track.Duration,
		Quality:  track.AudioQuality,
		CoverURL: tidalCoverURL(track.Album.Cover),
	}, nil
}

// DownloadTrack streams the lossless file for a track to outputPath.
func (t *TidalProvider) DownloadTrack(ctx context.Context, trackID, outputPath string) (*DownloadResult, error) {
	if !t.Configured() {
		return nil, ErrNotConfigured
	}

	token, err := t.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/tracks/%s/playbackinfopostpaywall?audioquality=LOSSLESS&playbackmode=STREAM&assetpresentation=FULL",
		t.apiURL, url.PathEscape(trackID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tidal playback info failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("playback info returned status %d", resp.StatusCode)
	}

	var playback struct {
		ManifestMimeType string   `json:"manifestMimeType"`
		Manifest         string   `json:"manifest"`
		AudioQuality     string   `json:"audioQuality"`
		URLs             []string `json:"urls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&playback); err != nil {
		return nil, fmt.Errorf("failed to decode playback info: %w", err)
	}
	if len(playback.URLs) == 0 {
		return nil, fmt.Errorf("no download URL in playback info")
	}

	if err := downloadToFile(ctx, t.client, playback.URLs[0], outputPath); err != nil {
		return nil, err
	}

	quality := playback.AudioQuality
	if quality == "" {
		quality = "LOSSLESS"
	}
	return &DownloadResult{
		Path:    outputPath,
		Format:  "FLAC",
		Quality: quality,
		Service: t.Name(),
	}, nil
}

func (t *TidalProvider) accessToken(ctx context.Context) (string, error) {
	form := "client_id=" + url.QueryEscape(t.clientID) + "&grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.authURL, strings.NewReader(form))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(t.clientID, t.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get access token: HTTP %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.AccessToken, nil
}

func tidalCoverURL(coverID string) string {
	if coverID == "" {
		return ""
	}
	return fmt.Sprintf("https://resources.tidal.com/images/%s/1280x1280.jpg",
		strings.ReplaceAll(coverID, "-", "/"))
}

// downloadToFile streams a URL to disk, creating parent directories.
func downloadToFile(ctx context.Context, client *http.Client, srcURL, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("directory error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
