package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const qobuzAPIBase = "https://www.qobuz.com/api.json/0.2"

// QobuzProvider acquires hi-res masters from Qobuz. Catalog search works
// with just an app ID; streaming needs a user auth token.
type QobuzProvider struct {
	client *http.Client
	apiURL string
	appID  string
	token  string
}

// NewQobuzProvider creates the Qobuz acquisition provider.
func NewQobuzProvider(appID, token string) *QobuzProvider {
	if appID == "" {
		// Public web player app ID, usable for catalog search only.
		appID = "798273057"
	}
	return &QobuzProvider{
		client: &http.Client{Timeout: 60 * time.Second},
		apiURL: qobuzAPIBase,
		appID:  appID,
		token:  token,
	}
}

func (q *QobuzProvider) Name() string  { return "qobuz" }
func (q *QobuzProvider) Priority() int { return 3 }

func (q *QobuzProvider) Configured() bool {
	return q.token != ""
}

func (q *QobuzProvider) Configure(creds Credentials) {
	if creds.APIKey != "" {
		q.appID = creds.APIKey
	}
	if creds.APISecret != "" {
		q.token = creds.APISecret
	}
}

type qobuzTrack struct {
	ID                  int64   `json:"id"`
	Title               string  `json:"title"`
	Duration            int     `json:"duration"`
	ISRC                string  `json:"isrc"`
	MaximumBitDepth     int     `json:"maximum_bit_depth"`
	MaximumSamplingRate float64 `json:"maximum_sampling_rate"`
	Performer           struct {
		Name string `json:"name"`
	} `json:"performer"`
	Album struct {
		Title string `json:"title"`
		Image struct {
			Large string `json:"large"`
		} `json:"image"`
	} `json:"album"`
}

// SearchByISRC resolves an ISRC through Qobuz catalog search. Works
// without a user token.
func (q *QobuzProvider) SearchByISRC(ctx context.Context, isrc string) (string, error) {
	reqURL := fmt.Sprintf("%s/track/search?query=%s&limit=1&app_id=%s",
		q.apiURL, url.QueryEscape(isrc), url.QueryEscape(q.appID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("qobuz search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("qobuz returned status %d", resp.StatusCode)
	}

	var searchResp struct {
		Tracks struct {
			Items []qobuzTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return "", fmt.Errorf("failed to decode search result: %w", err)
	}
	if len(searchResp.Tracks.Items) == 0 {
		return "", fmt.Errorf("%w: qobuz has no track for ISRC %s", ErrTrackNotFound, isrc)
	}
	return fmt.Sprintf("%d", searchResp.Tracks.Items[0].ID), nil
}

// GetTrackInfo fetches track metadata by Qobuz ID.
func (q *QobuzProvider) GetTrackInfo(ctx context.Context, trackID string) (*TrackInfo, error) {
	reqURL := fmt.Sprintf("%s/track/get?track_id=%s&app_id=%s",
		q.apiURL, url.QueryEscape(trackID), url.QueryEscape(q.appID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qobuz track lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: qobuz track %s", ErrTrackNotFound, trackID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qobuz returned status %d", resp.StatusCode)
	}

	var track qobuzTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}

	quality := "LOSSLESS"
	if track.MaximumBitDepth > 16 {
		quality = fmt.Sprintf("HI_RES %d-bit/%.1fkHz", track.MaximumBitDepth, track.MaximumSamplingRate)
	}

	return &TrackInfo{
		ID:       fmt.Sprintf("%d", track.ID),
		Title:    track.Title,
		Artist:   track.Performer.Name,
		Album:    track.Album.Title,
		ISRC:     track.ISRC,
		Duration: track.Duration,
		CoverURL: track.Album.Image.Large,
		Quality:  quality,
	}, nil
}

// DownloadTrack fetches the FLAC stream URL and saves it to outputPath.
func (q *QobuzProvider) DownloadTrack(ctx context.Context, trackID, outputPath string) (*DownloadResult, error) {
	if !q.Configured() {
		return nil, ErrNotConfigured
	}

	// Quality 27 = highest available (up to 24-bit/192kHz).
	reqURL := fmt.Sprintf("%s/track/getFileUrl?track_id=%s&format_id=27&app_id=%s&user_auth_token=%s",
		q.apiURL, url.QueryEscape(trackID), url.QueryEscape(q.appID), url.QueryEscape(q.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qobuz stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stream API returned status %d", resp.StatusCode)
	}

	var stream struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stream); err != nil {
		return nil, fmt.Errorf("failed to decode stream response: %w", err)
	}
	if stream.URL == "" {
		return nil, fmt.Errorf("no stream URL for track %s", trackID)
	}

	if err := downloadToFile(ctx, q.client, stream.URL, outputPath); err != nil {
		return nil, err
	}

	return &DownloadResult{
		Path:    outputPath,
		Format:  "FLAC",
		Quality: "LOSSLESS",
		Service: q.Name(),
	}, nil
}
