package search

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const acrIdentifyPath = "/v1/identify"

// ACRCloudSearcher matches hummed or sung audio against the ACRCloud
// fingerprint catalog.
type ACRCloudSearcher struct {
	client    *http.Client
	host      string
	accessKey string
	secretKey string
}

func NewACRCloudSearcher(host, accessKey, secretKey string) *ACRCloudSearcher {
	return &ACRCloudSearcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		host:      host,
		accessKey: accessKey,
		secretKey: secretKey,
	}
}

func (a *ACRCloudSearcher) Configured() bool {
	return a.host != "" && a.accessKey != "" && a.secretKey != ""
}

// Identify matches an audio sample against the catalog. The sample is
// raw file bytes; ACRCloud accepts common compressed formats directly.
func (a *ACRCloudSearcher) Identify(ctx context.Context, sample []byte) ([]SongSuggestion, error) {
	if !a.Configured() {
		return nil, ErrNotConfigured
	}
	if len(sample) == 0 {
		return nil, fmt.Errorf("empty audio sample")
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := a.sign(strings.Join([]string{
		http.MethodPost, acrIdentifyPath, a.accessKey, "audio", "1", timestamp,
	}, "\n"))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := map[string]string{
		"access_key":        a.accessKey,
		"data_type":         "audio",
		"signature_version": "1",
		"signature":         signature,
		"timestamp":         timestamp,
		"sample_bytes":      strconv.Itoa(len(sample)),
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("build identify form: %w", err)
		}
	}
	part, err := w.CreateFormFile("sample", "sample.bin")
	if err != nil {
		return nil, fmt.Errorf("build identify form: %w", err)
	}
	if _, err := part.Write(sample); err != nil {
		return nil, fmt.Errorf("build identify form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build identify form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+a.host+acrIdentifyPath, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("acrcloud request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("acrcloud: %w", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("acrcloud returned %d: %s", resp.StatusCode, respBody)
	}

	var result acrResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode acrcloud response: %w", err)
	}
	// Code 1001 means no match, which is an empty result, not an error.
	if result.Status.Code == 1001 {
		return nil, nil
	}
	if result.Status.Code != 0 {
		return nil, fmt.Errorf("acrcloud error %d: %s", result.Status.Code, result.Status.Msg)
	}

	suggestions := make([]SongSuggestion, 0, len(result.Metadata.Music))
	for _, m := range result.Metadata.Music {
		s := SongSuggestion{
			ID:         uuid.NewString(),
			Title:      m.Title,
			Album:      m.Album.Name,
			ISRC:       m.ExternalIDs.ISRC,
			Confidence: m.Score / 100,
			Source:     SourceACRCloud,
			SpotifyID:  m.ExternalMetadata.Spotify.Track.ID,
		}
		names := make([]string, 0, len(m.Artists))
		for _, artist := range m.Artists {
			names = append(names, artist.Name)
		}
		s.Artist = strings.Join(names, ", ")
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

func (a *ACRCloudSearcher) sign(payload string) string {
	mac := hmac.New(sha1.New, []byte(a.secretKey))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type acrResponse struct {
	Status struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"status"`
	Metadata struct {
		Music []struct {
			Title   string  `json:"title"`
			Score   float64 `json:"score"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				Name string `json:"name"`
			} `json:"album"`
			ExternalIDs struct {
				ISRC string `json:"isrc"`
			} `json:"external_ids"`
			ExternalMetadata struct {
				Spotify struct {
					Track struct {
						ID string `json:"id"`
					} `json:"track"`
				} `json:"spotify"`
			} `json:"external_metadata"`
		} `json:"music"`
	} `json:"metadata"`
}
