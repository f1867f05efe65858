package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lalalAPIBase      = "https://www.lalal.ai/api"
	lalalPollInterval = 3 * time.Second
)

// lalalStemMap maps our stem types to LALAL.AI split names. The vocals
// split's back track doubles as the instrumental stem.
var lalalStemMap = []struct {
	stemType string
	vendor   string
}{
	{"vocals", "vocals"},
	{"drums", "drum"},
	{"bass", "bass"},
	{"melody", "piano"},
}

// LalalProvider separates stems with LALAL.AI. Each stem is its own
// upload-split-poll-download round trip against the vendor API.
type LalalProvider struct {
	client  *http.Client
	apiURL  string
	license string
}

// NewLalalProvider creates the LALAL.AI stem provider.
func NewLalalProvider(license string) *LalalProvider {
	return &LalalProvider{
		client:  &http.Client{Timeout: 10 * time.Minute},
		apiURL:  lalalAPIBase,
		license: license,
	}
}

func (l *LalalProvider) Name() string { return "lalal" }

func (l *LalalProvider) Configured() bool {
	return l.license != ""
}

func (l *LalalProvider) Configure(creds Credentials) {
	if creds.APIKey != "" {
		l.license = creds.APIKey
	}
}

// Separate uploads the master once, then requests one split per stem type
// and collects the results. The instrumental comes from the vocals split's
// back track.
func (l *LalalProvider) Separate(ctx context.Context, audioPath, outputDir string) ([]StemResult, error) {
	if !l.Configured() {
		return nil, ErrNotConfigured
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("directory error: %w", err)
	}

	fileID, err := l.upload(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("lalal upload failed: %w", err)
	}

	var results []StemResult
	for _, mapping := range lalalStemMap {
		stemURL, backURL, err := l.split(ctx, fileID, mapping.vendor)
		if err != nil {
			return nil, fmt.Errorf("lalal split %s failed: %w", mapping.vendor, err)
		}

		stemPath := filepath.Join(outputDir, mapping.stemType+".wav")
		if err := downloadToFile(ctx, l.client, stemURL, stemPath); err != nil {
			return nil, fmt.Errorf("lalal download %s failed: %w", mapping.stemType, err)
		}
		results = append(results, StemResult{
			StemType: mapping.stemType,
			FilePath: stemPath,
			FileSize: fileSize(stemPath),
		})

		if mapping.stemType == "vocals" && backURL != "" {
			instPath := filepath.Join(outputDir, "instrumental.wav")
			if err := downloadToFile(ctx, l.client, backURL, instPath); err != nil {
				return nil, fmt.Errorf("lalal download instrumental failed: %w", err)
			}
			results = append(results, StemResult{
				StemType: "instrumental",
				FilePath: instPath,
				FileSize: fileSize(instPath),
			})
		}
	}

	return results, nil
}

func (l *LalalProvider) upload(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiURL+"/upload/", f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "license "+l.license)
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(audioPath)))

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload returned status %d", resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
		ID     string `json:"id"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Status != "success" {
		return "", fmt.Errorf("upload rejected: %s", result.Error)
	}
	return result.ID, nil
}

// split requests one stem split and polls until the vendor finishes.
// Fixed inter-poll delay; the caller's context bounds the wait.
func (l *LalalProvider) split(ctx context.Context, fileID, vendorStem string) (stemURL, backURL string, err error) {
	params := url.Values{
		"id":   {fileID},
		"stem": {vendorStem},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.apiURL+"/split/", strings.NewReader(params.Encode()))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "license "+l.license)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", "", err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("split returned status %d", resp.StatusCode)
	}

	for {
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(lalalPollInterval):
		}

		state, stemTrack, backTrack, err := l.check(ctx, fileID)
		if err != nil {
			return "", "", err
		}
		switch state {
		case "success":
			return stemTrack, backTrack, nil
		case "error", "cancelled":
			return "", "", fmt.Errorf("split task ended in state %q", state)
		}
	}
}

func (l *LalalProvider) check(ctx context.Context, fileID string) (state, stemTrack, backTrack string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.apiURL+"/check/?id="+url.QueryEscape(fileID), nil)
	if err != nil {
		return "", "", "", err
	}
	req.Header.Set("Authorization", "license "+l.license)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", "", fmt.Errorf("check returned status %d", resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
		Result map[string]struct {
			Task struct {
				State string `json:"state"`
			} `json:"task"`
			Split struct {
				StemTrack string `json:"stem_track"`
				BackTrack string `json:"back_track"`
			} `json:"split"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", "", err
	}

	entry, ok := result.Result[fileID]
	if !ok {
		return "", "", "", fmt.Errorf("check response missing file %s", fileID)
	}
	return entry.Task.State, entry.Split.StemTrack, entry.Split.BackTrack, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
