package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	fadrAPIBase      = "https://api.fadr.com"
	fadrPollInterval = 2 * time.Second
)

// fadrClient is the shared API plumbing for the Fadr stem and MIDI
// providers: asset upload, stem analysis task, polling and downloads.
type fadrClient struct {
	client *http.Client
	apiURL string
	apiKey string
}

func newFadrClient(apiKey string) *fadrClient {
	return &fadrClient{
		client: &http.Client{Timeout: 10 * time.Minute},
		apiURL: fadrAPIBase,
		apiKey: apiKey,
	}
}

func (f *fadrClient) configured() bool {
	return f.apiKey != ""
}

type fadrAsset struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	MIDI  string `json:"midi"`
	Stems []struct {
		ID       string `json:"_id"`
		StemType string `json:"stemType"`
	} `json:"stems"`
}

// createAsset registers an upload slot and pushes the file bytes to the
// returned presigned URL.
func (f *fadrClient) createAsset(ctx context.Context, audioPath string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(audioPath), ".")
	payload, _ := json.Marshal(map[string]string{
		"name":      filepath.Base(audioPath),
		"extension": ext,
	})

	var created struct {
		S3Path string `json:"s3Path"`
		URL    string `json:"url"`
		Asset  struct {
			ID string `json:"_id"`
		} `json:"asset"`
	}
	if err := f.doJSON(ctx, http.MethodPost, "/assets/upload2", payload, &created); err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, created.URL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(putReq)
	if err != nil {
		return "", fmt.Errorf("upload bytes: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload returned status %d", resp.StatusCode)
	}

	return created.Asset.ID, nil
}

// analyze starts stem analysis and polls the task until the asset carries
// its stems. Fixed inter-poll delay, bounded by ctx.
func (f *fadrClient) analyze(ctx context.Context, assetID string) (*fadrAsset, error) {
	payload, _ := json.Marshal(map[string]string{"_id": assetID})
	var started struct {
		Task struct {
			ID string `json:"_id"`
		} `json:"task"`
	}
	if err := f.doJSON(ctx, http.MethodPost, "/assets/analyze/stem", payload, &started); err != nil {
		return nil, fmt.Errorf("start analysis: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fadrPollInterval):
		}

		queryPayload, _ := json.Marshal(map[string][]string{"_ids": {started.Task.ID}})
		var polled struct {
			Tasks []struct {
				Complete bool      `json:"complete"`
				Error    string    `json:"error"`
				Asset    fadrAsset `json:"asset"`
			} `json:"tasks"`
		}
		if err := f.doJSON(ctx, http.MethodPost, "/tasks/query", queryPayload, &polled); err != nil {
			return nil, fmt.Errorf("poll task: %w", err)
		}
		if len(polled.Tasks) == 0 {
			return nil, fmt.Errorf("task %s disappeared", started.Task.ID)
		}
		task := polled.Tasks[0]
		if task.Error != "" {
			return nil, fmt.Errorf("analysis failed: %s", task.Error)
		}
		if task.Complete {
			return &task.Asset, nil
		}
	}
}

// downloadAsset resolves an asset ID to a presigned URL and saves it.
func (f *fadrClient) downloadAsset(ctx context.Context, assetID, outputPath string) error {
	var dl struct {
		URL string `json:"url"`
	}
	if err := f.doJSON(ctx, http.MethodGet, "/assets/"+assetID+"/dl", nil, &dl); err != nil {
		return fmt.Errorf("resolve download: %w", err)
	}
	if dl.URL == "" {
		return fmt.Errorf("no download URL for asset %s", assetID)
	}
	return downloadToFile(ctx, f.client, dl.URL, outputPath)
}

func (f *fadrClient) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, f.apiURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("fadr %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FadrStemProvider separates stems via Fadr's analysis pipeline.
type FadrStemProvider struct {
	*fadrClient
}

// NewFadrStemProvider creates the Fadr stem provider.
func NewFadrStemProvider(apiKey string) *FadrStemProvider {
	return &FadrStemProvider{fadrClient: newFadrClient(apiKey)}
}

func (f *FadrStemProvider) Name() string     { return "fadr" }
func (f *FadrStemProvider) Configured() bool { return f.configured() }

func (f *FadrStemProvider) Configure(creds Credentials) {
	if creds.APIKey != "" {
		f.apiKey = creds.APIKey
	}
}

// fadrStemTypeMap translates Fadr's stem names to ours.
var fadrStemTypeMap = map[string]string{
	"vocals":       "vocals",
	"drums":        "drums",
	"bass":         "bass",
	"melody":       "melody",
	"instrumental": "instrumental",
	"other":        "other",
}

// Separate uploads the master, runs stem analysis and downloads every
// returned stem into outputDir.
func (f *FadrStemProvider) Separate(ctx context.Context, audioPath, outputDir string) ([]StemResult, error) {
	if !f.Configured() {
		return nil, ErrNotConfigured
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("directory error: %w", err)
	}

	assetID, err := f.createAsset(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("fadr upload failed: %w", err)
	}

	asset, err := f.analyze(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("fadr analysis failed: %w", err)
	}
	if len(asset.Stems) == 0 {
		return nil, fmt.Errorf("fadr returned no stems")
	}

	var results []StemResult
	for _, stem := range asset.Stems {
		stemType, ok := fadrStemTypeMap[stem.StemType]
		if !ok {
			stemType = "other"
		}
		outPath := filepath.Join(outputDir, stemType+".wav")
		if err := f.downloadAsset(ctx, stem.ID, outPath); err != nil {
			return nil, fmt.Errorf("fadr download %s failed: %w", stemType, err)
		}
		results = append(results, StemResult{
			StemType: stemType,
			FilePath: outPath,
			FileSize: fileSize(outPath),
		})
	}
	return results, nil
}

// FadrMidiProvider transcribes a stem to MIDI via Fadr's analysis, which
// attaches a MIDI asset to every analyzed audio asset.
type FadrMidiProvider struct {
	*fadrClient
}

// NewFadrMidiProvider creates the Fadr MIDI provider.
func NewFadrMidiProvider(apiKey string) *FadrMidiProvider {
	return &FadrMidiProvider{fadrClient: newFadrClient(apiKey)}
}

func (f *FadrMidiProvider) Name() string     { return "fadr_midi" }
func (f *FadrMidiProvider) Configured() bool { return f.configured() }

func (f *FadrMidiProvider) Configure(creds Credentials) {
	if creds.APIKey != "" {
		f.apiKey = creds.APIKey
	}
}

// Generate uploads one stem, analyzes it and downloads the MIDI asset.
func (f *FadrMidiProvider) Generate(ctx context.Context, audioPath, outputDir, stemType string) (*MidiResult, error) {
	if !f.Configured() {
		return nil, ErrNotConfigured
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("directory error: %w", err)
	}

	assetID, err := f.createAsset(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("fadr upload failed: %w", err)
	}

	asset, err := f.analyze(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("fadr analysis failed: %w", err)
	}
	if asset.MIDI == "" {
		return nil, fmt.Errorf("fadr produced no MIDI for %s stem", stemType)
	}

	midiPath := filepath.Join(outputDir, stemType+".mid")
	if err := f.downloadAsset(ctx, asset.MIDI, midiPath); err != nil {
		return nil, fmt.Errorf("fadr MIDI download failed: %w", err)
	}

	return &MidiResult{
		MidiPath: midiPath,
		FileSize: fileSize(midiPath),
	}, nil
}
