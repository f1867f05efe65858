package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Text query types.
const (
	QueryTitle       = "title"
	QueryLyrics      = "lyrics"
	QueryDescription = "description"
)

// LLMSearcher asks an OpenAI-compatible chat completions gateway to
// name songs matching a textual query.
type LLMSearcher struct {
	client     *http.Client
	gatewayURL string
	apiKey     string
	model      string
}

func NewLLMSearcher(gatewayURL, apiKey, model string) *LLMSearcher {
	return &LLMSearcher{
		client:     &http.Client{Timeout: 45 * time.Second},
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

func (l *LLMSearcher) Configured() bool {
	return l.gatewayURL != "" && l.apiKey != ""
}

const llmSystemPrompt = `You identify songs. Given a query, respond with a JSON array of up to 5 candidate songs, most likely first. Each element: {"title": string, "artist": string, "album": string, "confidence": number between 0 and 1}. Respond with the JSON array only, no prose.`

// Search asks the gateway for candidate songs. queryType shapes the
// user prompt: a title fragment, remembered lyrics, or a description.
func (l *LLMSearcher) Search(ctx context.Context, query, queryType string) ([]SongSuggestion, error) {
	if !l.Configured() {
		return nil, ErrNotConfigured
	}

	var userPrompt string
	switch queryType {
	case QueryLyrics:
		userPrompt = fmt.Sprintf("Identify the song containing these lyrics: %q", query)
	case QueryDescription:
		userPrompt = fmt.Sprintf("Identify the song matching this description: %q", query)
	default:
		userPrompt = fmt.Sprintf("Identify the song with a title like: %q", query)
	}

	reqBody, err := json.Marshal(map[string]any{
		"model": l.model,
		"messages": []map[string]string{
			{"role": "system", "content": llmSystemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("encode llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.gatewayURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm gateway request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("llm gateway: %w", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("llm gateway returned %d: %s", resp.StatusCode, body)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("llm gateway returned no choices")
	}

	return parseLLMSuggestions(completion.Choices[0].Message.Content)
}

// parseLLMSuggestions extracts the JSON array from the model output,
// tolerating markdown code fences around it.
func parseLLMSuggestions(content string) ([]SongSuggestion, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("llm output contains no JSON array")
	}

	var raw []struct {
		Title      string  `json:"title"`
		Artist     string  `json:"artist"`
		Album      string  `json:"album"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parse llm suggestions: %w", err)
	}

	suggestions := make([]SongSuggestion, 0, len(raw))
	for _, r := range raw {
		if r.Title == "" || r.Artist == "" {
			continue
		}
		conf := r.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		suggestions = append(suggestions, SongSuggestion{
			ID:         uuid.NewString(),
			Title:      r.Title,
			Artist:     r.Artist,
			Album:      r.Album,
			Confidence: conf,
			Source:     SourceLLM,
		})
	}
	return suggestions, nil
}
