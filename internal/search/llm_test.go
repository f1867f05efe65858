package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLLMSuggestions(t *testing.T) {
	t.Run("plain array", func(t *testing.T) {
		got, err := parseLLMSuggestions(`[{"title":"Song","artist":"Artist","album":"Album","confidence":0.9}]`)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Song", got[0].Title)
		assert.Equal(t, SourceLLM, got[0].Source)
		assert.Equal(t, 0.9, got[0].Confidence)
		assert.NotEmpty(t, got[0].ID)
	})

	t.Run("fenced array", func(t *testing.T) {
		content := "```json\n[{\"title\":\"Song\",\"artist\":\"Artist\",\"confidence\":0.5}]\n```"
		got, err := parseLLMSuggestions(content)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("clamps confidence and drops incomplete entries", func(t *testing.T) {
		got, err := parseLLMSuggestions(`[
			{"title":"Over","artist":"A","confidence":3},
			{"title":"Under","artist":"B","confidence":-1},
			{"title":"NoArtist","confidence":0.5}
		]`)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 1.0, got[0].Confidence)
		assert.Equal(t, 0.0, got[1].Confidence)
	})

	t.Run("no array in output", func(t *testing.T) {
		_, err := parseLLMSuggestions("I cannot identify that song.")
		assert.Error(t, err)
	})
}

func TestLLMSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{
					"content": `[{"title":"Bohemian Rhapsody","artist":"Queen","confidence":0.95}]`,
				}},
			},
		})
	}))
	defer srv.Close()

	l := NewLLMSearcher(srv.URL, "test-key", "test-model")
	got, err := l.Search(context.Background(), "opera rock song", QueryDescription)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Queen", got[0].Artist)
}

func TestLLMSearchNotConfigured(t *testing.T) {
	l := NewLLMSearcher("", "", "model")
	assert.False(t, l.Configured())

	_, err := l.Search(context.Background(), "query", QueryTitle)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLLMSearchGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l := NewLLMSearcher(srv.URL, "test-key", "test-model")
	_, err := l.Search(context.Background(), "query", QueryTitle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestLLMSearchGatewayRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exhausted", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	l := NewLLMSearcher(srv.URL, "test-key", "test-model")
	_, err := l.Search(context.Background(), "query", QueryTitle)
	assert.ErrorIs(t, err, ErrRateLimited)
}
