package endpoints

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/imnotfancy/TuneForge-sub000/internal/search"
)

// TextSearcher resolves textual queries into song suggestions.
type TextSearcher interface {
	Configured() bool
	Search(ctx context.Context, query, queryType string) ([]search.SongSuggestion, error)
}

// HummingSearcher matches audio samples against a fingerprint catalog.
type HummingSearcher interface {
	Configured() bool
	Identify(ctx context.Context, sample []byte) ([]search.SongSuggestion, error)
}

// CatalogSearcher queries a public music catalog.
type CatalogSearcher interface {
	Search(ctx context.Context, query, searchType string) ([]search.SongSuggestion, error)
}

// SuggestionsResponse is the payload every search endpoint returns.
type SuggestionsResponse struct {
	Suggestions []search.SongSuggestion `json:"suggestions"`
}

// TextSearchRequest is the body of POST /search/text.
type TextSearchRequest struct {
	Query string `json:"query"`
	Type  string `json:"type"`
}

// HandleTextSearch asks the LLM gateway to identify songs from a title
// fragment, lyrics, or a description.
func HandleTextSearch(searcher TextSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TextSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
			fail(c, http.StatusBadRequest, CodeValidation, "query is required")
			return
		}
		if !searcher.Configured() {
			fail(c, http.StatusServiceUnavailable, CodeUnavailable, "Text search is not configured")
			return
		}

		suggestions, err := searcher.Search(c.Request.Context(), req.Query, req.Type)
		if err != nil {
			if errors.Is(err, search.ErrRateLimited) {
				fail(c, http.StatusTooManyRequests, CodeRateLimited, "Text search rate limit exhausted")
				return
			}
			slog.Error("Text search failed", "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "Text search failed")
			return
		}
		c.JSON(http.StatusOK, SuggestionsResponse{Suggestions: emptyIfNil(suggestions)})
	}
}

// HummingSearchRequest is the body of POST /search/humming. Exactly one
// of the two fields is expected: a server-local path or base64 audio.
type HummingSearchRequest struct {
	AudioPath   string `json:"audio_path,omitempty"`
	AudioBuffer string `json:"audio_buffer,omitempty"`
}

// HandleHummingSearch matches a hummed or sung sample via ACRCloud.
func HandleHummingSearch(searcher HummingSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req HummingSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
			return
		}
		if !searcher.Configured() {
			fail(c, http.StatusServiceUnavailable, CodeUnavailable, "Humming search is not configured")
			return
		}

		var sample []byte
		switch {
		case req.AudioBuffer != "":
			decoded, err := base64.StdEncoding.DecodeString(req.AudioBuffer)
			if err != nil {
				fail(c, http.StatusBadRequest, CodeValidation, "audio_buffer is not valid base64")
				return
			}
			sample = decoded
		case req.AudioPath != "":
			data, err := os.ReadFile(req.AudioPath)
			if err != nil {
				fail(c, http.StatusBadRequest, CodeValidation, "audio_path could not be read")
				return
			}
			sample = data
		default:
			fail(c, http.StatusBadRequest, CodeValidation, "audio_path or audio_buffer is required")
			return
		}

		suggestions, err := searcher.Identify(c.Request.Context(), sample)
		if err != nil {
			if errors.Is(err, search.ErrRateLimited) {
				fail(c, http.StatusTooManyRequests, CodeRateLimited, "Humming search rate limit exhausted")
				return
			}
			slog.Error("Humming search failed", "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "Humming search failed")
			return
		}
		c.JSON(http.StatusOK, SuggestionsResponse{Suggestions: emptyIfNil(suggestions)})
	}
}

// HandleMusicBrainzSearch runs a recording or artist lookup against
// MusicBrainz.
func HandleMusicBrainzSearch(searcher CatalogSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("query")
		if query == "" {
			fail(c, http.StatusBadRequest, CodeValidation, "query is required")
			return
		}
		searchType := c.DefaultQuery("type", search.MBRecording)
		if searchType != search.MBRecording && searchType != search.MBArtist {
			fail(c, http.StatusBadRequest, CodeValidation, "type must be recording or artist")
			return
		}

		suggestions, err := searcher.Search(c.Request.Context(), query, searchType)
		if err != nil {
			if errors.Is(err, search.ErrRateLimited) {
				fail(c, http.StatusTooManyRequests, CodeRateLimited, "MusicBrainz rate limit exhausted")
				return
			}
			slog.Error("MusicBrainz search failed", "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "MusicBrainz search failed")
			return
		}
		c.JSON(http.StatusOK, SuggestionsResponse{Suggestions: emptyIfNil(suggestions)})
	}
}

func emptyIfNil(s []search.SongSuggestion) []search.SongSuggestion {
	if s == nil {
		return []search.SongSuggestion{}
	}
	return s
}
