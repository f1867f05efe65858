package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	songlinkAPIBase = "https://api.song.link/v1-alpha.1/links"
	deezerAPIBase   = "https://api.deezer.com/2.0"
)

// SonglinkResolver resolves streaming URLs and ISRCs to canonical metadata
// plus cross-platform native track IDs via the song.link service. ISRC
// lookups bootstrap through Deezer's public catalog, which needs no auth.
type SonglinkResolver struct {
	client    *http.Client
	baseURL   string
	deezerURL string
}

// NewSonglinkResolver creates the cross-platform resolver.
func NewSonglinkResolver() *SonglinkResolver {
	return &SonglinkResolver{
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   songlinkAPIBase,
		deezerURL: deezerAPIBase,
	}
}

func (s *SonglinkResolver) Name() string { return "songlink" }

func (s *SonglinkResolver) Supports(sourceType string) bool {
	switch sourceType {
	case "spotify_url", "audio_url", "isrc":
		return true
	}
	return false
}

type songlinkResponse struct {
	EntityUniqueID     string `json:"entityUniqueId"`
	EntitiesByUniqueID map[string]struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		ArtistName   string `json:"artistName"`
		ThumbnailURL string `json:"thumbnailUrl"`
		APIProvider  string `json:"apiProvider"`
	} `json:"entitiesByUniqueId"`
	LinksByPlatform map[string]struct {
		URL string `json:"url"`
	} `json:"linksByPlatform"`
}

type deezerTrack struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	ISRC     string `json:"isrc"`
	Duration int    `json:"duration"`
	Link     string `json:"link"`
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title   string `json:"title"`
		CoverXL string `json:"cover_xl"`
	} `json:"album"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Identify resolves the source to metadata and cross-platform IDs.
func (s *SonglinkResolver) Identify(ctx context.Context, sourceType, sourceValue string) (*Identification, error) {
	lookupURL := sourceValue
	var seed *deezerTrack

	if sourceType == "isrc" {
		// Deezer's public ISRC lookup anchors the cross-platform resolution.
		track, err := s.deezerByISRC(ctx, sourceValue)
		if err != nil {
			return nil, err
		}
		seed = track
		lookupURL = track.Link
	}

	slResp, raw, err := s.lookup(ctx, lookupURL)
	if err != nil {
		if seed == nil {
			return nil, err
		}
		// The Deezer seed alone is enough to proceed; cross-platform IDs
		// just stay empty.
		return identificationFromDeezer(seed, "", nil), nil
	}

	ident := &Identification{
		CrossPlatformIDs: extractPlatformIDs(slResp),
		Raw:              raw,
	}

	if entity, ok := slResp.EntitiesByUniqueID[slResp.EntityUniqueID]; ok {
		ident.Title = entity.Title
		ident.Artist = entity.ArtistName
		ident.AlbumArt = entity.ThumbnailURL
	}
	for key, entity := range slResp.EntitiesByUniqueID {
		if entity.APIProvider == "spotify" || strings.HasPrefix(key, "SPOTIFY_SONG::") {
			ident.SpotifyID = entity.ID
			if ident.Title == "" {
				ident.Title = entity.Title
			}
			if ident.Artist == "" {
				ident.Artist = entity.ArtistName
			}
		}
	}

	// Backfill ISRC, album and duration from Deezer's public catalog.
	if seed == nil {
		if deezerID := ident.CrossPlatformIDs["deezer"]; deezerID != "" {
			seed, _ = s.deezerByID(ctx, deezerID)
		}
	}
	if seed != nil {
		merged := identificationFromDeezer(seed, raw, ident.CrossPlatformIDs)
		merged.SpotifyID = ident.SpotifyID
		if ident.Title != "" {
			merged.Title = ident.Title
		}
		if ident.Artist != "" {
			merged.Artist = ident.Artist
		}
		if ident.AlbumArt != "" {
			merged.AlbumArt = ident.AlbumArt
		}
		return merged, nil
	}

	if ident.Title == "" {
		return nil, fmt.Errorf("%w: song.link returned no usable entity", ErrTrackNotFound)
	}
	return ident, nil
}

func (s *SonglinkResolver) lookup(ctx context.Context, trackURL string) (*songlinkResponse, string, error) {
	reqURL := fmt.Sprintf("%s?url=%s", s.baseURL, url.QueryEscape(trackURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("song.link request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", fmt.Errorf("%w: song.link has no entry for %s", ErrTrackNotFound, trackURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("song.link returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}

	var slResp songlinkResponse
	if err := json.Unmarshal(body, &slResp); err != nil {
		return nil, "", fmt.Errorf("failed to decode song.link response: %w", err)
	}
	return &slResp, string(body), nil
}

func (s *SonglinkResolver) deezerByISRC(ctx context.Context, isrc string) (*deezerTrack, error) {
	return s.deezerGet(ctx, fmt.Sprintf("%s/track/isrc:%s", s.deezerURL, url.PathEscape(isrc)))
}

func (s *SonglinkResolver) deezerByID(ctx context.Context, id string) (*deezerTrack, error) {
	return s.deezerGet(ctx, fmt.Sprintf("%s/track/%s", s.deezerURL, url.PathEscape(id)))
}

func (s *SonglinkResolver) deezerGet(ctx context.Context, reqURL string) (*deezerTrack, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deezer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deezer returned status %d", resp.StatusCode)
	}

	var track deezerTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, fmt.Errorf("failed to decode deezer response: %w", err)
	}
	if track.Error != nil || track.ID == 0 {
		return nil, fmt.Errorf("%w: deezer has no matching track", ErrTrackNotFound)
	}
	return &track, nil
}

func identificationFromDeezer(t *deezerTrack, raw string, platformIDs map[string]string) *Identification {
	if platformIDs == nil {
		platformIDs = map[string]string{}
	}
	if _, ok := platformIDs["deezer"]; !ok {
		platformIDs["deezer"] = fmt.Sprintf("%d", t.ID)
	}
	return &Identification{
		Title:            t.Title,
		Artist:           t.Artist.Name,
		Album:            t.Album.Title,
		AlbumArt:         t.Album.CoverXL,
		Duration:         t.Duration,
		ISRC:             t.ISRC,
		CrossPlatformIDs: platformIDs,
		Raw:              raw,
	}
}

// PlatformIDsFromSonglink re-extracts native track IDs from a cached
// song.link payload, as stored on a job during identification.
func PlatformIDsFromSonglink(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var resp songlinkResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil
	}
	return extractPlatformIDs(&resp)
}

// extractPlatformIDs pulls native track IDs out of song.link platform URLs.
// Tidal/Deezer/Qobuz all use a ".../track/<id>" path shape.
func extractPlatformIDs(resp *songlinkResponse) map[string]string {
	ids := make(map[string]string)
	for _, platform := range []string{"tidal", "deezer", "qobuz"} {
		link, ok := resp.LinksByPlatform[platform]
		if !ok || link.URL == "" {
			continue
		}
		if id := trackIDFromURL(link.URL); id != "" {
			ids[platform] = id
		}
	}
	return ids
}

func trackIDFromURL(trackURL string) string {
	parts := strings.Split(trackURL, "/track/")
	if len(parts) < 2 {
		return ""
	}
	id := strings.Split(parts[1], "?")[0]
	return strings.TrimSpace(strings.TrimSuffix(id, "/"))
}
