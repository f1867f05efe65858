// Package providers wraps every external service behind one of four
// capability interfaces: identification, acquisition, stem separation and
// MIDI transcription. The registry selects among implementations by
// priority and configuration state; a provider that fails is a miss for
// that job, never disabled globally.
package providers

import (
	"context"
	"errors"
)

// Sentinel errors shared across providers.
var (
	// ErrTrackNotFound means a provider could not resolve the input to a track.
	ErrTrackNotFound = errors.New("track not found")
	// ErrNotConfigured means the provider is missing credentials for the call.
	ErrNotConfigured = errors.New("provider is not configured")
	// ErrNoStreamingProvider is the terminal acquisition failure. The message
	// tells the operator which credentials unblock the pipeline.
	ErrNoStreamingProvider = errors.New("no streaming provider could supply the master audio; configure Tidal, Deezer, or Qobuz credentials")
)

// Credentials holds the secret material loaded from a ProviderConfig row.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Identification is the canonical metadata resolved for a source.
type Identification struct {
	Title            string
	Artist           string
	Album            string
	AlbumArt         string
	Duration         int // seconds
	ISRC             string
	SpotifyID        string
	CrossPlatformIDs map[string]string // platform name -> native track ID
	Raw              string            // raw resolver payload, cached on the job
}

// TrackInfo is a streaming provider's view of one track.
type TrackInfo struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	ISRC     string
	Duration int
	CoverURL string
	Quality  string
}

// DownloadResult describes an acquired master file.
type DownloadResult struct {
	Path    string
	Format  string // e.g. "FLAC"
	Quality string // e.g. "LOSSLESS"
	Service string
}

// StemResult is one stem produced by a separation provider.
type StemResult struct {
	StemType string
	FilePath string
	FileSize int64
}

// MidiResult is one MIDI transcription.
type MidiResult struct {
	MidiPath string
	FileSize int64
}

// Identifier resolves a source reference to canonical track metadata.
// Implementations are idempotent and retry-safe.
type Identifier interface {
	Name() string
	Supports(sourceType string) bool
	Identify(ctx context.Context, sourceType, sourceValue string) (*Identification, error)
}

// StreamingProvider acquires lossless masters. Lower Priority is tried
// first; Configured gates whether DownloadTrack may be called.
type StreamingProvider interface {
	Name() string
	Priority() int
	Configured() bool
	Configure(creds Credentials)
	SearchByISRC(ctx context.Context, isrc string) (trackID string, err error)
	GetTrackInfo(ctx context.Context, trackID string) (*TrackInfo, error)
	DownloadTrack(ctx context.Context, trackID, outputPath string) (*DownloadResult, error)
}

// StemProvider splits a mixed recording into named stems. Each
// implementation owns its full upload/poll/download protocol.
type StemProvider interface {
	Name() string
	Configured() bool
	Configure(creds Credentials)
	Separate(ctx context.Context, audioPath, outputDir string) ([]StemResult, error)
}

// MidiProvider transcribes one tonal stem to MIDI.
type MidiProvider interface {
	Name() string
	Configured() bool
	Configure(creds Credentials)
	Generate(ctx context.Context, audioPath, outputDir, stemType string) (*MidiResult, error)
}
