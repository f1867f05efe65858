package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// nativePlatformOrder is the preference order for platform-native track IDs
// cached during identification.
var nativePlatformOrder = []string{"tidal", "deezer", "qobuz"}

// ConfigSource supplies persisted provider configs and usage accounting.
// *store.Store satisfies it.
type ConfigSource interface {
	GetProviderConfig(serviceName string) (*store.ProviderConfig, error)
	BumpProviderUsage(serviceName string, window time.Duration, now time.Time) error
}

// AcquireRequest is the input to master acquisition.
type AcquireRequest struct {
	ISRC        string
	PlatformIDs map[string]string // platform -> native track ID
	OutputPath  string
}

// Registry holds the typed provider lists and implements the selection
// algorithms.
type Registry struct {
	identifiers []Identifier
	streaming   []StreamingProvider
	stems       []StemProvider
	midis       []MidiProvider

	configs ConfigSource

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRegistry creates an empty registry. configs may be nil, in which case
// no persisted credentials or rate limits are applied.
func NewRegistry(configs ConfigSource) *Registry {
	return &Registry{
		configs:  configs,
		limiters: make(map[string]*rate.Limiter),
	}
}

// RegisterIdentifier appends an identification provider.
func (r *Registry) RegisterIdentifier(p Identifier) {
	r.applyConfig(p.Name(), nil)
	r.identifiers = append(r.identifiers, p)
}

// RegisterStreaming appends an acquisition provider and applies its
// persisted credentials, if any.
func (r *Registry) RegisterStreaming(p StreamingProvider) {
	r.applyConfig(p.Name(), p.Configure)
	r.streaming = append(r.streaming, p)
}

// RegisterStem appends a stem separation provider.
func (r *Registry) RegisterStem(p StemProvider) {
	r.applyConfig(p.Name(), p.Configure)
	r.stems = append(r.stems, p)
}

// RegisterMidi appends a MIDI transcription provider.
func (r *Registry) RegisterMidi(p MidiProvider) {
	r.applyConfig(p.Name(), p.Configure)
	r.midis = append(r.midis, p)
}

func (r *Registry) applyConfig(name string, configure func(Credentials)) {
	if r.configs == nil || configure == nil {
		return
	}
	pc, err := r.configs.GetProviderConfig(name)
	if err != nil {
		return
	}
	creds := Credentials{}
	if pc.APIKey != nil {
		creds.APIKey = *pc.APIKey
	}
	if pc.APISecret != nil {
		creds.APISecret = *pc.APISecret
	}
	if creds.APIKey != "" || creds.APISecret != "" {
		configure(creds)
	}
}

// allow consults the persisted quota descriptor and an in-process limiter
// before dispatching to a service. A service with no config row is allowed.
func (r *Registry) allow(name string) bool {
	if r.configs == nil {
		return true
	}
	pc, err := r.configs.GetProviderConfig(name)
	if err != nil {
		return true
	}
	if !pc.IsEnabled {
		return false
	}
	if pc.RateLimit == nil || pc.RateWindow == nil {
		return true
	}

	now := time.Now().UTC()
	windowActive := pc.UsageResetAt != nil && pc.UsageResetAt.After(now)
	if windowActive && pc.CurrentUsage >= *pc.RateLimit {
		slog.Warn("Provider window exhausted, skipping", "provider", name,
			"usage", pc.CurrentUsage, "limit", *pc.RateLimit)
		return false
	}

	window := time.Duration(*pc.RateWindow) * time.Second
	if !r.limiter(name, *pc.RateLimit, window).Allow() {
		return false
	}
	_ = r.configs.BumpProviderUsage(name, window, now)
	return true
}

func (r *Registry) limiter(name string, limit int, window time.Duration) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lim, ok := r.limiters[name]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)
	r.limiters[name] = lim
	return lim
}

// Identify dispatches to the identifier whose capability matches the
// source type. Only matching implementations are tried.
func (r *Registry) Identify(ctx context.Context, sourceType, sourceValue string) (*Identification, error) {
	for _, ident := range r.identifiers {
		if !ident.Supports(sourceType) {
			continue
		}
		if !r.allow(ident.Name()) {
			continue
		}
		id, err := ident.Identify(ctx, sourceType, sourceValue)
		if err != nil {
			slog.Warn("Identifier failed", "provider", ident.Name(), "source_type", sourceType, "error", err)
			continue
		}
		return id, nil
	}
	return nil, fmt.Errorf("%w: no identifier resolved %s source", ErrTrackNotFound, sourceType)
}

// AcquireMaster runs the acquisition selection algorithm:
//
//  1. Platform-native IDs (tidal, deezer, qobuz order) go straight to the
//     matching configured provider's download.
//  2. An ISRC is searched across providers ordered by configured-first then
//     ascending priority; the first hit is downloaded.
//  3. Unconfigured providers with public no-auth search are still used to
//     resolve IDs, but never to download.
//
// A provider error is a miss for this job only.
func (r *Registry) AcquireMaster(ctx context.Context, req AcquireRequest) (*DownloadResult, error) {
	// Step 1: platform-native IDs.
	for _, platform := range nativePlatformOrder {
		trackID, ok := req.PlatformIDs[platform]
		if !ok || trackID == "" {
			continue
		}
		p := r.streamingByName(platform)
		if p == nil || !p.Configured() {
			continue
		}
		if !r.allow(p.Name()) {
			continue
		}
		res, err := p.DownloadTrack(ctx, trackID, req.OutputPath)
		if err != nil {
			slog.Warn("Native-ID download failed", "provider", p.Name(), "track_id", trackID, "error", err)
			continue
		}
		return res, nil
	}

	if req.ISRC == "" {
		return nil, ErrNoStreamingProvider
	}

	// Steps 2 and 3: ISRC search in (configured desc, priority asc) order.
	resolvedSomewhere := false
	for _, p := range r.streamingOrdered() {
		if !r.allow(p.Name()) {
			continue
		}
		trackID, err := p.SearchByISRC(ctx, req.ISRC)
		if err != nil {
			if !errors.Is(err, ErrTrackNotFound) {
				slog.Warn("ISRC search failed", "provider", p.Name(), "isrc", req.ISRC, "error", err)
			}
			continue
		}
		if !p.Configured() {
			// Public search resolved the track; downloading still needs credentials.
			slog.Info("Track resolved on unconfigured provider", "provider", p.Name(), "track_id", trackID)
			resolvedSomewhere = true
			continue
		}
		res, err := p.DownloadTrack(ctx, trackID, req.OutputPath)
		if err != nil {
			slog.Warn("Download failed", "provider", p.Name(), "track_id", trackID, "error", err)
			continue
		}
		return res, nil
	}

	if resolvedSomewhere {
		slog.Warn("Track is available but no provider has download credentials")
	}
	return nil, ErrNoStreamingProvider
}

// Separate tries the preferred provider first when it is configured, then
// the rest in registration order. It stops at the first success.
func (r *Registry) Separate(ctx context.Context, preferred, audioPath, outputDir string) ([]StemResult, string, error) {
	var lastErr error
	for _, p := range r.stemOrdered(preferred) {
		if !p.Configured() {
			continue
		}
		if !r.allow(p.Name()) {
			continue
		}
		results, err := p.Separate(ctx, audioPath, outputDir)
		if err != nil {
			slog.Warn("Stem separation failed", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		if len(results) == 0 {
			continue
		}
		return results, p.Name(), nil
	}
	if lastErr != nil {
		return nil, "", fmt.Errorf("all stem providers failed: %w", lastErr)
	}
	return nil, "", fmt.Errorf("no stem separation provider is configured")
}

// GenerateMIDI tries the preferred provider first, then registration order.
func (r *Registry) GenerateMIDI(ctx context.Context, preferred, audioPath, outputDir, stemType string) (*MidiResult, string, error) {
	var lastErr error
	for _, p := range r.midiOrdered(preferred) {
		if !p.Configured() {
			continue
		}
		if !r.allow(p.Name()) {
			continue
		}
		res, err := p.Generate(ctx, audioPath, outputDir, stemType)
		if err != nil {
			slog.Warn("MIDI generation failed", "provider", p.Name(), "stem", stemType, "error", err)
			lastErr = err
			continue
		}
		return res, p.Name(), nil
	}
	if lastErr != nil {
		return nil, "", fmt.Errorf("all MIDI providers failed: %w", lastErr)
	}
	return nil, "", fmt.Errorf("no MIDI provider is configured")
}

func (r *Registry) streamingByName(name string) StreamingProvider {
	for _, p := range r.streaming {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// streamingOrdered sorts providers configured-first, then by ascending
// priority. Equal keys keep registration order (stable sort).
func (r *Registry) streamingOrdered() []StreamingProvider {
	ordered := make([]StreamingProvider, len(r.streaming))
	copy(ordered, r.streaming)
	sort.SliceStable(ordered, func(i, j int) bool {
		ci, cj := ordered[i].Configured(), ordered[j].Configured()
		if ci != cj {
			return ci
		}
		return ordered[i].Priority() < ordered[j].Priority()
	})
	return ordered
}

func (r *Registry) stemOrdered(preferred string) []StemProvider {
	ordered := make([]StemProvider, 0, len(r.stems))
	if preferred != "" {
		if p := r.stemByName(preferred); p != nil && p.Configured() {
			ordered = append(ordered, p)
		}
	}
	for _, p := range r.stems {
		if preferred != "" && p.Name() == preferred && len(ordered) > 0 && ordered[0] == p {
			continue
		}
		ordered = append(ordered, p)
	}
	return ordered
}

func (r *Registry) stemByName(name string) StemProvider {
	for _, p := range r.stems {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func (r *Registry) midiOrdered(preferred string) []MidiProvider {
	ordered := make([]MidiProvider, 0, len(r.midis))
	if preferred != "" {
		if p := r.midiByName(preferred); p != nil && p.Configured() {
			ordered = append(ordered, p)
		}
	}
	for _, p := range r.midis {
		if preferred != "" && p.Name() == preferred && len(ordered) > 0 && ordered[0] == p {
			continue
		}
		ordered = append(ordered, p)
	}
	return ordered
}

func (r *Registry) midiByName(name string) MidiProvider {
	for _, p := range r.midis {
		if p.Name() == name {
			return p
		}
	}
	return nil
}
