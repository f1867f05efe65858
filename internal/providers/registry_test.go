package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

type fakeStreaming struct {
	name       string
	priority   int
	configured bool

	searchResult string
	searchErr    error
	downloadErr  error

	searched   []string
	downloaded []string
}

func (f *fakeStreaming) Name() string                { return f.name }
func (f *fakeStreaming) Priority() int               { return f.priority }
func (f *fakeStreaming) Configured() bool            { return f.configured }
func (f *fakeStreaming) Configure(creds Credentials) { f.configured = true }

func (f *fakeStreaming) SearchByISRC(ctx context.Context, isrc string) (string, error) {
	f.searched = append(f.searched, isrc)
	if f.searchErr != nil {
		return "", f.searchErr
	}
	return f.searchResult, nil
}

func (f *fakeStreaming) GetTrackInfo(ctx context.Context, trackID string) (*TrackInfo, error) {
	return &TrackInfo{ID: trackID}, nil
}

func (f *fakeStreaming) DownloadTrack(ctx context.Context, trackID, outputPath string) (*DownloadResult, error) {
	f.downloaded = append(f.downloaded, trackID)
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return &DownloadResult{Path: outputPath, Format: "FLAC", Service: f.name}, nil
}

type fakeStem struct {
	name       string
	configured bool
	results    []StemResult
	err        error
	calls      int
}

func (f *fakeStem) Name() string                { return f.name }
func (f *fakeStem) Configured() bool            { return f.configured }
func (f *fakeStem) Configure(creds Credentials) { f.configured = true }

func (f *fakeStem) Separate(ctx context.Context, audioPath, outputDir string) ([]StemResult, error) {
	f.calls++
	return f.results, f.err
}

type fakeIdentifier struct {
	name    string
	sources map[string]bool
	result  *Identification
	err     error
}

func (f *fakeIdentifier) Name() string                 { return f.name }
func (f *fakeIdentifier) Supports(sourceType string) bool { return f.sources[sourceType] }
func (f *fakeIdentifier) Identify(ctx context.Context, sourceType, sourceValue string) (*Identification, error) {
	return f.result, f.err
}

func TestIdentifyDispatchesBySourceType(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterIdentifier(&fakeIdentifier{
		name:    "wrong",
		sources: map[string]bool{"spotify_id": true},
		result:  &Identification{Title: "Wrong"},
	})
	r.RegisterIdentifier(&fakeIdentifier{
		name:    "right",
		sources: map[string]bool{"spotify_url": true},
		result:  &Identification{Title: "Right"},
	})

	id, err := r.Identify(context.Background(), "spotify_url", "https://open.spotify.com/track/x")
	require.NoError(t, err)
	assert.Equal(t, "Right", id.Title)

	_, err = r.Identify(context.Background(), "isrc", "USRC17607839")
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestIdentifyFallsThroughOnError(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterIdentifier(&fakeIdentifier{
		name:    "flaky",
		sources: map[string]bool{"isrc": true},
		err:     errors.New("boom"),
	})
	r.RegisterIdentifier(&fakeIdentifier{
		name:    "solid",
		sources: map[string]bool{"isrc": true},
		result:  &Identification{Title: "Found"},
	})

	id, err := r.Identify(context.Background(), "isrc", "USRC17607839")
	require.NoError(t, err)
	assert.Equal(t, "Found", id.Title)
}

func TestAcquireMasterPrefersNativeID(t *testing.T) {
	tidal := &fakeStreaming{name: "tidal", priority: 1, configured: true}
	deezer := &fakeStreaming{name: "deezer", priority: 2, configured: true}

	r := NewRegistry(nil)
	r.RegisterStreaming(tidal)
	r.RegisterStreaming(deezer)

	res, err := r.AcquireMaster(context.Background(), AcquireRequest{
		ISRC:        "USRC17607839",
		PlatformIDs: map[string]string{"tidal": "t-1", "deezer": "d-1"},
		OutputPath:  "/tmp/master.flac",
	})
	require.NoError(t, err)
	assert.Equal(t, "tidal", res.Service)
	assert.Equal(t, []string{"t-1"}, tidal.downloaded)
	assert.Empty(t, tidal.searched)
	assert.Empty(t, deezer.downloaded)
}

func TestAcquireMasterISRCOrdering(t *testing.T) {
	// Qobuz is configured despite its lower static priority, so it must be
	// tried before the unconfigured higher-priority providers.
	tidal := &fakeStreaming{name: "tidal", priority: 1, searchErr: ErrTrackNotFound}
	deezer := &fakeStreaming{name: "deezer", priority: 2, searchErr: ErrTrackNotFound}
	qobuz := &fakeStreaming{name: "qobuz", priority: 3, configured: true, searchResult: "q-1"}

	r := NewRegistry(nil)
	r.RegisterStreaming(tidal)
	r.RegisterStreaming(deezer)
	r.RegisterStreaming(qobuz)

	res, err := r.AcquireMaster(context.Background(), AcquireRequest{
		ISRC:       "USRC17607839",
		OutputPath: "/tmp/master.flac",
	})
	require.NoError(t, err)
	assert.Equal(t, "qobuz", res.Service)
	assert.Equal(t, []string{"q-1"}, qobuz.downloaded)
}

func TestAcquireMasterUnconfiguredNeverDownloads(t *testing.T) {
	// Deezer's public search resolves the track, but without credentials the
	// download must not be attempted.
	deezer := &fakeStreaming{name: "deezer", priority: 2, searchResult: "d-1"}

	r := NewRegistry(nil)
	r.RegisterStreaming(deezer)

	_, err := r.AcquireMaster(context.Background(), AcquireRequest{
		ISRC:       "USRC17607839",
		OutputPath: "/tmp/master.flac",
	})
	assert.ErrorIs(t, err, ErrNoStreamingProvider)
	assert.Equal(t, []string{"USRC17607839"}, deezer.searched)
	assert.Empty(t, deezer.downloaded)
}

func TestAcquireMasterDownloadFailureFallsThrough(t *testing.T) {
	tidal := &fakeStreaming{name: "tidal", priority: 1, configured: true,
		searchResult: "t-1", downloadErr: errors.New("stream revoked")}
	deezer := &fakeStreaming{name: "deezer", priority: 2, configured: true, searchResult: "d-1"}

	r := NewRegistry(nil)
	r.RegisterStreaming(tidal)
	r.RegisterStreaming(deezer)

	res, err := r.AcquireMaster(context.Background(), AcquireRequest{
		ISRC:       "USRC17607839",
		OutputPath: "/tmp/master.flac",
	})
	require.NoError(t, err)
	assert.Equal(t, "deezer", res.Service)
}

func TestAcquireMasterNoISRCNoNativeID(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterStreaming(&fakeStreaming{name: "tidal", priority: 1, configured: true})

	_, err := r.AcquireMaster(context.Background(), AcquireRequest{OutputPath: "/tmp/m.flac"})
	assert.ErrorIs(t, err, ErrNoStreamingProvider)
}

func TestSeparatePreferredFirst(t *testing.T) {
	lalal := &fakeStem{name: "lalal", configured: true,
		results: []StemResult{{StemType: "vocals", FilePath: "/s/vocals.wav"}}}
	fadr := &fakeStem{name: "fadr", configured: true,
		results: []StemResult{{StemType: "vocals", FilePath: "/s/vocals.wav"}}}

	r := NewRegistry(nil)
	r.RegisterStem(lalal)
	r.RegisterStem(fadr)

	_, provider, err := r.Separate(context.Background(), "fadr", "/m.flac", "/s")
	require.NoError(t, err)
	assert.Equal(t, "fadr", provider)
	assert.Equal(t, 0, lalal.calls)
}

func TestSeparateFallsBack(t *testing.T) {
	lalal := &fakeStem{name: "lalal", configured: true, err: errors.New("quota exceeded")}
	fadr := &fakeStem{name: "fadr", configured: true,
		results: []StemResult{{StemType: "drums", FilePath: "/s/drums.wav"}}}

	r := NewRegistry(nil)
	r.RegisterStem(lalal)
	r.RegisterStem(fadr)

	results, provider, err := r.Separate(context.Background(), "", "/m.flac", "/s")
	require.NoError(t, err)
	assert.Equal(t, "fadr", provider)
	assert.Len(t, results, 1)
}

func TestSeparateAllFail(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterStem(&fakeStem{name: "lalal", configured: true, err: errors.New("quota exceeded")})

	_, _, err := r.Separate(context.Background(), "", "/m.flac", "/s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all stem providers failed")
}

func TestSeparateNoneConfigured(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterStem(&fakeStem{name: "lalal"})

	_, _, err := r.Separate(context.Background(), "", "/m.flac", "/s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stem separation provider is configured")
}

func TestRegistryHonorsPersistedConfig(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	t.Run("disabled provider is skipped", func(t *testing.T) {
		require.NoError(t, st.UpsertProviderConfig(&store.ProviderConfig{
			ServiceName: "lalal",
			IsEnabled:   false,
		}))

		lalal := &fakeStem{name: "lalal", configured: true,
			results: []StemResult{{StemType: "vocals"}}}
		r := NewRegistry(st)
		r.RegisterStem(lalal)

		_, _, err := r.Separate(context.Background(), "", "/m.flac", "/s")
		require.Error(t, err)
		assert.Equal(t, 0, lalal.calls)
	})

	t.Run("persisted credentials configure the provider", func(t *testing.T) {
		key := "client-id"
		secret := "client-secret"
		require.NoError(t, st.UpsertProviderConfig(&store.ProviderConfig{
			ServiceName: "tidal",
			APIKey:      &key,
			APISecret:   &secret,
			IsEnabled:   true,
		}))

		tidal := &fakeStreaming{name: "tidal", priority: 1}
		r := NewRegistry(st)
		r.RegisterStreaming(tidal)
		assert.True(t, tidal.configured)
	})

	t.Run("exhausted window skips the provider", func(t *testing.T) {
		limit := 1
		window := 3600
		require.NoError(t, st.UpsertProviderConfig(&store.ProviderConfig{
			ServiceName: "fadr",
			IsEnabled:   true,
			RateLimit:   &limit,
			RateWindow:  &window,
		}))
		require.NoError(t, st.BumpProviderUsage("fadr", time.Hour, time.Now().UTC()))

		fadr := &fakeStem{name: "fadr", configured: true,
			results: []StemResult{{StemType: "vocals"}}}
		r := NewRegistry(st)
		r.RegisterStem(fadr)

		_, _, err := r.Separate(context.Background(), "", "/m.flac", "/s")
		require.Error(t, err)
		assert.Equal(t, 0, fadr.calls)
	})
}
