package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imnotfancy/TuneForge-sub000/internal/providers"
	"github.com/imnotfancy/TuneForge-sub000/internal/storage"
	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// fakeRegistry scripts every provider capability for pipeline tests.
type fakeRegistry struct {
	identification *providers.Identification
	identifyErr    error
	identifyCalls  int

	acquireResult *providers.DownloadResult
	acquireErr    error
	acquireCalls  int

	stems         []providers.StemResult
	separateErr   error
	separateCalls int

	midiErr   error
	midiCalls int
}

func (f *fakeRegistry) Identify(ctx context.Context, sourceType, sourceValue string) (*providers.Identification, error) {
	f.identifyCalls++
	return f.identification, f.identifyErr
}

func (f *fakeRegistry) AcquireMaster(ctx context.Context, req providers.AcquireRequest) (*providers.DownloadResult, error) {
	f.acquireCalls++
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	res := *f.acquireResult
	if res.Path == "" {
		res.Path = req.OutputPath
	}
	return &res, nil
}

func (f *fakeRegistry) Separate(ctx context.Context, preferred, audioPath, outputDir string) ([]providers.StemResult, string, error) {
	f.separateCalls++
	if f.separateErr != nil {
		return nil, "", f.separateErr
	}
	return f.stems, "lalal", nil
}

func (f *fakeRegistry) GenerateMIDI(ctx context.Context, preferred, audioPath, outputDir, stemType string) (*providers.MidiResult, string, error) {
	f.midiCalls++
	if f.midiErr != nil {
		return nil, "", f.midiErr
	}
	return &providers.MidiResult{MidiPath: filepath.Join(outputDir, stemType+".mid")}, "basic_pitch", nil
}

func newTestOrchestrator(t *testing.T, reg *fakeRegistry) (*Orchestrator, *store.Store, *storage.Layout) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	layout := storage.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(st, layout, reg, 24*time.Hour, logger), st, layout
}

func tonalAndDrumStems() []providers.StemResult {
	return []providers.StemResult{
		{StemType: store.StemVocals, FilePath: "/stems/vocals.wav", FileSize: 10},
		{StemType: store.StemDrums, FilePath: "/stems/drums.wav", FileSize: 20},
		{StemType: store.StemBass, FilePath: "/stems/bass.wav", FileSize: 30},
	}
}

func TestProcessHappyPath(t *testing.T) {
	reg := &fakeRegistry{
		identification: &providers.Identification{
			Title: "Song", Artist: "Artist", ISRC: "USRC17607839", Raw: `{"linksByPlatform":{}}`,
		},
		acquireResult: &providers.DownloadResult{Format: "FLAC", Quality: "LOSSLESS", Service: "tidal"},
		stems:         tonalAndDrumStems(),
	}
	orch, st, _ := newTestOrchestrator(t, reg)

	require.NoError(t, st.CreateJob(&store.Job{
		ID: "job-1", SourceType: store.SourceSpotifyURL, SourceValue: "https://open.spotify.com/track/x",
	}))

	require.NoError(t, orch.Process(context.Background(), "job-1"))

	job, err := st.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "Song", *job.Title)
	assert.Equal(t, "tidal", *job.MasterAudioService)
	require.NotNil(t, job.ExpiresAt)
	assert.True(t, job.ExpiresAt.After(time.Now().UTC().Add(23*time.Hour)))

	assets, err := st.ListAssets("job-1")
	require.NoError(t, err)
	assert.Len(t, assets, 3)

	// vocals and bass are tonal, drums are not
	assert.Equal(t, 2, reg.midiCalls)
	vocals, err := st.GetAssetByStemType("job-1", store.StemVocals)
	require.NoError(t, err)
	assert.True(t, vocals.HasMIDI)
	drums, err := st.GetAssetByStemType("job-1", store.StemDrums)
	require.NoError(t, err)
	assert.False(t, drums.HasMIDI)
}

func TestProcessAcquisitionUnavailable(t *testing.T) {
	reg := &fakeRegistry{
		identification: &providers.Identification{Title: "Song", Artist: "Artist", Raw: "{}"},
		acquireErr:     providers.ErrNoStreamingProvider,
	}
	orch, st, _ := newTestOrchestrator(t, reg)

	require.NoError(t, st.CreateJob(&store.Job{
		ID: "job-1", SourceType: store.SourceISRC, SourceValue: "USRC17607839",
	}))

	err := orch.Process(context.Background(), "job-1")
	require.ErrorIs(t, err, providers.ErrNoStreamingProvider)

	job, getErr := st.GetJob("job-1")
	require.NoError(t, getErr)
	assert.Equal(t, store.StatusFailed, job.Status)
	assert.Equal(t, 0, job.Progress)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "configure Tidal, Deezer, or Qobuz")
	assert.NotNil(t, job.ExpiresAt)

	// identification results survive the failure
	assert.Equal(t, "Song", *job.Title)
	assert.Equal(t, 0, reg.separateCalls)
}

func TestProcessSkipsTerminalJob(t *testing.T) {
	reg := &fakeRegistry{}
	orch, st, _ := newTestOrchestrator(t, reg)

	require.NoError(t, st.CreateJob(&store.Job{
		ID: "job-1", SourceType: store.SourceISRC, SourceValue: "x",
	}))
	completed := store.StatusCompleted
	require.NoError(t, st.ApplyJobUpdate("job-1", &store.JobUpdate{Status: &completed}))

	require.NoError(t, orch.Process(context.Background(), "job-1"))
	assert.Equal(t, 0, reg.identifyCalls)
	assert.Equal(t, 0, reg.acquireCalls)
}

func TestProcessUploadJob(t *testing.T) {
	reg := &fakeRegistry{stems: tonalAndDrumStems()}
	orch, st, layout := newTestOrchestrator(t, reg)

	uploadPath := layout.UploadPath("u-1", ".mp3")
	require.NoError(t, os.WriteFile(uploadPath, []byte("mp3 bytes"), 0o644))

	require.NoError(t, st.CreateJob(&store.Job{
		ID: "job-1", SourceType: store.SourceFileUpload, SourceValue: uploadPath,
		Title: strPtr("My Upload"),
	}))

	require.NoError(t, orch.Process(context.Background(), "job-1"))

	job, err := st.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, job.Status)
	assert.Equal(t, uploadPath, *job.MasterAudioPath)
	assert.Equal(t, "MP3", *job.MasterAudioFormat)
	assert.Equal(t, "upload", *job.MasterAudioService)

	// uploads never hit the resolvers or streaming providers
	assert.Equal(t, 0, reg.identifyCalls)
	assert.Equal(t, 0, reg.acquireCalls)
}

func TestProcessReRunSkipsCompletedSteps(t *testing.T) {
	reg := &fakeRegistry{
		identification: &providers.Identification{Title: "Song", Artist: "Artist", Raw: "{}"},
		acquireResult:  &providers.DownloadResult{Format: "WAV", Service: "tidal"},
		stems:          tonalAndDrumStems(),
	}
	orch, st, layout := newTestOrchestrator(t, reg)

	// The first attempt got through identification and acquisition before
	// the process died.
	require.NoError(t, st.CreateJob(&store.Job{
		ID: "job-1", SourceType: store.SourceSpotifyURL, SourceValue: "https://open.spotify.com/track/x",
	}))
	masterPath := layout.MasterPath("job-1")
	require.NoError(t, os.MkdirAll(filepath.Dir(masterPath), 0o755))
	require.NoError(t, os.WriteFile(masterPath, []byte("flac bytes"), 0o644))
	require.NoError(t, st.ApplyJobUpdate("job-1", &store.JobUpdate{
		Title:           strPtr("Song"),
		Artist:          strPtr("Artist"),
		ISRC:            strPtr("USRC17607839"),
		SonglinkData:    strPtr("{}"),
		MasterAudioPath: &masterPath,
	}))
	require.NoError(t, st.SetJobStatus("job-1", store.StatusAcquiring, 30, "Acquiring master audio"))

	require.NoError(t, orch.Process(context.Background(), "job-1"))

	assert.Equal(t, 0, reg.identifyCalls)
	assert.Equal(t, 0, reg.acquireCalls)
	assert.Equal(t, 1, reg.separateCalls)

	job, err := st.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, job.Status)
}

func TestProcessReRunRetriesPartialIdentification(t *testing.T) {
	reg := &fakeRegistry{
		identification: &providers.Identification{
			Title: "Song", Artist: "Artist", ISRC: "USRC17607839", Raw: `{"linksByPlatform":{}}`,
		},
		acquireResult: &providers.DownloadResult{Format: "FLAC", Service: "tidal"},
		stems:         tonalAndDrumStems(),
	}
	orch, st, _ := newTestOrchestrator(t, reg)

	// The first attempt cached title and artist but never resolved an
	// ISRC, so the re-run must identify again rather than skip.
	require.NoError(t, st.CreateJob(&store.Job{
		ID: "job-1", SourceType: store.SourceSpotifyURL, SourceValue: "https://open.spotify.com/track/x",
	}))
	require.NoError(t, st.ApplyJobUpdate("job-1", &store.JobUpdate{
		Title:        strPtr("Song"),
		Artist:       strPtr("Artist"),
		SonglinkData: strPtr("{}"),
	}))
	require.NoError(t, st.SetJobStatus("job-1", store.StatusIdentifying, 10, "Identifying track"))

	require.NoError(t, orch.Process(context.Background(), "job-1"))

	assert.Equal(t, 1, reg.identifyCalls)

	job, err := st.GetJob("job-1")
	require.NoError(t, err)
	require.NotNil(t, job.ISRC)
	assert.Equal(t, "USRC17607839", *job.ISRC)
	assert.Equal(t, store.StatusCompleted, job.Status)
}

func TestProcessPartialMIDIIsNotTerminal(t *testing.T) {
	reg := &fakeRegistry{
		identification: &providers.Identification{Title: "Song", Artist: "Artist", Raw: "{}"},
		acquireResult:  &providers.DownloadResult{Format: "WAV", Service: "deezer"},
		stems:          tonalAndDrumStems(),
		midiErr:        assert.AnError,
	}
	orch, st, _ := newTestOrchestrator(t, reg)

	require.NoError(t, st.CreateJob(&store.Job{
		ID: "job-1", SourceType: store.SourceSpotifyURL, SourceValue: "https://open.spotify.com/track/x",
	}))

	require.NoError(t, orch.Process(context.Background(), "job-1"))

	job, err := st.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, job.Status)

	vocals, err := st.GetAssetByStemType("job-1", store.StemVocals)
	require.NoError(t, err)
	assert.False(t, vocals.HasMIDI)
}

func strPtr(s string) *string { return &s }
