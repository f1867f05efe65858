package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imnotfancy/TuneForge-sub000/internal/config"
	"github.com/imnotfancy/TuneForge-sub000/internal/storage"
	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// stubQueue records dispatched job IDs.
type stubQueue struct {
	enqueued []string
	err      error
}

func (s *stubQueue) Enqueue(ctx context.Context, jobID string) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, jobID)
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store, *storage.Layout, *stubQueue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	layout := storage.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())

	q := &stubQueue{}
	router := gin.New()
	SetupRoutes(router, Deps{Jobs: st, Queue: q, Layout: layout})
	return router, st, layout, q
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHandleCreateJob(t *testing.T) {
	t.Run("creates and dispatches", func(t *testing.T) {
		router, st, _, q := newTestRouter(t)

		w := postJSON(router, "/api/jobs", CreateJobRequest{
			SourceType:  store.SourceSpotifyURL,
			SourceValue: "https://open.spotify.com/track/abc",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var resp CreateJobResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, store.StatusPending, resp.Status)
		assert.Equal(t, []string{resp.ID}, q.enqueued)

		job, err := st.GetJob(resp.ID)
		require.NoError(t, err)
		assert.Equal(t, store.SourceSpotifyURL, job.SourceType)
	})

	t.Run("accepts bare platform IDs", func(t *testing.T) {
		router, _, _, q := newTestRouter(t)

		for _, sourceType := range []string{store.SourceSpotifyID, store.SourceAppleMusicID} {
			w := postJSON(router, "/api/jobs", CreateJobRequest{
				SourceType:  sourceType,
				SourceValue: "123456",
			})
			assert.Equal(t, http.StatusCreated, w.Code, sourceType)
		}
		assert.Len(t, q.enqueued, 2)
	})

	t.Run("rejects unknown source type", func(t *testing.T) {
		router, _, _, q := newTestRouter(t)

		w := postJSON(router, "/api/jobs", CreateJobRequest{
			SourceType:  "file_upload",
			SourceValue: "/etc/passwd",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, q.enqueued)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, CodeValidation, resp.Error)
	})

	t.Run("rejects empty source value", func(t *testing.T) {
		router, _, _, _ := newTestRouter(t)

		w := postJSON(router, "/api/jobs", CreateJobRequest{SourceType: store.SourceISRC})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleListJobs(t *testing.T) {
	router, st, _, _ := newTestRouter(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.CreateJob(&store.Job{ID: id, SourceType: store.SourceISRC, SourceValue: "x"}))
	}

	t.Run("default limit", func(t *testing.T) {
		w := get(router, "/api/jobs")
		require.Equal(t, http.StatusOK, w.Code)

		var resp ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Jobs, 3)
	})

	t.Run("explicit limit", func(t *testing.T) {
		w := get(router, "/api/jobs?limit=2")
		require.Equal(t, http.StatusOK, w.Code)

		var resp ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Jobs, 2)
	})

	t.Run("invalid limit", func(t *testing.T) {
		w := get(router, "/api/jobs?limit=zero")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleGetJob(t *testing.T) {
	router, st, _, _ := newTestRouter(t)

	require.NoError(t, st.CreateJob(&store.Job{ID: "job-1", SourceType: store.SourceISRC, SourceValue: "x"}))
	title := "Song"
	service := "tidal"
	require.NoError(t, st.ApplyJobUpdate("job-1", &store.JobUpdate{
		Title:              &title,
		MasterAudioService: &service,
	}))
	require.NoError(t, st.InsertAsset(&store.Asset{
		ID: "asset-1", JobID: "job-1", StemType: store.StemVocals,
		FilePath: "/stems/job-1/vocals.wav", FileSize: 42,
	}))

	t.Run("found", func(t *testing.T) {
		w := get(router, "/api/jobs/job-1")
		require.Equal(t, http.StatusOK, w.Code)

		var resp JobDetailResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "job-1", resp.ID)
		assert.Equal(t, "Song", *resp.Metadata.Title)
		assert.Equal(t, "tidal", *resp.AudioSource.Service)
		require.Len(t, resp.Stems, 1)
		assert.Equal(t, store.StemVocals, resp.Stems[0].Type)
		assert.Equal(t, int64(42), resp.Stems[0].FileSize)
	})

	t.Run("missing", func(t *testing.T) {
		w := get(router, "/api/jobs/nope")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleUploadJob(t *testing.T) {
	uploadRequest := func(filename string, content []byte) (*bytes.Buffer, string) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		part, _ := w.CreateFormFile("audio", filename)
		part.Write(content)
		w.WriteField("title", "Uploaded Song")
		w.Close()
		return &body, w.FormDataContentType()
	}

	t.Run("stores file and creates job", func(t *testing.T) {
		router, st, layout, q := newTestRouter(t)

		body, contentType := uploadRequest("song.mp3", []byte("mp3 bytes"))
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/jobs/upload", body)
		req.Header.Set("Content-Type", contentType)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code)

		var resp CreateJobResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []string{resp.ID}, q.enqueued)

		job, err := st.GetJob(resp.ID)
		require.NoError(t, err)
		assert.Equal(t, store.SourceFileUpload, job.SourceType)
		assert.Equal(t, "Uploaded Song", *job.Title)
		assert.Equal(t, filepath.Dir(job.SourceValue), layout.UploadsDir())

		saved, err := os.ReadFile(job.SourceValue)
		require.NoError(t, err)
		assert.Equal(t, []byte("mp3 bytes"), saved)
	})

	t.Run("rejects disallowed extension", func(t *testing.T) {
		router, _, _, q := newTestRouter(t)

		body, contentType := uploadRequest("malware.exe", []byte("nope"))
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/jobs/upload", body)
		req.Header.Set("Content-Type", contentType)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, q.enqueued)
	})

	t.Run("rejects missing file", func(t *testing.T) {
		router, _, _, _ := newTestRouter(t)

		w := postJSON(router, "/api/jobs/upload", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects oversize file before creating a job", func(t *testing.T) {
		router, st, _, q := newTestRouter(t)

		origLimit := config.MaxUploadBytes
		config.MaxUploadBytes = 16
		t.Cleanup(func() { config.MaxUploadBytes = origLimit })

		body, contentType := uploadRequest("song.mp3", bytes.Repeat([]byte("x"), 64))
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/jobs/upload", body)
		req.Header.Set("Content-Type", contentType)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, q.enqueued)

		jobs, err := st.ListRecentJobs(10)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestHandleDownloadStem(t *testing.T) {
	seed := func(t *testing.T, router *gin.Engine, st *store.Store, layout *storage.Layout, status string) {
		t.Helper()
		require.NoError(t, st.CreateJob(&store.Job{ID: "job-1", SourceType: store.SourceISRC, SourceValue: "x"}))
		title := "My Song"
		s := status
		require.NoError(t, st.ApplyJobUpdate("job-1", &store.JobUpdate{Status: &s, Title: &title}))

		stemPath := layout.StemPath("job-1", store.StemVocals)
		require.NoError(t, os.MkdirAll(filepath.Dir(stemPath), 0o755))
		require.NoError(t, os.WriteFile(stemPath, []byte("wav bytes"), 0o644))

		midiPath := layout.MidiPath("job-1", store.StemVocals)
		require.NoError(t, os.MkdirAll(filepath.Dir(midiPath), 0o755))
		require.NoError(t, os.WriteFile(midiPath, []byte("midi bytes"), 0o644))

		require.NoError(t, st.InsertAsset(&store.Asset{
			ID: "asset-1", JobID: "job-1", StemType: store.StemVocals, FilePath: stemPath,
		}))
		require.NoError(t, st.SetAssetMIDI("asset-1", midiPath))
	}

	t.Run("streams stem audio", func(t *testing.T) {
		router, st, layout, _ := newTestRouter(t)
		seed(t, router, st, layout, store.StatusCompleted)

		w := get(router, "/api/jobs/job-1/stems/vocals")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "wav bytes", w.Body.String())
		assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "My Song_vocals.wav")
	})

	t.Run("streams midi", func(t *testing.T) {
		router, st, layout, _ := newTestRouter(t)
		seed(t, router, st, layout, store.StatusCompleted)

		w := get(router, "/api/jobs/job-1/stems/vocals?format=midi")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "midi bytes", w.Body.String())
		assert.Equal(t, "audio/midi", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "My Song_vocals.mid")
	})

	t.Run("rejects incomplete job", func(t *testing.T) {
		router, st, layout, _ := newTestRouter(t)
		seed(t, router, st, layout, store.StatusSeparating)

		w := get(router, "/api/jobs/job-1/stems/vocals")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing stem", func(t *testing.T) {
		router, st, layout, _ := newTestRouter(t)
		seed(t, router, st, layout, store.StatusCompleted)

		w := get(router, "/api/jobs/job-1/stems/drums")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("stem file gone from disk", func(t *testing.T) {
		router, st, layout, _ := newTestRouter(t)
		seed(t, router, st, layout, store.StatusCompleted)
		require.NoError(t, os.Remove(layout.StemPath("job-1", store.StemVocals)))

		w := get(router, "/api/jobs/job-1/stems/vocals")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleDownloadMaster(t *testing.T) {
	router, st, layout, _ := newTestRouter(t)

	require.NoError(t, st.CreateJob(&store.Job{ID: "job-1", SourceType: store.SourceISRC, SourceValue: "x"}))

	t.Run("no master yet", func(t *testing.T) {
		w := get(router, "/api/jobs/job-1/master")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("streams master", func(t *testing.T) {
		masterPath := layout.MasterPath("job-1")
		require.NoError(t, os.MkdirAll(filepath.Dir(masterPath), 0o755))
		require.NoError(t, os.WriteFile(masterPath, []byte("flac bytes"), 0o644))
		require.NoError(t, st.ApplyJobUpdate("job-1", &store.JobUpdate{MasterAudioPath: &masterPath}))

		w := get(router, "/api/jobs/job-1/master")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "flac bytes", w.Body.String())
		assert.Equal(t, "audio/flac", w.Header().Get("Content-Type"))
	})
}

func TestHandleDownloadManifest(t *testing.T) {
	router, st, _, _ := newTestRouter(t)

	require.NoError(t, st.CreateJob(&store.Job{ID: "job-1", SourceType: store.SourceISRC, SourceValue: "x"}))
	completed := store.StatusCompleted
	title := "Song"
	require.NoError(t, st.ApplyJobUpdate("job-1", &store.JobUpdate{Status: &completed, Title: &title}))
	require.NoError(t, st.InsertAsset(&store.Asset{
		ID: "asset-1", JobID: "job-1", StemType: store.StemVocals, FilePath: "/stems/job-1/vocals.wav",
	}))
	require.NoError(t, st.SetAssetMIDI("asset-1", "/midi/job-1/vocals.mid"))

	w := get(router, "/api/jobs/job-1/download")
	require.Equal(t, http.StatusOK, w.Code)

	var resp DownloadManifestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Song", *resp.Title)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, store.StemVocals, resp.Files[0].Type)
	require.NotNil(t, resp.Files[0].MIDIPath)
	assert.Equal(t, "/midi/job-1/vocals.mid", *resp.Files[0].MIDIPath)
}

func TestHealth(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	w := get(router, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, Version, resp["version"])

	_, err := time.Parse(time.RFC3339, resp["timestamp"])
	assert.NoError(t, err)
}
