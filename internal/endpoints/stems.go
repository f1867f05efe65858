package endpoints

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imnotfancy/TuneForge-sub000/internal/storage"
	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// HandleDownloadStem streams one stem file, either the audio or its
// MIDI transcription depending on ?format=audio|midi.
func HandleDownloadStem(jobs JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := loadJob(c, jobs)
		if !ok {
			return
		}
		if job.Status != store.StatusCompleted {
			fail(c, http.StatusBadRequest, CodeValidation, "Job is not completed")
			return
		}

		asset, err := jobs.GetAssetByStemType(job.ID, c.Param("stem_type"))
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, CodeNotFound, "Stem not found")
			return
		}
		if err != nil {
			slog.Error("Failed to load stem", "job_id", job.ID, "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "Failed to load stem")
			return
		}

		format := c.DefaultQuery("format", "audio")
		switch format {
		case "audio":
			serveFile(c, asset.FilePath, "audio/wav",
				downloadName(job, asset.StemType, ".wav"))
		case "midi":
			if !asset.HasMIDI || asset.MIDIPath == nil {
				fail(c, http.StatusNotFound, CodeNotFound, "No MIDI transcription for this stem")
				return
			}
			serveFile(c, *asset.MIDIPath, "audio/midi",
				downloadName(job, asset.StemType, ".mid"))
		default:
			fail(c, http.StatusBadRequest, CodeValidation, "format must be audio or midi")
		}
	}
}

// HandleDownloadMaster streams the acquired master audio.
func HandleDownloadMaster(jobs JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := loadJob(c, jobs)
		if !ok {
			return
		}
		if job.MasterAudioPath == nil {
			fail(c, http.StatusNotFound, CodeNotFound, "Master audio not available")
			return
		}

		ext := filepath.Ext(*job.MasterAudioPath)
		mime := "audio/flac"
		if ext != ".flac" {
			mime = "application/octet-stream"
		}
		serveFile(c, *job.MasterAudioPath, mime, downloadName(job, "master", ext))
	}
}

// DownloadFile is one entry in the bulk download manifest.
type DownloadFile struct {
	Type      string  `json:"type"`
	AudioPath string  `json:"audio_path"`
	MIDIPath  *string `json:"midi_path,omitempty"`
}

// DownloadManifestResponse is the payload of GET /jobs/{id}/download.
type DownloadManifestResponse struct {
	Title  *string        `json:"title,omitempty"`
	Artist *string        `json:"artist,omitempty"`
	Files  []DownloadFile `json:"files"`
}

// HandleDownloadManifest lists every file a client should fetch for a
// completed job.
func HandleDownloadManifest(jobs JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := loadJob(c, jobs)
		if !ok {
			return
		}
		if job.Status != store.StatusCompleted {
			fail(c, http.StatusBadRequest, CodeValidation, "Job is not completed")
			return
		}

		assets, err := jobs.ListAssets(job.ID)
		if err != nil {
			slog.Error("Failed to list assets", "job_id", job.ID, "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "Failed to load job assets")
			return
		}

		files := make([]DownloadFile, 0, len(assets))
		for _, a := range assets {
			files = append(files, DownloadFile{
				Type:      a.StemType,
				AudioPath: a.FilePath,
				MIDIPath:  a.MIDIPath,
			})
		}
		c.JSON(http.StatusOK, DownloadManifestResponse{
			Title:  job.Title,
			Artist: job.Artist,
			Files:  files,
		})
	}
}

func loadJob(c *gin.Context, jobs JobStore) (*store.Job, bool) {
	job, err := jobs.GetJob(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, CodeNotFound, "Job not found")
		return nil, false
	}
	if err != nil {
		slog.Error("Failed to load job", "job_id", c.Param("id"), "error", err)
		fail(c, http.StatusInternalServerError, CodeInternal, "Failed to load job")
		return nil, false
	}
	return job, true
}

func serveFile(c *gin.Context, path, mime, filename string) {
	if !storage.FileExists(path) {
		fail(c, http.StatusNotFound, CodeNotFound, "File is no longer available")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", mime)
	c.File(path)
}

// downloadName builds the attachment filename from the job title, or
// "track" when the title is unknown.
func downloadName(job *store.Job, suffix, ext string) string {
	base := "track"
	if job.Title != nil && *job.Title != "" {
		base = sanitizeFilename(*job.Title)
	}
	return base + "_" + suffix + ext
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "\"", "_")
	return replacer.Replace(name)
}
