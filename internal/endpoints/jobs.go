package endpoints

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imnotfancy/TuneForge-sub000/internal/config"
	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// JobStore is the slice of the store the job handlers need.
type JobStore interface {
	CreateJob(job *store.Job) error
	GetJob(id string) (*store.Job, error)
	ListRecentJobs(limit int) ([]*store.Job, error)
	ListAssets(jobID string) ([]*store.Asset, error)
	GetAssetByStemType(jobID, stemType string) (*store.Asset, error)
}

// JobQueue dispatches created jobs to the worker.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

var createSourceTypes = map[string]bool{
	store.SourceSpotifyURL:   true,
	store.SourceAudioURL:     true,
	store.SourceISRC:         true,
	store.SourceSpotifyID:    true,
	store.SourceAppleMusicID: true,
}

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	SourceType  string  `json:"source_type"`
	SourceValue string  `json:"source_value"`
	Title       *string `json:"title,omitempty"`
	Artist      *string `json:"artist,omitempty"`
	Album       *string `json:"album,omitempty"`
}

// CreateJobResponse is the 201 payload for job creation.
type CreateJobResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleCreateJob inserts a pending job and hands it to the worker. The
// response returns as soon as the row exists and the dispatch is queued;
// the pipeline never blocks the request.
func HandleCreateJob(jobs JobStore, jobQueue JobQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, CodeValidation, "Invalid request body")
			return
		}
		if !createSourceTypes[req.SourceType] {
			fail(c, http.StatusBadRequest, CodeValidation, "Unsupported source_type")
			return
		}
		if req.SourceValue == "" {
			fail(c, http.StatusBadRequest, CodeValidation, "source_value is required")
			return
		}

		job := &store.Job{
			ID:          uuid.NewString(),
			SourceType:  req.SourceType,
			SourceValue: req.SourceValue,
			Title:       req.Title,
			Artist:      req.Artist,
			Album:       req.Album,
		}
		if err := jobs.CreateJob(job); err != nil {
			slog.Error("Failed to create job", "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "Failed to create job")
			return
		}
		if err := jobQueue.Enqueue(c.Request.Context(), job.ID); err != nil {
			slog.Error("Failed to enqueue job", "job_id", job.ID, "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "Failed to dispatch job")
			return
		}

		c.JSON(http.StatusCreated, CreateJobResponse{
			ID:        job.ID,
			Status:    job.Status,
			CreatedAt: job.CreatedAt,
		})
	}
}

// JobSummary is one row of the job listing.
type JobSummary struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	Title           *string   `json:"title,omitempty"`
	Artist          *string   `json:"artist,omitempty"`
	Album           *string   `json:"album,omitempty"`
	AlbumArt        *string   `json:"album_art,omitempty"`
	Progress        int       `json:"progress"`
	ProgressMessage *string   `json:"progress_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListJobsResponse is the payload of GET /jobs.
type ListJobsResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// HandleListJobs returns recent jobs, newest first.
func HandleListJobs(jobs JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := config.DefaultJobListLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				fail(c, http.StatusBadRequest, CodeValidation, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		list, err := jobs.ListRecentJobs(limit)
		if err != nil {
			slog.Error("Failed to list jobs", "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "Failed to list jobs")
			return
		}

		summaries := make([]JobSummary, 0, len(list))
		for _, job := range list {
			summaries = append(summaries, JobSummary{
				ID:              job.ID,
				Status:          job.Status,
				Title:           job.Title,
				Artist:          job.Artist,
				Album:           job.Album,
				AlbumArt:        job.AlbumArt,
				Progress:        job.Progress,
				ProgressMessage: job.ProgressMessage,
				CreatedAt:       job.CreatedAt,
				UpdatedAt:       job.UpdatedAt,
			})
		}
		c.JSON(http.StatusOK, ListJobsResponse{Jobs: summaries})
	}
}

// JobMetadata is the identified track metadata in the job detail.
type JobMetadata struct {
	Title    *string `json:"title,omitempty"`
	Artist   *string `json:"artist,omitempty"`
	Album    *string `json:"album,omitempty"`
	AlbumArt *string `json:"album_art,omitempty"`
	Duration *int    `json:"duration,omitempty"`
	ISRC     *string `json:"isrc,omitempty"`
}

// AudioSource describes where the master audio came from.
type AudioSource struct {
	Format  *string `json:"format,omitempty"`
	Service *string `json:"service,omitempty"`
}

// StemSummary is one stem in the job detail.
type StemSummary struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	HasMIDI  bool   `json:"has_midi"`
	FileSize int64  `json:"file_size"`
}

// JobDetailResponse is the payload of GET /jobs/{id}.
type JobDetailResponse struct {
	ID              string        `json:"id"`
	Status          string        `json:"status"`
	Progress        int           `json:"progress"`
	ProgressMessage *string       `json:"progress_message,omitempty"`
	Metadata        JobMetadata   `json:"metadata"`
	AudioSource     AudioSource   `json:"audio_source"`
	Stems           []StemSummary `json:"stems"`
	Error           *string       `json:"error,omitempty"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// HandleGetJob returns one job with its stems.
func HandleGetJob(jobs JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := jobs.GetJob(c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, CodeNotFound, "Job not found")
			return
		}
		if err != nil {
			slog.Error("Failed to load job", "job_id", c.Param("id"), "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "Failed to load job")
			return
		}

		assets, err := jobs.ListAssets(job.ID)
		if err != nil {
			slog.Error("Failed to list assets", "job_id", job.ID, "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "Failed to load job assets")
			return
		}

		stems := make([]StemSummary, 0, len(assets))
		for _, a := range assets {
			stems = append(stems, StemSummary{
				ID:       a.ID,
				Type:     a.StemType,
				HasMIDI:  a.HasMIDI,
				FileSize: a.FileSize,
			})
		}

		c.JSON(http.StatusOK, JobDetailResponse{
			ID:              job.ID,
			Status:          job.Status,
			Progress:        job.Progress,
			ProgressMessage: job.ProgressMessage,
			Metadata: JobMetadata{
				Title:    job.Title,
				Artist:   job.Artist,
				Album:    job.Album,
				AlbumArt: job.AlbumArt,
				Duration: job.Duration,
				ISRC:     job.ISRC,
			},
			AudioSource: AudioSource{
				Format:  job.MasterAudioFormat,
				Service: job.MasterAudioService,
			},
			Stems:     stems,
			Error:     job.ErrorMessage,
			ExpiresAt: job.ExpiresAt,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		})
	}
}
