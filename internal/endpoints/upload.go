package endpoints

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imnotfancy/TuneForge-sub000/internal/config"
	"github.com/imnotfancy/TuneForge-sub000/internal/storage"
	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// HandleUploadJob accepts an audio file and creates a file_upload job
// for it. The file lands under the uploads area keyed by a fresh UUID;
// the job's source_value is the stored path.
func HandleUploadJob(jobs JobStore, jobQueue JobQueue, layout *storage.Layout) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("audio")
		if err != nil {
			fail(c, http.StatusBadRequest, CodeValidation, "Missing audio file")
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !config.AllowedUploadExtensions[ext] {
			fail(c, http.StatusBadRequest, CodeValidation,
				fmt.Sprintf("Unsupported file type %q", ext))
			return
		}
		if header.Size > config.MaxUploadBytes {
			fail(c, http.StatusBadRequest, CodeValidation,
				fmt.Sprintf("File exceeds the %d MiB limit", config.MaxUploadBytes>>20))
			return
		}

		uploadID := uuid.NewString()
		destPath := layout.UploadPath(uploadID, ext)
		if err := saveUpload(file, destPath); err != nil {
			slog.Error("Failed to store upload", "error", err)
			fail(c, http.StatusInternalServerError, CodeInternal, "Failed to store uploaded file")
			return
		}

		job := &store.Job{
			ID:          uuid.NewString(),
			SourceType:  store.SourceFileUpload,
			SourceValue: destPath,
			Title:       optionalField(c, "title"),
			Artist:      optionalField(c, "artist"),
			Album:       optionalField(c, "album"),
		}
		if err := jobs.CreateJob(job); err != nil {
			slog.Error("Failed to create upload job", "error", err)
			os.Remove(destPath)
			fail(c, http.StatusInternalServerError, CodeInternal, "Failed to create job")
			return
		}
		if err := jobQueue.Enqueue(c.Request.Context(), job.ID); err != nil {
			slog.Error("Failed to enqueue upload job", "job_id", job.ID, "error", err)
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

func saveUpload(src io.Reader, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	defer dest.Close()
	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("write upload file: %w", err)
	}
	return nil
}

func optionalField(c *gin.Context, name string) *string {
	if v := c.PostForm(name); v != "" {
		return &v
	}
	return nil
}
