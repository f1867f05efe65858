// Package orchestrator drives a job through its processing pipeline:
// identify, acquire, separate, generate MIDI, complete. Each step
// persists its results before the next one starts, so a crashed worker
// can re-run a job and skip the work that already landed on disk.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/imnotfancy/TuneForge-sub000/internal/providers"
	"github.com/imnotfancy/TuneForge-sub000/internal/storage"
	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// ProviderRegistry is the slice of the provider registry the pipeline
// needs. *providers.Registry satisfies it.
type ProviderRegistry interface {
	Identify(ctx context.Context, sourceType, sourceValue string) (*providers.Identification, error)
	AcquireMaster(ctx context.Context, req providers.AcquireRequest) (*providers.DownloadResult, error)
	Separate(ctx context.Context, preferred, audioPath, outputDir string) ([]providers.StemResult, string, error)
	GenerateMIDI(ctx context.Context, preferred, audioPath, outputDir, stemType string) (*providers.MidiResult, string, error)
}

// Orchestrator executes the job state machine against the store and
// filesystem layout.
type Orchestrator struct {
	store     *store.Store
	layout    *storage.Layout
	registry  ProviderRegistry
	retention time.Duration
	logger    *slog.Logger
}

func New(st *store.Store, layout *storage.Layout, registry ProviderRegistry, retention time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		layout:    layout,
		registry:  registry,
		retention: retention,
		logger:    logger,
	}
}

// step is one stage of the pipeline. The handler receives the current
// job snapshot and returns the fields it changed.
type step struct {
	status   string
	progress int
	message  string
	run      func(ctx context.Context, job *store.Job) (*store.JobUpdate, error)
}

func (o *Orchestrator) steps() []step {
	return []step{
		{store.StatusIdentifying, 10, "Identifying track", o.identify},
		{store.StatusAcquiring, 30, "Acquiring master audio", o.acquire},
		{store.StatusSeparating, 60, "Separating stems", o.separate},
		{store.StatusGeneratingMIDI, 90, "Generating MIDI", o.generateMIDI},
	}
}

// Process runs a job through all remaining pipeline steps. Jobs already
// in a terminal state are left untouched, so a duplicate queue delivery
// is harmless.
func (o *Orchestrator) Process(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if store.TerminalStatuses[job.Status] {
		o.logger.Info("skipping terminal job", "job_id", jobID, "status", job.Status)
		return nil
	}

	for _, s := range o.steps() {
		if err := o.store.SetJobStatus(jobID, s.status, s.progress, s.message); err != nil {
			return fmt.Errorf("marking job %s %s: %w", jobID, s.status, err)
		}
		job.Status = s.status
		job.Progress = s.progress

		o.logger.Info("pipeline step", "job_id", jobID, "status", s.status)
		update, err := s.run(ctx, job)
		if err != nil {
			return o.fail(jobID, s.status, err)
		}
		if update != nil {
			if err := o.store.ApplyJobUpdate(jobID, update); err != nil {
				return fmt.Errorf("persisting %s results for job %s: %w", s.status, jobID, err)
			}
			mergeUpdate(job, update)
		}
	}

	return o.complete(jobID)
}

func (o *Orchestrator) complete(jobID string) error {
	expires := time.Now().UTC().Add(o.retention)
	progress := 100
	status := store.StatusCompleted
	message := "Processing complete"
	err := o.store.ApplyJobUpdate(jobID, &store.JobUpdate{
		Status:          &status,
		Progress:        &progress,
		ProgressMessage: &message,
		ExpiresAt:       &expires,
	})
	if err != nil {
		return fmt.Errorf("completing job %s: %w", jobID, err)
	}
	o.logger.Info("job completed", "job_id", jobID, "expires_at", expires)
	return nil
}

// fail moves the job to the failed terminal state. Failed jobs carry an
// expiry too, so their partial artifacts are reaped on the same
// schedule as completed ones.
func (o *Orchestrator) fail(jobID, failedStatus string, cause error) error {
	o.logger.Error("pipeline step failed", "job_id", jobID, "status", failedStatus, "error", cause)

	expires := time.Now().UTC().Add(o.retention)
	progress := 0
	status := store.StatusFailed
	message := "Processing failed"
	errMsg := cause.Error()
	err := o.store.ApplyJobUpdate(jobID, &store.JobUpdate{
		Status:          &status,
		Progress:        &progress,
		ProgressMessage: &message,
		ErrorMessage:    &errMsg,
		ExpiresAt:       &expires,
	})
	if err != nil {
		return fmt.Errorf("failing job %s: %w (original: %v)", jobID, err, cause)
	}
	return cause
}

// mergeUpdate folds applied changes back into the in-memory snapshot so
// later steps see what earlier ones persisted.
func mergeUpdate(job *store.Job, u *store.JobUpdate) {
	if u.Title != nil {
		job.Title = u.Title
	}
	if u.Artist != nil {
		job.Artist = u.Artist
	}
	if u.Album != nil {
		job.Album = u.Album
	}
	if u.AlbumArt != nil {
		job.AlbumArt = u.AlbumArt
	}
	if u.Duration != nil {
		job.Duration = u.Duration
	}
	if u.ISRC != nil {
		job.ISRC = u.ISRC
	}
	if u.SpotifyID != nil {
		job.SpotifyID = u.SpotifyID
	}
	if u.SonglinkData != nil {
		job.SonglinkData = u.SonglinkData
	}
	if u.MasterAudioPath != nil {
		job.MasterAudioPath = u.MasterAudioPath
	}
	if u.MasterAudioFormat != nil {
		job.MasterAudioFormat = u.MasterAudioFormat
	}
	if u.MasterAudioService != nil {
		job.MasterAudioService = u.MasterAudioService
	}
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
}
