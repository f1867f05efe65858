// Package reaper removes expired jobs and their on-disk artifacts.
package reaper

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/imnotfancy/TuneForge-sub000/internal/storage"
	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// Reaper periodically deletes jobs past their expiry, along with every
// file they own. Files go before rows: if a filesystem delete fails the
// row stays and the next cycle retries.
type Reaper struct {
	store       *store.Store
	layout      *storage.Layout
	interval    time.Duration
	activeGrace time.Duration
	logger      *slog.Logger
}

func New(st *store.Store, layout *storage.Layout, interval, activeGrace time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:       st,
		layout:      layout,
		interval:    interval,
		activeGrace: activeGrace,
		logger:      logger,
	}
}

// Run reaps on a fixed interval until the context is cancelled. One
// cycle runs immediately at startup.
func (r *Reaper) Run(ctx context.Context) {
	r.RunOnce(time.Now())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.RunOnce(now)
		}
	}
}

// RunOnce reaps every job expired as of now. Jobs updated within the
// active grace window are left alone even when expired, so a job being
// re-processed right at its expiry is never deleted underneath the
// worker.
func (r *Reaper) RunOnce(now time.Time) {
	jobs, err := r.store.ListExpiredJobs(now)
	if err != nil {
		r.logger.Error("listing expired jobs", "error", err)
		return
	}

	reaped := 0
	for _, job := range jobs {
		if now.Sub(job.UpdatedAt) < r.activeGrace {
			r.logger.Info("skipping recently active expired job", "job_id", job.ID)
			continue
		}
		if err := r.reap(job); err != nil {
			r.logger.Error("reaping job", "job_id", job.ID, "error", err)
			continue
		}
		reaped++
	}
	if reaped > 0 {
		r.logger.Info("reap cycle complete", "reaped", reaped)
	}
}

func (r *Reaper) reap(job *store.Job) error {
	if err := r.layout.RemoveJob(job.ID); err != nil {
		return err
	}
	if job.SourceType == store.SourceFileUpload {
		if err := os.Remove(job.SourceValue); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	// Asset rows cascade with the job row.
	return r.store.DeleteJob(job.ID)
}
