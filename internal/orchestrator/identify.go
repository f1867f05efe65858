package orchestrator

import (
	"context"
	"fmt"

	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// identify resolves the job's source reference to canonical track
// metadata. File uploads skip the resolvers: metadata, if any, came in
// with the request. A job re-run after a crash also skips the step when
// an earlier attempt already cached its results.
func (o *Orchestrator) identify(ctx context.Context, job *store.Job) (*store.JobUpdate, error) {
	if job.SourceType == store.SourceFileUpload {
		return nil, nil
	}
	if identified(job) {
		o.logger.Info("identification cached, skipping", "job_id", job.ID)
		return nil, nil
	}

	id, err := o.registry.Identify(ctx, job.SourceType, job.SourceValue)
	if err != nil {
		return nil, fmt.Errorf("identifying %s %q: %w", job.SourceType, job.SourceValue, err)
	}

	update := &store.JobUpdate{}
	if id.Title != "" {
		update.Title = &id.Title
	}
	if id.Artist != "" {
		update.Artist = &id.Artist
	}
	if id.Album != "" {
		update.Album = &id.Album
	}
	if id.AlbumArt != "" {
		update.AlbumArt = &id.AlbumArt
	}
	if id.Duration > 0 {
		update.Duration = &id.Duration
	}
	if id.ISRC != "" {
		update.ISRC = &id.ISRC
	}
	if id.SpotifyID != "" {
		update.SpotifyID = &id.SpotifyID
	}
	if id.Raw != "" {
		update.SonglinkData = &id.Raw
	}
	return update, nil
}

// identified reports whether a previous run already filled in the
// metadata the rest of the pipeline needs. A missing ISRC means the
// earlier attempt resolved only partially, so the step runs again.
func identified(job *store.Job) bool {
	return notEmpty(job.Title) && notEmpty(job.Artist) &&
		notEmpty(job.ISRC) && notEmpty(job.SonglinkData)
}

func notEmpty(s *string) bool {
	return s != nil && *s != ""
}
