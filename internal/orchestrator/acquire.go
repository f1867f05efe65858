package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/imnotfancy/TuneForge-sub000/internal/flactag"
	"github.com/imnotfancy/TuneForge-sub000/internal/providers"
	"github.com/imnotfancy/TuneForge-sub000/internal/storage"
	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// acquire obtains the master audio file for the job. Upload jobs
// already hold their audio; every other source goes through the
// streaming provider selection. A master left behind by an interrupted
// run is reused as-is.
func (o *Orchestrator) acquire(ctx context.Context, job *store.Job) (*store.JobUpdate, error) {
	if job.MasterAudioPath != nil && storage.FileExists(*job.MasterAudioPath) {
		o.logger.Info("master audio present, skipping acquisition", "job_id", job.ID, "path", *job.MasterAudioPath)
		return nil, nil
	}

	if job.SourceType == store.SourceFileUpload {
		return o.acquireFromUpload(job)
	}

	req := providers.AcquireRequest{
		OutputPath: o.layout.MasterPath(job.ID),
	}
	if job.ISRC != nil {
		req.ISRC = *job.ISRC
	}
	if job.SonglinkData != nil {
		req.PlatformIDs = providers.PlatformIDsFromSonglink(*job.SonglinkData)
	}

	result, err := o.registry.AcquireMaster(ctx, req)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(result.Format, "flac") {
		o.tagMaster(job, result.Path)
	}

	return &store.JobUpdate{
		MasterAudioPath:    &result.Path,
		MasterAudioFormat:  &result.Format,
		MasterAudioService: &result.Service,
	}, nil
}

// acquireFromUpload points the job at the file the ingress API saved.
func (o *Orchestrator) acquireFromUpload(job *store.Job) (*store.JobUpdate, error) {
	path := job.SourceValue
	if !storage.FileExists(path) {
		return nil, fmt.Errorf("uploaded file %s is missing or empty", path)
	}

	format := strings.ToUpper(strings.TrimPrefix(filepath.Ext(path), "."))
	if format == "" {
		format = "UNKNOWN"
	}
	service := "upload"
	return &store.JobUpdate{
		MasterAudioPath:    &path,
		MasterAudioFormat:  &format,
		MasterAudioService: &service,
	}, nil
}

// tagMaster embeds the identified metadata into the downloaded FLAC.
// Tagging is best effort: a bad or partial download surfaces later, a
// tagging failure alone never fails the job.
func (o *Orchestrator) tagMaster(job *store.Job, path string) {
	tag := flactag.Tag{}
	if job.Title != nil {
		tag.Title = *job.Title
	}
	if job.Artist != nil {
		tag.Artist = *job.Artist
	}
	if job.Album != nil {
		tag.Album = *job.Album
	}
	if job.ISRC != nil {
		tag.ISRC = *job.ISRC
	}
	coverURL := ""
	if job.AlbumArt != nil {
		coverURL = *job.AlbumArt
	}
	if err := flactag.Embed(path, tag, coverURL); err != nil {
		o.logger.Warn("tagging master failed", "job_id", job.ID, "error", err)
	}
}
