package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// separate splits the master into stems and records one asset per stem.
// A job that already has stem assets on record skips separation
// entirely, so re-running a job never pays for a second split.
func (o *Orchestrator) separate(ctx context.Context, job *store.Job) (*store.JobUpdate, error) {
	existing, err := o.store.ListAssets(job.ID)
	if err != nil {
		return nil, fmt.Errorf("listing assets for job %s: %w", job.ID, err)
	}
	if len(existing) > 0 {
		o.logger.Info("stem assets present, skipping separation", "job_id", job.ID, "count", len(existing))
		return nil, nil
	}

	if job.MasterAudioPath == nil {
		return nil, fmt.Errorf("job %s has no master audio to separate", job.ID)
	}

	results, provider, err := o.registry.Separate(ctx, "", *job.MasterAudioPath, o.layout.StemDir(job.ID))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("separation produced no stems for job %s", job.ID)
	}

	expires := time.Now().UTC().Add(o.retention)
	for _, r := range results {
		asset := &store.Asset{
			ID:        uuid.NewString(),
			JobID:     job.ID,
			Type:      store.AssetTypeStem,
			StemType:  r.StemType,
			FilePath:  r.FilePath,
			FileSize:  r.FileSize,
			Provider:  &provider,
			ExpiresAt: &expires,
		}
		if err := o.store.InsertAsset(asset); err != nil {
			return nil, fmt.Errorf("recording %s stem for job %s: %w", r.StemType, job.ID, err)
		}
	}
	o.logger.Info("stems recorded", "job_id", job.ID, "provider", provider, "count", len(results))
	return nil, nil
}
