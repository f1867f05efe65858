package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

// tonalConcurrency bounds parallel MIDI transcriptions per job. The
// local basic-pitch CLI is CPU heavy, and the hosted providers rate
// limit aggressively.
const tonalConcurrency = 2

// generateMIDI transcribes each tonal stem to MIDI. Per-stem failures
// are tolerated: a job completes as long as the stems exist, even if
// some transcriptions did not land. Stems that already carry MIDI from
// an earlier run are skipped.
func (o *Orchestrator) generateMIDI(ctx context.Context, job *store.Job) (*store.JobUpdate, error) {
	assets, err := o.store.ListAssets(job.ID)
	if err != nil {
		return nil, fmt.Errorf("listing assets for job %s: %w", job.ID, err)
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("job %s has no stems to transcribe", job.ID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tonalConcurrency)
	for _, asset := range assets {
		if !store.TonalStems[asset.StemType] || asset.HasMIDI {
			continue
		}
		asset := asset
		g.Go(func() error {
			res, provider, err := o.registry.GenerateMIDI(gctx, "", asset.FilePath, o.layout.MidiDir(job.ID), asset.StemType)
			if err != nil {
				o.logger.Warn("midi transcription failed",
					"job_id", job.ID, "stem", asset.StemType, "error", err)
				return nil
			}
			if err := o.store.SetAssetMIDI(asset.ID, res.MidiPath); err != nil {
				return fmt.Errorf("recording MIDI for %s stem of job %s: %w", asset.StemType, job.ID, err)
			}
			o.logger.Info("midi recorded",
				"job_id", job.ID, "stem", asset.StemType, "provider", provider)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nil, nil
}
