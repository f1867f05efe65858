package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/imnotfancy/TuneForge-sub000/internal/config"
	"github.com/imnotfancy/TuneForge-sub000/internal/orchestrator"
	"github.com/imnotfancy/TuneForge-sub000/internal/providers"
	"github.com/imnotfancy/TuneForge-sub000/internal/queue"
	"github.com/imnotfancy/TuneForge-sub000/internal/reaper"
	"github.com/imnotfancy/TuneForge-sub000/internal/storage"
	"github.com/imnotfancy/TuneForge-sub000/internal/store"
)

func main() {
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(jsonHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down gracefully", "signal", sig)
		cancel()
	}()

	st, err := store.Open(config.DatabaseURL)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	layout := storage.NewLayout(config.StorageDir)
	if err := layout.EnsureDirs(); err != nil {
		slog.Error("Failed to prepare storage directories", "error", err)
		os.Exit(1)
	}

	jobQueue, err := queue.NewQueue(ctx)
	if err != nil {
		slog.Error("Failed to connect to job queue", "error", err)
		os.Exit(1)
	}
	defer jobQueue.Close()

	registry := buildRegistry(st)
	orch := orchestrator.New(st, layout, registry, config.RetentionWindow, slog.Default())

	reclaimStaleJobs(ctx, st, jobQueue)

	jobReaper := reaper.New(st, layout, config.ReaperInterval, config.ReaperActiveGrace, slog.Default())
	go jobReaper.Run(ctx)

	slog.Info("Worker started, waiting for jobs...",
		"concurrency", config.WorkerConcurrency)

	var wg sync.WaitGroup
	for i := 0; i < config.WorkerConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(ctx, jobQueue, orch)
		}()
	}
	wg.Wait()
	slog.Info("Worker exited")
}

// runWorker consumes the queue until the context is cancelled. Each
// dequeued job runs its full pipeline before the next dequeue.
func runWorker(ctx context.Context, jobQueue *queue.Queue, orch *orchestrator.Orchestrator) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := jobQueue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Failed to dequeue job", "error", err)
			continue
		}
		if task == nil {
			continue
		}

		if err := orch.Process(ctx, task.JobID); err != nil {
			slog.Error("Job processing failed", "job_id", task.JobID, "error", err)
		}
	}
}

// reclaimStaleJobs re-enqueues jobs a previous worker abandoned
// mid-pipeline. Step short-circuits make the re-run converge on
// whatever the earlier attempt already produced.
func reclaimStaleJobs(ctx context.Context, st *store.Store, jobQueue *queue.Queue) {
	cutoff := time.Now().UTC().Add(-config.StaleJobThreshold)
	stale, err := st.ListStaleJobs(cutoff)
	if err != nil {
		slog.Error("Failed to list stale jobs", "error", err)
		return
	}
	for _, job := range stale {
		if err := jobQueue.Enqueue(ctx, job.ID); err != nil {
			slog.Error("Failed to re-enqueue stale job", "job_id", job.ID, "error", err)
			continue
		}
		slog.Info("Re-enqueued stale job", "job_id", job.ID, "status", job.Status)
	}
}

// buildRegistry wires every provider, configured or not. Unconfigured
// providers stay registered: some still serve public no-auth lookups,
// and persisted provider_configs rows can supply credentials later.
func buildRegistry(st *store.Store) *providers.Registry {
	registry := providers.NewRegistry(st)

	registry.RegisterIdentifier(providers.NewSonglinkResolver())
	registry.RegisterIdentifier(providers.NewSpotifyLookup(config.SpotifyClientID, config.SpotifyClientSecret))
	registry.RegisterIdentifier(providers.NewAppleMusicLookup())

	registry.RegisterStreaming(providers.NewTidalProvider(config.TidalClientID, config.TidalClientSecret))
	registry.RegisterStreaming(providers.NewDeezerProvider(config.DeezerARL))
	registry.RegisterStreaming(providers.NewQobuzProvider(config.QobuzAppID, config.QobuzToken))

	registry.RegisterStem(providers.NewLalalProvider(config.LalalAPIKey))
	registry.RegisterStem(providers.NewFadrStemProvider(config.FadrAPIKey))

	registry.RegisterMidi(providers.NewBasicPitchProvider())
	registry.RegisterMidi(providers.NewFadrMidiProvider(config.FadrAPIKey))

	return registry
}
