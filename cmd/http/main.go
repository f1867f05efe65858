package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imnotfancy/TuneForge-sub000/internal/config"
	"github.com/imnotfancy/TuneForge-sub000/internal/endpoints"
	"github.com/imnotfancy/TuneForge-sub000/internal/queue"
	"github.com/imnotfancy/TuneForge-sub000/internal/search"
	"github.com/imnotfancy/TuneForge-sub000/internal/server"
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

	deps := endpoints.Deps{
		Jobs:    st,
		Queue:   jobQueue,
		Layout:  layout,
		Text:    search.NewLLMSearcher(config.LLMGatewayURL, config.LLMAPIKey, config.LLMModel),
		Humming: search.NewACRCloudSearcher(config.ACRCloudHost, config.ACRCloudAccessKey, config.ACRCloudSecretKey),
		Catalog: search.NewMusicBrainzSearcher(config.MusicBrainzBaseURL),
	}
	srv := server.NewServer(config.Port, deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed to start", "error", err)
			cancel()
		}
	}()

	slog.Info("TuneForge HTTP server started", "port", config.Port)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	} else {
		slog.Info("Server exited gracefully")
	}
}
