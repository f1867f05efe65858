package config

import (
	"os"
	"strconv"
	"time"
)

var (
	// HTTP settings
	Port       = getEnvWithDefault("PORT", "8080")
	CORSOrigin = getEnvWithDefault("CORS_ORIGIN", "*")

	// Filesystem root for uploads, masters, stems and MIDI
	StorageDir = getEnvWithDefault("STORAGE_DIR", "./storage")

	// SQLite database path (DATABASE_URL for parity with hosted deployments)
	DatabaseURL = getEnvWithDefault("DATABASE_URL", "./tuneforge.db")

	// Job dispatch queue (Redis/Valkey)
	ValkeyHost = getEnvWithDefault("VALKEY_HOST", "localhost")
	ValkeyPort = getEnvInt("VALKEY_PORT", 6379)

	// Pipeline settings
	RetentionWindow   = getEnvDuration("RETENTION_WINDOW", 24*time.Hour)
	ReaperInterval    = getEnvDuration("REAPER_INTERVAL", time.Hour)
	ReaperActiveGrace = getEnvDuration("REAPER_ACTIVE_GRACE", 5*time.Minute)
	StaleJobThreshold = getEnvDuration("STALE_JOB_THRESHOLD", 10*time.Minute)
	WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 2)

	// Upload limits
	MaxUploadBytes int64 = 100 << 20

	// Streaming provider credentials
	TidalClientID     = os.Getenv("TIDAL_CLIENT_ID")
	TidalClientSecret = os.Getenv("TIDAL_CLIENT_SECRET")
	DeezerARL         = os.Getenv("DEEZER_ARL")
	QobuzAppID        = os.Getenv("QOBUZ_APP_ID")
	QobuzToken        = os.Getenv("QOBUZ_TOKEN")

	// Stem separation / MIDI provider credentials
	LalalAPIKey = os.Getenv("LALAL_API_KEY")
	FadrAPIKey  = os.Getenv("FADR_API_KEY")

	// Identification credentials
	SpotifyClientID     = os.Getenv("SPOTIFY_CLIENT_ID")
	SpotifyClientSecret = os.Getenv("SPOTIFY_CLIENT_SECRET")

	// Search adapter credentials
	LLMGatewayURL      = os.Getenv("LLM_GATEWAY_URL")
	LLMAPIKey          = os.Getenv("LLM_API_KEY")
	LLMModel           = getEnvWithDefault("LLM_MODEL", "gpt-4o-mini")
	ACRCloudHost       = os.Getenv("ACRCLOUD_HOST")
	ACRCloudAccessKey  = os.Getenv("ACRCLOUD_ACCESS_KEY")
	ACRCloudSecretKey  = os.Getenv("ACRCLOUD_SECRET_KEY")
	MusicBrainzBaseURL = getEnvWithDefault("MUSICBRAINZ_BASE_URL", "https://musicbrainz.org")

	// Job listing defaults
	DefaultJobListLimit = 20
)

// AllowedUploadExtensions is the whitelist for POST /jobs/upload.
var AllowedUploadExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
