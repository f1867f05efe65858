package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ProviderConfig is the persisted credential and quota descriptor for an
// external service. Rows are written by admin tooling and read at request
// time by the provider registry.
type ProviderConfig struct {
	ServiceName  string     `json:"service_name"`
	APIKey       *string    `json:"api_key,omitempty"`
	APISecret    *string    `json:"api_secret,omitempty"`
	Priority     int        `json:"priority"`
	IsEnabled    bool       `json:"is_enabled"`
	RateLimit    *int       `json:"rate_limit,omitempty"`
	RateWindow   *int       `json:"rate_window,omitempty"` // seconds
	CurrentUsage int        `json:"current_usage"`
	UsageResetAt *time.Time `json:"usage_reset_at,omitempty"`
	Config       *string    `json:"config,omitempty"`
}

// GetProviderConfig loads one service's config, or ErrNotFound.
func (s *Store) GetProviderConfig(serviceName string) (*ProviderConfig, error) {
	row := s.db.QueryRow(`SELECT service_name, api_key, api_secret, priority, is_enabled,
		rate_limit, rate_window, current_usage, usage_reset_at, config
		FROM provider_configs WHERE service_name = ?`, serviceName)

	var pc ProviderConfig
	var resetAt sql.NullTime
	err := row.Scan(&pc.ServiceName, &pc.APIKey, &pc.APISecret, &pc.Priority, &pc.IsEnabled,
		&pc.RateLimit, &pc.RateWindow, &pc.CurrentUsage, &resetAt, &pc.Config)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan provider config: %w", err)
	}
	if resetAt.Valid {
		t := resetAt.Time
		pc.UsageResetAt = &t
	}
	return &pc, nil
}

// UpsertProviderConfig writes a service config row.
func (s *Store) UpsertProviderConfig(pc *ProviderConfig) error {
	_, err := s.db.Exec(`INSERT INTO provider_configs
		(service_name, api_key, api_secret, priority, is_enabled, rate_limit, rate_window, current_usage, usage_reset_at, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_name) DO UPDATE SET
			api_key = excluded.api_key,
			api_secret = excluded.api_secret,
			priority = excluded.priority,
			is_enabled = excluded.is_enabled,
			rate_limit = excluded.rate_limit,
			rate_window = excluded.rate_window,
			config = excluded.config`,
		pc.ServiceName, pc.APIKey, pc.APISecret, pc.Priority, pc.IsEnabled,
		pc.RateLimit, pc.RateWindow, pc.CurrentUsage, nullTime(pc.UsageResetAt), pc.Config)
	if err != nil {
		return fmt.Errorf("upsert provider config: %w", err)
	}
	return nil
}

// BumpProviderUsage increments a service's usage counter, starting a new
// window when the previous one has elapsed.
func (s *Store) BumpProviderUsage(serviceName string, window time.Duration, now time.Time) error {
	resetAt := now.UTC().Add(window)
	_, err := s.db.Exec(`UPDATE provider_configs SET
			current_usage = CASE WHEN usage_reset_at IS NULL OR usage_reset_at < ? THEN 1 ELSE current_usage + 1 END,
			usage_reset_at = CASE WHEN usage_reset_at IS NULL OR usage_reset_at < ? THEN ? ELSE usage_reset_at END
		WHERE service_name = ?`,
		now.UTC(), now.UTC(), resetAt, serviceName)
	if err != nil {
		return fmt.Errorf("bump provider usage: %w", err)
	}
	return nil
}
