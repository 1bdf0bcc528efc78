// Package config loads process configuration from the environment. Database
// settings live in pkg/database; everything else is here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the umbrella configuration object assembled at startup.
type Config struct {
	Server    *ServerConfig
	Queue     *QueueConfig
	Auth      *AuthConfig
	Discourse *DiscourseConfig
	Karma     *KarmaConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string

	// InternalSecret guards the /internal/* routes. Requests without it get
	// a 404, not a 401, so the routes stay invisible.
	InternalSecret string

	// RequestTimeout is the per-request deadline propagated to handlers.
	RequestTimeout time.Duration
}

// QueueConfig controls the analysis worker pool.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines polling for pending
	// analysis runs.
	WorkerCount int

	// PollInterval is the base interval for checking pending runs.
	PollInterval time.Duration

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration

	// RunTimeout is the maximum time one analysis run may execute.
	RunTimeout time.Duration

	// HeartbeatInterval is how often a worker touches its run's updated_at
	// so the staleness sweeper leaves it alone.
	HeartbeatInterval time.Duration

	// StalenessThreshold is how long a processing run may go untouched
	// before the sweeper fails it.
	StalenessThreshold time.Duration

	// SweepInterval is how often the staleness sweeper scans.
	SweepInterval time.Duration
}

// AuthConfig controls session token issuing and validation.
type AuthConfig struct {
	// JWTSecret signs session tokens (HS256).
	JWTSecret string

	// JWTAudience is the required aud claim.
	JWTAudience string

	// SessionTTL bounds issued session tokens.
	SessionTTL time.Duration

	// AllowlistRefreshInterval is how often the service-account allowlist
	// is reloaded from the database.
	AllowlistRefreshInterval time.Duration
}

// DiscourseConfig locates the external discourse engine.
type DiscourseConfig struct {
	// BaseURL of the engine's HTTP API.
	BaseURL string

	// EmbeddingDimension must match the schema's vector width.
	EmbeddingDimension int
}

// KarmaConfig controls the daily gamification batch.
type KarmaConfig struct {
	// Schedule is a cron spec for the batch.
	Schedule string
}

// DefaultConfig returns the built-in defaults, before environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 15 * time.Second,
		},
		Queue: &QueueConfig{
			WorkerCount:        5,
			PollInterval:       1 * time.Second,
			PollIntervalJitter: 500 * time.Millisecond,
			RunTimeout:         5 * time.Minute,
			HeartbeatInterval:  30 * time.Second,
			StalenessThreshold: 1 * time.Hour,
			SweepInterval:      5 * time.Minute,
		},
		Auth: &AuthConfig{
			JWTAudience:              "agora",
			SessionTTL:               1 * time.Hour,
			AllowlistRefreshInterval: 5 * time.Minute,
		},
		Discourse: &DiscourseConfig{
			BaseURL:            "http://localhost:8090",
			EmbeddingDimension: 1536,
		},
		Karma: &KarmaConfig{
			Schedule: "0 3 * * *",
		},
	}
}

// Load builds the configuration from defaults plus environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setString(&cfg.Server.InternalSecret, "INTERNAL_SECRET")
	setDuration(&cfg.Server.RequestTimeout, "REQUEST_TIMEOUT")

	setInt(&cfg.Queue.WorkerCount, "QUEUE_WORKER_COUNT")
	setDuration(&cfg.Queue.PollInterval, "QUEUE_POLL_INTERVAL")
	setDuration(&cfg.Queue.RunTimeout, "QUEUE_RUN_TIMEOUT")
	setDuration(&cfg.Queue.HeartbeatInterval, "QUEUE_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Queue.StalenessThreshold, "ANALYSIS_STALENESS_THRESHOLD")
	setDuration(&cfg.Queue.SweepInterval, "ANALYSIS_SWEEP_INTERVAL")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.JWTAudience, "JWT_AUDIENCE")
	setDuration(&cfg.Auth.SessionTTL, "SESSION_TTL")
	setDuration(&cfg.Auth.AllowlistRefreshInterval, "ALLOWLIST_REFRESH_INTERVAL")

	setString(&cfg.Discourse.BaseURL, "DISCOURSE_ENGINE_URL")
	setInt(&cfg.Discourse.EmbeddingDimension, "EMBEDDING_DIMENSION")

	setString(&cfg.Karma.Schedule, "KARMA_BATCH_SCHEDULE")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Discourse.EmbeddingDimension != 1536 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be 1536 to match the schema, got %d", c.Discourse.EmbeddingDimension)
	}
	if c.Queue.WorkerCount < 1 {
		return fmt.Errorf("QUEUE_WORKER_COUNT must be at least 1")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
