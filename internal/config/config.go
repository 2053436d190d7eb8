// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults; Load layers overrides.
// - Keys are flat snake_case so env vars map onto them one to one.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the backend: memory, sqlite or postgres.
	Store string `koanf:"store"`

	// DSN is the connection string for the sql backends.
	DSN string `koanf:"dsn"`

	// QueueSize bounds the write command queue.
	QueueSize int `koanf:"queue_size"`

	// IdempotencySize bounds the match idempotency cache.
	IdempotencySize int `koanf:"idempotency_size"`

	// CommandTimeout caps how long a write may wait for the writer.
	CommandTimeout time.Duration `koanf:"command_timeout"`

	// ShutdownTimeout caps the graceful drain on exit.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Page and list sizes.
	LeaderboardLimit   int `koanf:"leaderboard_limit"`
	RecentMatchesLimit int `koanf:"recent_matches_limit"`
	HistoryLimit       int `koanf:"history_limit"`
	FormLength         int `koanf:"form_length"`
	PageSize           int `koanf:"page_size"`
	MaxListLimit       int `koanf:"max_list_limit"`

	// AdminUsername and AdminPasswordHash (bcrypt) guard the admin routes.
	// An empty hash disables admin login.
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`

	// SessionTTL is the lifetime of an admin session.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// SecureCookies marks the session cookie Secure.
	SecureCookies bool `koanf:"secure_cookies"`

	// AllowedOrigins lists browser origins for CORS and the live socket.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		Store:              StoreMemory,
		QueueSize:          256,
		IdempotencySize:    10_000,
		CommandTimeout:     5 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		LeaderboardLimit:   10,
		RecentMatchesLimit: 10,
		HistoryLimit:       50,
		FormLength:         24,
		PageSize:           15,
		MaxListLimit:       100,
		AdminUsername:      "admin",
		SessionTTL:         12 * time.Hour,
	}
}
