// Package bootstrap turns a loaded Config into the store and service shared
// by the server and the admin CLI.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/scoreboard/internal/adapters/auth"
	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/adapters/repository/sqlstore"
	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/pkg/logger"
)

// InitLogger configures the global logger from cfg. An unknown level falls
// back to info with a warning.
func InitLogger(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

// OpenStore opens the configured backend and returns it with its name.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, string, error) {
	backend := strings.ToLower(cfg.Store)
	if backend == config.StoreMemory {
		return repository.NewMemoryStore(), backend, nil
	}
	dialect, err := sqlstore.ParseDialect(backend)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	st, err := sqlstore.Open(ctx, dialect, cfg.DSN, sqlstore.WithLogger(logger.Get().Named("store")))
	if err != nil {
		return nil, "", err
	}
	return st, backend, nil
}

// NewService builds a service over store using the configured limits.
func NewService(cfg *config.Config, store repository.Store, backend string) *service.Service {
	return service.New(
		service.WithLogger(logger.Get().Named("service")),
		service.WithStore(store, backend),
		service.WithQueueSize(cfg.QueueSize),
		service.WithIdempotencySize(cfg.IdempotencySize),
		service.WithCommandTimeout(cfg.CommandTimeout),
		service.WithShutdownTimeout(cfg.ShutdownTimeout),
		service.WithLimits(service.Limits{
			Leaderboard:   cfg.LeaderboardLimit,
			RecentMatches: cfg.RecentMatchesLimit,
			History:       cfg.HistoryLimit,
			Form:          cfg.FormLength,
			PageSize:      cfg.PageSize,
			MaxList:       cfg.MaxListLimit,
		}),
	)
}

// NewAuthenticator builds the admin authenticator.
func NewAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	a, err := auth.New(cfg.AdminUsername, cfg.AdminPasswordHash,
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithLogger(logger.Get().Named("auth")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return a, nil
}
