package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/config"
	"github.com/notifyhub/notice-dispatch/internal/repository"
)

// Open connects to the configured database, applies migrations, and returns
// the matching Store. The returned close function releases the connection.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		sqlDB, err := OpenSQLite(ctx, cfg.DatabaseURL, cfg.DBBusyTimeout)
		if err != nil {
			return nil, nil, err
		}
		if err := MigrateSQLite(sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		logger.Info("database migrations applied", zap.String("driver", cfg.DatabaseDriver))
		return repository.NewSQLiteStore(sqlDB), func() { _ = sqlDB.Close() }, nil

	case config.DriverPostgres:
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := Migrate(cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("database migrations applied", zap.String("driver", cfg.DatabaseDriver))
		return repository.NewPgStore(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
}
