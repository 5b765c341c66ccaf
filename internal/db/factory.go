package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/inkpost/inkpost-backend/internal/config"
	"github.com/inkpost/inkpost-backend/internal/db/backends/d1"
	"github.com/inkpost/inkpost-backend/internal/db/backends/postgres"
	"github.com/inkpost/inkpost-backend/internal/db/backends/sqlite"
	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
	"github.com/inkpost/inkpost-backend/internal/db/migrations"
)

// sqlBacked is implemented by executors that can hand goose a database/sql handle
type sqlBacked interface {
	DB() *sql.DB
}

// bootstrapper is implemented by executors that create their schema themselves
type bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

// NewExecutor connects to the configured backend without touching the schema
func NewExecutor(ctx context.Context, cfg config.DatabaseConfig, logger *zap.SugaredLogger) (interfaces.Executor, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		logger.Infow("Using sqlite backend", "path", cfg.SQLitePath)
		exec, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return exec, nil
	case config.BackendPostgres:
		logger.Infow("Using postgres backend")
		exec, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.PostgresPool)
		if err != nil {
			return nil, err
		}
		return exec, nil
	case config.BackendD1:
		logger.Infow("Using d1 backend", "account", cfg.D1AccountID, "database", cfg.D1DatabaseID)
		exec, err := d1.New(d1.Config{
			BaseURL:    cfg.D1BaseURL,
			AccountID:  cfg.D1AccountID,
			DatabaseID: cfg.D1DatabaseID,
			APIToken:   cfg.D1APIToken,
			Timeout:    cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return exec, nil
	default:
		return nil, fmt.Errorf("unsupported database backend: %s", cfg.Backend)
	}
}

// Migrate brings the posts schema up to date on exec
func Migrate(ctx context.Context, exec interfaces.Executor, logger *zap.SugaredLogger) error {
	switch e := exec.(type) {
	case sqlBacked:
		if err := migrations.Up(ctx, e.DB(), exec.Dialect(), logger); err != nil {
			return err
		}
	case bootstrapper:
		if err := e.Bootstrap(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("executor %T cannot be migrated", exec)
	}
	logger.Infow("Database schema up to date", "dialect", exec.Dialect())
	return nil
}

// Open connects, migrates and wraps the executor with the configured timeout
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.SugaredLogger) (interfaces.Executor, error) {
	exec, err := NewExecutor(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := exec.Ping(ctx); err != nil {
		exec.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	if err := Migrate(ctx, exec, logger); err != nil {
		exec.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return WithTimeout(exec, cfg.Timeout), nil
}
