package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/routerx/internal/cache"
	"github.com/rickgao/routerx/internal/config"
)

// Connect creates a single connection pool.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// OpenStore connects to the database, creates the cache table if needed and
// returns a store that closes the pool on Close.
func OpenStore(ctx context.Context, cfg config.DBConfig, namespace string, logger *slog.Logger) (*cache.Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect cache database: %w", err)
	}

	store := cache.NewPostgres(pool, namespace, pool.Close)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("table cache connected",
		"host", cfg.Host,
		"database", cfg.Name,
		"namespace", namespace,
	)
	return store, nil
}
