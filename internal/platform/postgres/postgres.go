// Package postgres opens the two PostgreSQL handles the service uses: a
// database/sql pool (lib/pq) for the domain stores and a pgx pool for the
// audit chain.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"facegate/internal/platform/config"
)

type DB struct {
	SQL  *sql.DB
	Pool *pgxpool.Pool
}

// Open connects both handles and pings them. Returns nil when no URL is
// configured.
func Open(ctx context.Context, cfg config.Postgres) (*DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	sqlDB, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxPoolConns
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pgx ping failed: %w", err)
	}
	return &DB{SQL: sqlDB, Pool: pool}, nil
}

func (d *DB) Health(ctx context.Context) error {
	return errors.Join(d.SQL.PingContext(ctx), d.Pool.Ping(ctx))
}

func (d *DB) Close() error {
	d.Pool.Close()
	return d.SQL.Close()
}
