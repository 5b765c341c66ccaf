package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
)

// Executor runs statements on a PostgreSQL pool
type Executor struct {
	pool *pgxpool.Pool

	sqlOnce sync.Once
	sqlDB   *sql.DB
}

// Open connects a pool to dsn and verifies it with a ping
func Open(ctx context.Context, dsn string, maxConns int32) (*Executor, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Executor{pool: pool}, nil
}

// DB returns a database/sql view of the pool for goose, opened on first use
func (e *Executor) DB() *sql.DB {
	e.sqlOnce.Do(func() {
		e.sqlDB = stdlib.OpenDBFromPool(e.pool)
	})
	return e.sqlDB
}

func (e *Executor) Dialect() interfaces.Dialect {
	return interfaces.DialectPostgres
}

func (e *Executor) Query(ctx context.Context, stmt string, args ...any) ([]interfaces.Row, error) {
	rows, err := e.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, classify("postgres.query", err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify("postgres.query", err)
	}

	result := make([]interfaces.Row, len(maps))
	for i, m := range maps {
		result[i] = interfaces.Row(m)
	}
	return result, nil
}

func (e *Executor) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	tag, err := e.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, classify("postgres.exec", err)
	}
	return tag.RowsAffected(), nil
}

func (e *Executor) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return classify("postgres.ping", err)
	}
	return nil
}

func (e *Executor) Close() error {
	if e.sqlDB != nil {
		e.sqlDB.Close()
	}
	e.pool.Close()
	return nil
}

// classify treats server-reported errors as Rejected and the rest as Unavailable
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return interfaces.Rejected(op, pgErr.Code+": "+pgErr.Message, err)
	}
	return interfaces.Unavailable(op, err)
}
