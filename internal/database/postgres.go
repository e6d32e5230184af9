package database

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5/pgxpool"
)

// OpenPostgres builds a pgx pool from a DATABASE_URL style DSN and verifies
// the connection.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
    if dsn == "" {
        return nil, errors.New("empty postgres dsn")
    }
    cfg, err := pgxpool.ParseConfig(dsn)
    if err != nil {
        return nil, fmt.Errorf("parse postgres dsn: %w", err)
    }
    cfg.MaxConns = 25
    cfg.MaxConnLifetime = 30 * time.Minute

    pool, err := pgxpool.NewWithConfig(ctx, cfg)
    if err != nil {
        return nil, err
    }
    pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := pool.Ping(pingCtx); err != nil {
        pool.Close()
        return nil, err
    }
    return pool, nil
}
