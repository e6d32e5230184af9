package database

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/jackc/pgx/v5/pgxpool"
)

// The reservations table is the only state the booking core owns.  The
// uq_reservation_seat key is what ultimately prevents double booking.
var mysqlSchema = []string{
    `CREATE TABLE IF NOT EXISTS users (
        id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        username      VARCHAR(64)  NOT NULL,
        email         VARCHAR(255) NOT NULL DEFAULT '',
        password_hash VARCHAR(255) NOT NULL,
        is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
        created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
        updated_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
        PRIMARY KEY (id),
        UNIQUE KEY uq_users_username (username)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
    `CREATE TABLE IF NOT EXISTS refresh_tokens (
        id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        user_id    BIGINT UNSIGNED NOT NULL,
        token_hash CHAR(64) NOT NULL,
        expires_at DATETIME NOT NULL,
        revoked_at DATETIME NULL,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (id),
        UNIQUE KEY uq_refresh_tokens_hash (token_hash),
        KEY idx_refresh_tokens_user (user_id),
        CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
    `CREATE TABLE IF NOT EXISTS reservations (
        id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        owner       VARCHAR(64) NOT NULL,
        bus_id      BIGINT      NOT NULL,
        travel_date DATE        NOT NULL,
        schedule    CHAR(5)     NOT NULL,
        seat_number INT         NOT NULL,
        created_at  DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (id),
        UNIQUE KEY uq_reservation_seat (bus_id, travel_date, schedule, seat_number),
        KEY idx_reservations_owner (owner)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var postgresSchema = []string{
    `CREATE TABLE IF NOT EXISTS users (
        id            BIGSERIAL PRIMARY KEY,
        username      TEXT        NOT NULL,
        email         TEXT        NOT NULL DEFAULT '',
        password_hash TEXT        NOT NULL,
        is_active     BOOLEAN     NOT NULL DEFAULT TRUE,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
        CONSTRAINT users_username_unique UNIQUE (username)
    )`,
    `CREATE TABLE IF NOT EXISTS refresh_tokens (
        id         BIGSERIAL PRIMARY KEY,
        user_id    BIGINT      NOT NULL REFERENCES users (id) ON DELETE CASCADE,
        token_hash TEXT        NOT NULL,
        expires_at TIMESTAMPTZ NOT NULL,
        revoked_at TIMESTAMPTZ NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        CONSTRAINT refresh_tokens_hash_unique UNIQUE (token_hash)
    )`,
    `CREATE TABLE IF NOT EXISTS reservations (
        id          BIGSERIAL PRIMARY KEY,
        owner       TEXT        NOT NULL,
        bus_id      BIGINT      NOT NULL,
        travel_date DATE        NOT NULL,
        schedule    TEXT        NOT NULL,
        seat_number INTEGER     NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        CONSTRAINT reservations_seat_unique UNIQUE (bus_id, travel_date, schedule, seat_number)
    )`,
    `CREATE INDEX IF NOT EXISTS reservations_owner_idx ON reservations (owner)`,
}

// Migrate creates the MySQL tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
    for i, stmt := range mysqlSchema {
        if _, err := db.ExecContext(ctx, stmt); err != nil {
            return fmt.Errorf("mysql schema statement %d: %w", i, err)
        }
    }
    return nil
}

// MigratePostgres creates the Postgres tables when they do not exist yet.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
    for i, stmt := range postgresSchema {
        if _, err := pool.Exec(ctx, stmt); err != nil {
            return fmt.Errorf("postgres schema statement %d: %w", i, err)
        }
    }
    return nil
}
