package repository

import (
    "context"
    "errors"
    "strings"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/utils"
)

// PgUserRepo is a Postgres implementation of UserStore.
type PgUserRepo struct {
    pool *pgxpool.Pool
}

func NewPgUserRepo(pool *pgxpool.Pool) *PgUserRepo { return &PgUserRepo{pool: pool} }

func (r *PgUserRepo) Create(ctx context.Context, username, email, password string, cost int) (uint64, error) {
    username = strings.TrimSpace(username)
    email = strings.ToLower(strings.TrimSpace(email))
    hash, err := utils.HashPassword(password, cost)
    if err != nil {
        return 0, err
    }
    var id int64
    err = r.pool.QueryRow(ctx, `
        INSERT INTO users (username, email, password_hash)
        VALUES ($1, $2, $3)
        RETURNING id
    `, username, email, hash).Scan(&id)
    if err != nil {
        if isPgUniqueViolation(err) {
            return 0, ErrUsernameExists
        }
        return 0, storageErr("create user", err)
    }
    return uint64(id), nil
}

func (r *PgUserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
    row := r.pool.QueryRow(ctx, `
        SELECT id, username, email, password_hash, is_active, created_at, updated_at
        FROM users WHERE username = $1
    `, strings.TrimSpace(username))
    return scanPgUser(row)
}

func (r *PgUserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
    row := r.pool.QueryRow(ctx, `
        SELECT id, username, email, password_hash, is_active, created_at, updated_at
        FROM users WHERE id = $1
    `, int64(id))
    return scanPgUser(row)
}

func scanPgUser(row pgx.Row) (model.User, error) {
    var (
        u  model.User
        id int64
    )
    if err := row.Scan(&id, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
        if errors.Is(err, pgx.ErrNoRows) {
            return model.User{}, ErrNotFound
        }
        return model.User{}, storageErr("get user", err)
    }
    u.ID = uint64(id)
    u.CreatedAt = u.CreatedAt.UTC()
    u.UpdatedAt = u.UpdatedAt.UTC()
    return u, nil
}

// PgTokenRepo is a Postgres implementation of TokenStore.
type PgTokenRepo struct {
    pool *pgxpool.Pool
}

func NewPgTokenRepo(pool *pgxpool.Pool) *PgTokenRepo { return &PgTokenRepo{pool: pool} }

func (r *PgTokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
    _, err := r.pool.Exec(ctx, `
        INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)
    `, int64(userID), tokenHash, exp.UTC())
    return storageErr("store refresh", err)
}

func (r *PgTokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
    var (
        userID    int64
        expiresAt time.Time
        revokedAt *time.Time
    )
    err := r.pool.QueryRow(ctx, `
        SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = $1
    `, tokenHash).Scan(&userID, &expiresAt, &revokedAt)
    if errors.Is(err, pgx.ErrNoRows) {
        return 0, ErrNotFound
    }
    if err != nil {
        return 0, storageErr("validate refresh", err)
    }
    if revokedAt != nil || time.Now().UTC().After(expiresAt) {
        return 0, ErrNotFound
    }
    return uint64(userID), nil
}

func (r *PgTokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
    _, err := r.pool.Exec(ctx, `
        UPDATE refresh_tokens SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL
    `, tokenHash)
    return storageErr("revoke refresh", err)
}

func (r *PgTokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
    _, err := r.pool.Exec(ctx, `
        UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL
    `, int64(userID))
    return storageErr("revoke refresh", err)
}
