package repository

import (
    "context"
    "os"
    "testing"

    "github.com/stretchr/testify/require"

    "github.com/iliyamo/bus-seat-reservation/internal/database"
)

// Set TEST_DATABASE_URL to a disposable Postgres database to run these.
func TestPostgresStores(t *testing.T) {
    dsn := os.Getenv("TEST_DATABASE_URL")
    if dsn == "" {
        t.Skip("TEST_DATABASE_URL not set")
    }
    ctx := context.Background()
    pool, err := database.OpenPostgres(ctx, dsn)
    require.NoError(t, err)
    t.Cleanup(pool.Close)
    require.NoError(t, database.MigratePostgres(ctx, pool))

    t.Run("reservations", func(t *testing.T) {
        testReservationStore(t, NewPgReservationRepo(pool))
    })
    t.Run("accounts", func(t *testing.T) {
        testAccountStores(t, NewPgUserRepo(pool), NewPgTokenRepo(pool))
    })
}
