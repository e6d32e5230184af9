package repository

import (
    "context"
    "fmt"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/bus-seat-reservation/internal/utils"
)

func testAccountStores(t *testing.T, users UserStore, tokens TokenStore) {
    ctx := context.Background()
    name := fmt.Sprintf("user-%d", time.Now().UnixNano())

    id, err := users.Create(ctx, "  "+name+" ", " Mixed@Example.COM ", "pw", 4)
    require.NoError(t, err)

    _, err = users.Create(ctx, name, "", "other", 4)
    assert.ErrorIs(t, err, ErrUsernameExists)

    u, err := users.GetByUsername(ctx, name)
    require.NoError(t, err)
    assert.Equal(t, id, u.ID)
    assert.Equal(t, "mixed@example.com", u.Email)
    assert.True(t, u.IsActive)
    assert.True(t, utils.VerifyPassword(u.PasswordHash, "pw"))

    byID, err := users.GetByID(ctx, id)
    require.NoError(t, err)
    assert.Equal(t, name, byID.Username)

    _, err = users.GetByUsername(ctx, name+"-missing")
    assert.ErrorIs(t, err, ErrNotFound)

    live := utils.HashRefreshRaw(name + "-live")
    other := utils.HashRefreshRaw(name + "-other")
    expired := utils.HashRefreshRaw(name + "-expired")
    require.NoError(t, tokens.StoreRefresh(ctx, id, live, time.Now().Add(time.Hour)))
    require.NoError(t, tokens.StoreRefresh(ctx, id, other, time.Now().Add(time.Hour)))
    require.NoError(t, tokens.StoreRefresh(ctx, id, expired, time.Now().Add(-time.Hour)))

    got, err := tokens.ValidateRefresh(ctx, live)
    require.NoError(t, err)
    assert.Equal(t, id, got)

    _, err = tokens.ValidateRefresh(ctx, expired)
    assert.ErrorIs(t, err, ErrNotFound)
    _, err = tokens.ValidateRefresh(ctx, utils.HashRefreshRaw("never-issued"))
    assert.ErrorIs(t, err, ErrNotFound)

    require.NoError(t, tokens.RevokeByHash(ctx, live))
    _, err = tokens.ValidateRefresh(ctx, live)
    assert.ErrorIs(t, err, ErrNotFound)

    require.NoError(t, tokens.RevokeAllForUser(ctx, id))
    _, err = tokens.ValidateRefresh(ctx, other)
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAccountStores(t *testing.T) {
    testAccountStores(t, NewMemoryUserStore(), NewMemoryTokenStore())
}
