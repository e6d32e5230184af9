package middleware

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/bus-seat-reservation/internal/config"
    "github.com/iliyamo/bus-seat-reservation/internal/identity"
    "github.com/iliyamo/bus-seat-reservation/internal/utils"
)

func TestJWTAuth(t *testing.T) {
    const secret = "mw-secret"
    tok, err := utils.NewAccessToken(secret, "alice", 5)
    require.NoError(t, err)

    e := echo.New()
    e.GET("/me", func(c echo.Context) error {
        return c.String(http.StatusOK, Username(c))
    }, JWTAuth(identity.NewJWTResolver(secret)))

    cases := []struct {
        name   string
        header string
        status int
        body   string
    }{
        {"valid", "Bearer " + tok.Token, http.StatusOK, "alice"},
        {"missing", "", http.StatusUnauthorized, "missing bearer token"},
        {"malformed", "Token " + tok.Token, http.StatusUnauthorized, "malformed bearer token"},
        {"wrong secret", "Bearer " + mustToken(t, "other", "alice"), http.StatusUnauthorized, "invalid token"},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            req := httptest.NewRequest(http.MethodGet, "/me", nil)
            if tc.header != "" {
                req.Header.Set(echo.HeaderAuthorization, tc.header)
            }
            rec := httptest.NewRecorder()
            e.ServeHTTP(rec, req)
            assert.Equal(t, tc.status, rec.Code)
            assert.Contains(t, rec.Body.String(), tc.body)
        })
    }
}

func mustToken(t *testing.T, secret, user string) string {
    t.Helper()
    tok, err := utils.NewAccessToken(secret, user, 5)
    require.NoError(t, err)
    return tok.Token
}

func TestAuthErrorMessage(t *testing.T) {
    assert.Equal(t, "token expired", AuthErrorMessage(identity.ErrExpired))
    assert.Equal(t, "unauthorized", AuthErrorMessage(context.Canceled))
}

func TestRateLimitKey(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
    req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/reservations")

    cfg := config.RateLimitConfig{Prefix: "rl"}
    assert.Equal(t, "rl:ip:10.0.0.1:user:anon:route:POST /v1/reservations", rateLimitKey(cfg, c))

    c.Set(ContextKeyUsername, "alice")
    cfg.KeyStrategy = "user"
    assert.Equal(t, "rl:user:alice", rateLimitKey(cfg, c))
    cfg.KeyStrategy = "IP_ROUTE"
    assert.Equal(t, "rl:ip:10.0.0.1:route:POST /v1/reservations", rateLimitKey(cfg, c))
}

func TestRateLimitKey_BookingRoutesKeyedByCredential(t *testing.T) {
    e := echo.New()
    keyFor := func(authz string) string {
        req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
        req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
        if authz != "" {
            req.Header.Set(echo.HeaderAuthorization, authz)
        }
        c := e.NewContext(req, httptest.NewRecorder())
        c.SetPath("/v1/reservations")
        return rateLimitKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c)
    }

    alice := keyFor("Bearer token-a")
    assert.Regexp(t, `^rl:user:cred-[0-9a-f]{16}$`, alice)
    assert.Equal(t, alice, keyFor("bearer token-a"))
    assert.NotEqual(t, alice, keyFor("Bearer token-b"))
    assert.Equal(t, "rl:user:anon", keyFor(""))
    assert.Equal(t, "rl:user:anon", keyFor("Basic abc"))
}

func TestDisabledMiddlewarePassThrough(t *testing.T) {
    e := echo.New()
    e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
        NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, nil),
        NewRedisCache(config.CacheConfig{Enabled: true}, nil, nil),
    )
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Empty(t, rec.Header().Get("X-Cache"))
    assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestCachedResponseRoundTrip(t *testing.T) {
    header := http.Header{echo.HeaderContentType: []string{echo.MIMEApplicationJSON}}
    payload, err := encodeResponse(http.StatusOK, header, []byte(`{"available_seats":[1,2]}`))
    require.NoError(t, err)

    status, got, body, err := decodeResponse(payload)
    require.NoError(t, err)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, echo.MIMEApplicationJSON, got.Get(echo.HeaderContentType))
    assert.JSONEq(t, `{"available_seats":[1,2]}`, string(body))

    _, _, _, err = decodeResponse(payload[:5])
    assert.ErrorIs(t, err, errBadCacheEntry)
}

func TestCacheKey(t *testing.T) {
    e := echo.New()
    ctx := func(target string) echo.Context {
        return e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
    }
    cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}

    a := cacheKey(cfg, ctx("/v1/availability/1/2024-01-01?schedule=08:00"))
    b := cacheKey(cfg, ctx("/v1/availability/1/2024-01-01?schedule=09:00"))
    assert.NotEqual(t, a, b)
    assert.Regexp(t, `^cache:[0-9a-f]{40}$`, a)

    for _, strategy := range []string{"route", "method_route", "method_route_query", "unknown"} {
        cfg.KeyStrategy = strategy
        assert.NotEqual(t,
            cacheKey(cfg, ctx("/v1/availability/1/2024-01-01?schedule=08:00")),
            cacheKey(cfg, ctx("/v1/availability/1/2024-01-01?schedule=10:00")), strategy)
    }

    cfg.KeyStrategy = "method_route"
    assert.NotEqual(t, a, cacheKey(cfg, ctx("/v1/availability/1/2024-01-01?schedule=08:00")))
}
