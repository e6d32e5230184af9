package middleware

import (
    "crypto/sha256"
    "encoding/hex"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-reservation/internal/identity"
)

// ContextKeyUsername is where JWTAuth stores the resolved username.
const ContextKeyUsername = "username"

// anonymous keys rate-limit buckets of unauthenticated requests.
const anonymous = "anon"

// Username returns the username resolved by JWTAuth, or "" when the route
// is not authenticated.
func Username(c echo.Context) string {
    if s, ok := c.Get(ContextKeyUsername).(string); ok {
        return s
    }
    return ""
}

// requester names the caller for rate limiting.  Routes without JWTAuth
// (booking resolves the credential in the service) are keyed by a
// fingerprint of the bearer token, which is not verified here; a caller
// rotating junk tokens is still bounded by the ip dimension.
func requester(c echo.Context) string {
    if u := Username(c); u != "" {
        return u
    }
    tok, err := identity.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
    if err != nil {
        return anonymous
    }
    sum := sha256.Sum256([]byte(tok))
    return "cred-" + hex.EncodeToString(sum[:8])
}
