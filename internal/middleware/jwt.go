package middleware

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-reservation/internal/identity"
)

// JWTAuth resolves the Authorization header through resolver and stores
// the username in the context under ContextKeyUsername.  Requests without
// a valid credential are answered with 401.
func JWTAuth(resolver identity.Resolver) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            username, err := resolver.ResolveIdentity(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": AuthErrorMessage(err)})
            }
            c.Set(ContextKeyUsername, username)
            return next(c)
        }
    }
}

// AuthErrorMessage renders an identity failure for clients without leaking
// parser details.
func AuthErrorMessage(err error) string {
    var ae *identity.AuthError
    if !errors.As(err, &ae) {
        return "unauthorized"
    }
    switch ae.Kind {
    case identity.KindMissingCredential:
        return "missing bearer token"
    case identity.KindMalformedCredential:
        return "malformed bearer token"
    case identity.KindExpired:
        return "token expired"
    default:
        return "invalid token"
    }
}
