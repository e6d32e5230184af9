// Package identity turns a bearer credential into the username it proves.
// The booking core depends only on the Resolver interface; JWTResolver is
// the HS256 implementation matching the tokens issued by the auth handlers.
package identity

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/golang-jwt/jwt/v5"

    "github.com/iliyamo/bus-seat-reservation/internal/utils"
)

// Kind classifies why a credential was rejected.
type Kind string

const (
    KindMissingCredential   Kind = "MISSING_CREDENTIAL"
    KindMalformedCredential Kind = "MALFORMED_CREDENTIAL"
    KindExpired             Kind = "EXPIRED"
    KindInvalid             Kind = "INVALID"
)

// AuthError is returned by a Resolver when a credential does not prove an
// identity.  It is never retried.
type AuthError struct {
    Kind Kind
    Err  error
}

func (e *AuthError) Error() string {
    if e.Err != nil {
        return fmt.Sprintf("authentication failed (%s): %v", e.Kind, e.Err)
    }
    return fmt.Sprintf("authentication failed (%s)", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another *AuthError of the same Kind, so the sentinels below
// work with errors.Is.
func (e *AuthError) Is(target error) bool {
    t, ok := target.(*AuthError)
    return ok && t.Err == nil && t.Kind == e.Kind
}

var (
    ErrMissingCredential   = &AuthError{Kind: KindMissingCredential}
    ErrMalformedCredential = &AuthError{Kind: KindMalformedCredential}
    ErrExpired             = &AuthError{Kind: KindExpired}
    ErrInvalid             = &AuthError{Kind: KindInvalid}
)

// Resolver maps a credential to a proven username.
type Resolver interface {
    ResolveIdentity(ctx context.Context, credential string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, credential string) (string, error)

func (f ResolverFunc) ResolveIdentity(ctx context.Context, credential string) (string, error) {
    return f(ctx, credential)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, error) {
    header = strings.TrimSpace(header)
    if header == "" {
        return "", ErrMissingCredential
    }
    parts := strings.Fields(header)
    if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
        return "", &AuthError{Kind: KindMalformedCredential, Err: errors.New("expected \"Bearer <token>\"")}
    }
    return parts[1], nil
}

// JWTResolver verifies HS256 access tokens signed with a shared secret.
type JWTResolver struct {
    secret []byte
    leeway time.Duration
    now    func() time.Time
}

// NewJWTResolver returns a resolver for tokens signed with secret.
func NewJWTResolver(secret string) *JWTResolver {
    return &JWTResolver{secret: []byte(secret), now: time.Now}
}

// WithLeeway tolerates clock skew when checking exp/nbf/iat.
func (r *JWTResolver) WithLeeway(d time.Duration) *JWTResolver {
    r.leeway = d
    return r
}

// WithClock replaces the time source; used by tests.
func (r *JWTResolver) WithClock(now func() time.Time) *JWTResolver {
    r.now = now
    return r
}

// ResolveIdentity accepts the raw Authorization header value and returns
// the username carried in the token's sub claim, falling back to the legacy
// user claim.
func (r *JWTResolver) ResolveIdentity(ctx context.Context, credential string) (string, error) {
    _ = ctx
    raw, err := BearerToken(credential)
    if err != nil {
        return "", err
    }

    var claims utils.AccessClaims
    _, err = jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
        return r.secret, nil
    },
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithExpirationRequired(),
        jwt.WithLeeway(r.leeway),
        jwt.WithTimeFunc(r.now),
    )
    switch {
    case err == nil:
    case errors.Is(err, jwt.ErrTokenExpired):
        return "", &AuthError{Kind: KindExpired, Err: err}
    case errors.Is(err, jwt.ErrTokenMalformed):
        return "", &AuthError{Kind: KindMalformedCredential, Err: err}
    default:
        return "", &AuthError{Kind: KindInvalid, Err: err}
    }

    username := strings.TrimSpace(claims.Subject)
    if username == "" {
        username = strings.TrimSpace(claims.User)
    }
    if username == "" {
        return "", &AuthError{Kind: KindInvalid, Err: errors.New("token carries no subject")}
    }
    return username, nil
}
