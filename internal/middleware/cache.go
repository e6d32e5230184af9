package middleware

import (
    "bytes"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-seat-reservation/internal/config"
)

// captureWriter tees the response body into buf, up to limit bytes when
// limit is positive.
type captureWriter struct {
    http.ResponseWriter
    status    int
    buf       bytes.Buffer
    limit     int64
    truncated bool
}

func (cw *captureWriter) WriteHeader(code int) {
    cw.status = code
    cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
    if cw.limit > 0 && int64(cw.buf.Len()+len(b)) > cw.limit {
        cw.truncated = true
    } else {
        cw.buf.Write(b)
    }
    return cw.ResponseWriter.Write(b)
}

// cacheKey hashes the request path and query under cfg.Prefix; the
// method_* strategies add the method.  The query is never dropped:
// ?schedule= selects the departure.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    parts := []string{"route", r.URL.Path, "q", r.URL.RawQuery}
    if strings.HasPrefix(strings.ToLower(cfg.KeyStrategy), "method_") {
        parts = append([]string{"method", r.Method}, parts...)
    }
    sum := sha1.Sum([]byte(strings.Join(parts, ":")))
    return fmt.Sprintf("%s:%x", cfg.Prefix, sum)
}

// cachedResponse layout: [4 bytes status][4 bytes header length][header JSON][body]
func encodeResponse(status int, header http.Header, body []byte) ([]byte, error) {
    hdr, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8, 8+len(hdr)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
    out = append(out, hdr...)
    return append(out, body...), nil
}

var errBadCacheEntry = errors.New("malformed cache entry")

func decodeResponse(bs []byte) (int, http.Header, []byte, error) {
    if len(bs) < 8 {
        return 0, nil, nil, errBadCacheEntry
    }
    status := int(binary.BigEndian.Uint32(bs[0:4]))
    hlen := int(binary.BigEndian.Uint32(bs[4:8]))
    if hlen < 0 || 8+hlen > len(bs) {
        return 0, nil, nil, errBadCacheEntry
    }
    header := make(http.Header)
    if hlen > 0 {
        if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
            return 0, nil, nil, errBadCacheEntry
        }
    }
    return status, header, bs[8+hlen:], nil
}

// NewRedisCache replays successful responses from Redis for cfg.TTL.  Only
// 200 responses whose body fit in cfg.MaxBodyBytes are stored.  It is a
// pass-through when disabled or when rdb is nil.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, logger *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return passThrough
    }
    if logger == nil {
        logger = zap.NewNop()
    }
    logger = logger.Named("cache")
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 5 * time.Second
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return next(c)
            }
            ctx := c.Request().Context()
            key := cacheKey(cfg, c)

            bs, err := rdb.Get(ctx, key).Bytes()
            switch {
            case err == nil:
                if status, header, body, derr := decodeResponse(bs); derr == nil {
                    for k, vals := range header {
                        if strings.EqualFold(k, echo.HeaderContentLength) {
                            continue
                        }
                        for _, v := range vals {
                            c.Response().Header().Add(k, v)
                        }
                    }
                    c.Response().Header().Set("X-Cache", "HIT")
                    return c.Blob(status, header.Get(echo.HeaderContentType), body)
                }
                logger.Warn("dropping malformed cache entry", zap.String("key", key))
            case !errors.Is(err, redis.Nil):
                logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
            }

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if cw.status != http.StatusOK || cw.truncated {
                return nil
            }

            header := c.Response().Header().Clone()
            header.Del("X-Cache")
            payload, err := encodeResponse(cw.status, header, cw.buf.Bytes())
            if err != nil {
                return nil
            }
            if err := rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
                logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
            }
            return nil
        }
    }
}
