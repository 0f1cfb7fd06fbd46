package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/stock-image-platform/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
// Once more than limit bytes were written the capture is marked overflowed
// and the response is not cached.
type captureWriter struct {
    http.ResponseWriter
    status     int
    buf        bytes.Buffer
    limit      int64
    overflowed bool
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }
func (cw *captureWriter) Write(b []byte) (int, error) {
    if !cw.overflowed {
        if cw.limit > 0 && int64(cw.buf.Len()+len(b)) > cw.limit {
            cw.overflowed = true
            cw.buf.Reset()
        } else {
            cw.buf.Write(b)
        }
    }
    return cw.ResponseWriter.Write(b)
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
    hdrJSON, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8+len(hdrJSON)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
    copy(out[8:8+len(hdrJSON)], hdrJSON)
    copy(out[8+len(hdrJSON):], body)
    return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
    if len(bs) < 8 {
        return 0, nil, nil, false
    }
    status = int(binary.BigEndian.Uint32(bs[0:4]))
    hlen := int(binary.BigEndian.Uint32(bs[4:8]))
    if hlen < 0 || 8+hlen > len(bs) {
        return 0, nil, nil, false
    }
    header = make(http.Header)
    if hlen > 0 {
        if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, header, bs[8+hlen:], true
}

// cachedHeaders are the response headers the cached handlers produce
// themselves.  Headers set by outer middleware (CORS, rate limit) belong to
// the current request and are never replayed.
var cachedHeaders = []string{echo.HeaderContentType, echo.HeaderContentEncoding}

func ownHeaders(h http.Header) http.Header {
    out := make(http.Header, len(cachedHeaders))
    for _, k := range cachedHeaders {
        if v := h.Values(k); len(v) > 0 {
            out[k] = append([]string(nil), v...)
        }
    }
    return out
}

// UserCache caches successful GET responses per user in Redis.  Every key
// embeds the user's current generation; Invalidate bumps the generation, so
// all earlier entries for that user stop matching at once and expire by TTL.
// A nil Redis client turns the cache into a pass-through.
type UserCache struct {
    cfg config.CacheConfig
    rdb *redis.Client
}

func NewUserCache(cfg config.CacheConfig, rdb *redis.Client) *UserCache {
    return &UserCache{cfg: cfg, rdb: rdb}
}

func (uc *UserCache) enabled() bool { return uc != nil && uc.cfg.Enabled && uc.rdb != nil }

func (uc *UserCache) genKey(userID string) string {
    return uc.cfg.Prefix + ":gen:" + userID
}

// Invalidate drops every cached response of userID.
func (uc *UserCache) Invalidate(ctx context.Context, userID string) error {
    if !uc.enabled() {
        return nil
    }
    return uc.rdb.Incr(ctx, uc.genKey(userID)).Err()
}

func (uc *UserCache) entryKey(ctx context.Context, c echo.Context, userID string) (string, error) {
    gen, err := uc.rdb.Get(ctx, uc.genKey(userID)).Int64()
    if err != nil && !errors.Is(err, redis.Nil) {
        return "", err
    }
    r := c.Request()
    sum := sha1.Sum([]byte(r.Method + " " + c.Path() + "?" + r.URL.RawQuery))
    return fmt.Sprintf("%s:u:%s:g%d:%x", uc.cfg.Prefix, userID, gen, sum[:]), nil
}

// Middleware serves cached responses and stores fresh 200 responses.  It
// must run after JWTAuth; unauthenticated requests are not cached.
func (uc *UserCache) Middleware() echo.MiddlewareFunc {
    if !uc.enabled() {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            uid := UserID(c)
            if c.Request().Method != http.MethodGet || uid == "" {
                return next(c)
            }
            ctx := c.Request().Context()
            key, err := uc.entryKey(ctx, c, uid)
            if err != nil {
                return next(c)
            }

            if bs, err := uc.rdb.Get(ctx, key).Bytes(); err == nil {
                if status, hdr, body, ok := decodePayload(bs); ok {
                    for k, vals := range hdr {
                        c.Response().Header()[k] = vals
                    }
                    c.Response().Header().Set("X-Cache", "HIT")
                    c.Response().WriteHeader(status)
                    _, _ = c.Response().Write(body)
                    return nil
                }
            }

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(uc.cfg.MaxBodyBytes)}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil {
                return err
            }
            if cw.status != http.StatusOK || cw.overflowed {
                return nil
            }
            if payload, err := encodePayload(cw.status, ownHeaders(c.Response().Header()), cw.buf.Bytes()); err == nil {
                _ = uc.rdb.Set(context.WithoutCancel(ctx), key, payload, uc.cfg.TTL).Err()
            }
            return nil
        }
    }
}
