package middleware

import (
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "github.com/iliyamo/stock-image-platform/internal/config"
)

// limiterScript refills the bucket in whole intervals, takes one token if
// available and reports {allowed, remaining, retry_after_ms}.
var limiterScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        local until_next = interval_ms - (now_ms - last_refill)
        if until_next < 0 then until_next = 0 end
        retry_after_ms = until_next
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// NewRateLimiter picks the shared Redis bucket when a client is available and
// the in-process limiter otherwise.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
    if rdb == nil {
        return NewLocalLimiter(cfg)
    }
    return NewTokenBucket(cfg, rdb, log)
}

// NewTokenBucket limits requests with a bucket stored in Redis, shared by all
// instances.  Redis errors let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if log == nil {
        log = zap.NewNop()
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            args := []interface{}{
                time.Now().UnixMilli(),
                cfg.Capacity,
                cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(),
                int64(cfg.TTL / time.Second),
            }
            vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Slice()
            if err != nil || len(vals) != 3 {
                if cfg.Debug {
                    log.Warn("ratelimit: script failed", zap.String("key", key), zap.Error(err))
                }
                return next(c)
            }
            allowed := asInt64(vals[0]) == 1
            remaining := asInt64(vals[1])
            retryMs := asInt64(vals[2])

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
            if !allowed {
                if cfg.Debug {
                    log.Info("ratelimit: blocked", zap.String("key", key), zap.Int64("retry_ms", retryMs))
                }
                return tooMany(c, time.Duration(retryMs)*time.Millisecond)
            }
            if cfg.Debug {
                c.Response().Header().Set("X-RateLimit-Key", key)
            }
            return next(c)
        }
    }
}

// NewLocalLimiter is the single-process fallback built on x/time/rate.  One
// limiter per key refills RefillTokens every RefillInterval up to Capacity;
// limiters idle for longer than TTL are dropped.
func NewLocalLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    type entry struct {
        lim  *rate.Limiter
        seen time.Time
    }
    var (
        mu      sync.Mutex
        entries = map[string]*entry{}
        swept   = time.Now()
        every   = rate.Limit(float64(cfg.RefillTokens) / cfg.RefillInterval.Seconds())
    )
    get := func(key string, now time.Time) *rate.Limiter {
        mu.Lock()
        defer mu.Unlock()
        if now.Sub(swept) > cfg.TTL {
            for k, e := range entries {
                if now.Sub(e.seen) > cfg.TTL {
                    delete(entries, k)
                }
            }
            swept = now
        }
        e, ok := entries[key]
        if !ok {
            e = &entry{lim: rate.NewLimiter(every, cfg.Capacity)}
            entries[key] = e
        }
        e.seen = now
        return e.lim
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            now := time.Now()
            lim := get(buildRateKey(cfg, c), now)
            r := lim.ReserveN(now, 1)
            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            if delay := r.DelayFrom(now); delay > 0 {
                r.CancelAt(now)
                c.Response().Header().Set("X-RateLimit-Remaining", "0")
                return tooMany(c, delay)
            }
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.TokensAt(now))))
            return next(c)
        }
    }
}

func tooMany(c echo.Context, retry time.Duration) error {
    secs := int(math.Ceil(retry.Seconds()))
    if secs < 0 {
        secs = 0
    }
    c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
    return c.JSON(http.StatusTooManyRequests, echo.Map{
        "success": false,
        "message": fmt.Sprintf("Rate limit exceeded, retry in %ds", secs),
    })
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := userOrAnon(c)
    route := c.Request().Method + " " + c.Path()

    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
