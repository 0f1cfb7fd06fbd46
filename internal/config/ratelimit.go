package config

import "time"

// RateLimitConfig controls the token bucket applied to /api routes.  When
// Redis is reachable the bucket state lives there so every instance shares
// it; otherwise an in-process limiter with the same capacity is used.
//
// The auth endpoints (signup, login, password reset) get their own, smaller
// bucket under a separate key prefix, see ForAuth.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string // ip, user, route or an underscore-joined mix such as ip_user
    Prefix         string
    Debug          bool

    AuthCapacity int
}

func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
        AuthCapacity:   envInt("RATE_LIMIT_AUTH_CAPACITY", 10),
    }
    // RATE_LIMIT_REFILL_EVERY is the one-token-per-interval shorthand.
    if every := envDur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
        cfg.RefillTokens = 1
        cfg.RefillInterval = every
    }
    return cfg.normalized()
}

// ForAuth derives the bucket for unauthenticated account endpoints.  Keys
// are per IP because there is no user yet.
func (c RateLimitConfig) ForAuth() RateLimitConfig {
    a := c
    a.Capacity = c.AuthCapacity
    a.KeyStrategy = "ip"
    a.Prefix = c.Prefix + ":auth"
    return a.normalized()
}

// normalized clamps values that would make the bucket unusable.
func (c RateLimitConfig) normalized() RateLimitConfig {
    if c.Capacity < 1 {
        c.Capacity = 1
    }
    if c.AuthCapacity < 1 {
        c.AuthCapacity = c.Capacity
    }
    if c.RefillTokens < 1 {
        c.RefillTokens = 1
    }
    if c.RefillInterval <= 0 {
        c.RefillInterval = time.Second
    }
    if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
        c.TTL = minTTL
    }
    return c
}
