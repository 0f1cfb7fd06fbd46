package config

import (
    "time"
)

// CacheConfig defines settings for the per-user image list cache.  When
// Enabled is false or no Redis client is configured, caching is disabled.
// Entries are keyed by user and by a per-user generation number; bumping
// the generation after a write makes every older entry unreachable, and the
// TTL reclaims them.  MaxBodyBytes caps what is stored for one response.
type CacheConfig struct {
    Enabled      bool
    TTL          time.Duration
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  Defaults
// are used when variables are not set.
func LoadCacheConfig() CacheConfig {
    cfg := CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        TTL:          envDur("CACHE_TTL", 30*time.Second),
        Prefix:       envStr("CACHE_PREFIX", "cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1048576),
    }
    if cfg.TTL <= 0 {
        cfg.TTL = 30 * time.Second
    }
    return cfg
}
