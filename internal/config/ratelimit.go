package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig defines settings for the public-endpoint rate limiter.
// The availability and claim endpoints sit on an unauthenticated signup
// flow, so they are limited per client IP.  When Enabled is false or no
// Redis client is configured the limiter becomes a no-op.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int           // bucket size per client
	RefillTokens   int           // tokens added per refill interval
	RefillInterval time.Duration // how often the bucket refills
	TTL            time.Duration // how long idle buckets live in Redis
	Prefix         string        // key namespace
}

// LoadRateLimitConfig reads environment variables to build a
// RateLimitConfig.  Defaults allow 30 requests with a refill of 10 per
// 10 seconds, which is generous for humans and tight for scrapers.
func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:        getenv("RATELIMIT_ENABLED", "true") == "true",
		Capacity:       atoi(getenv("RATELIMIT_CAPACITY", "30")),
		RefillTokens:   atoi(getenv("RATELIMIT_REFILL_TOKENS", "10")),
		RefillInterval: parseDur(getenv("RATELIMIT_REFILL_INTERVAL", "10s")),
		TTL:            parseDur(getenv("RATELIMIT_TTL", "10m")),
		Prefix:         getenv("RATELIMIT_PREFIX", "rl"),
	}
}

// Helper functions shared by the config loaders in this package.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Second
	}
	return d
}
