// Package config loads runtime configuration from the environment. There is
// no config file format and no remote config service: every setting is an
// env var with a documented default, in keeping with how this service has
// always been deployed (container env vars set by the orchestrator).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fidlabs/piece-sentinel/internal/proxy"
)

const (
	DefaultLogLevel        = "info"
	DefaultChainRPCURL     = "https://api.node.glif.io/rpc/v1"
	DefaultContactIndexURL = "https://cid.contact"
	DefaultProxyURL        = "US"

	DefaultBMSWorkerCount         int64 = 10
	DefaultBMSTestIntervalDays          = 7
	DefaultMaxConcurrentProviders       = 10
	MaxConcurrentProvidersCeiling       = 100

	DefaultBreakerThreshold uint64 = 5
	DefaultBreakerCooldown         = 5 * time.Minute

	ShutdownTimeout = 30 * time.Second
)

// Config holds every tunable the service reads from its environment. Fields
// are resolved once at startup; nothing here is hot-reloaded.
type Config struct {
	DatabaseURL     string
	DealCatalogURL  string
	RedisURL        string
	LogLevel        string
	ChainRPCURL     string
	ContactIndexURL string
	BMSURL          string

	BMSDefaultWorkerCount  int64
	BMSTestIntervalDays    int
	MaxConcurrentProviders int

	BreakerThreshold uint64
	BreakerCooldown  time.Duration

	Proxy proxy.Config
}

// FromEnv builds a Config from the process environment, falling back to
// documented defaults for everything except the handful of settings that
// have no safe default (DATABASE_URL, DMOB_DATABASE_URL, BMS_URL).
func FromEnv() (*Config, error) {
	dbURL, err := requireEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	dealCatalogURL, err := requireEnv("DMOB_DATABASE_URL")
	if err != nil {
		return nil, err
	}
	bmsURL, err := requireEnv("BMS_URL")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:     dbURL,
		DealCatalogURL:  dealCatalogURL,
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		ChainRPCURL:     getEnv("GLIF_URL", DefaultChainRPCURL),
		ContactIndexURL: getEnv("CID_CONTACT_URL", DefaultContactIndexURL),
		BMSURL:          bmsURL,

		BMSDefaultWorkerCount:  positiveInt64FromEnv("BMS_WORKER_COUNT", DefaultBMSWorkerCount),
		BMSTestIntervalDays:    int(positiveInt64FromEnv("BMS_TEST_INTERVAL_DAYS", DefaultBMSTestIntervalDays)),
		MaxConcurrentProviders: boundedIntFromEnv("MAX_CONCURRENT_PROVIDERS", DefaultMaxConcurrentProviders, 1, MaxConcurrentProvidersCeiling),

		BreakerThreshold: uint64(positiveInt64FromEnv("BMS_BREAKER_THRESHOLD", int64(DefaultBreakerThreshold))),
		BreakerCooldown:  durationFromEnv("BMS_BREAKER_COOLDOWN", DefaultBreakerCooldown),

		Proxy: proxy.Config{
			URL:         getEnv("PROXY_URL", DefaultProxyURL),
			User:        os.Getenv("PROXY_USER"),
			Password:    os.Getenv("PROXY_PASSWORD"),
			DefaultPort: int(positiveInt64FromEnv("PROXY_DEFAULT_PORT", 0)),
			IPCount:     int(positiveInt64FromEnv("PROXY_IP_COUNT", 0)),
		},
	}

	// A proxy only makes sense with a default port to rotate from; an
	// unset PROXY_URL ("US" by default, same as upstream) with no port
	// configured disables the proxy entirely rather than dialing garbage.
	if cfg.Proxy.DefaultPort == 0 {
		cfg.Proxy = proxy.Config{}
	}

	return cfg, nil
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("config: %s must be set", key)
	}
	return v, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// positiveInt64FromEnv mirrors the original parse-or-default behavior:
// anything unset, non-numeric, or non-positive falls back to the default
// with a warning rather than failing startup.
func positiveInt64FromEnv(key string, fallback int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Warn().Str("env", key).Str("value", s).Err(err).Msg("not a valid integer, using default")
		return fallback
	}
	if v <= 0 {
		log.Warn().Str("env", key).Int64("value", v).Msg("not positive, using default")
		return fallback
	}
	return v
}

func boundedIntFromEnv(key string, fallback, min, max int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < min || v > max {
		log.Warn().Str("env", key).Str("value", s).Msg("out of range, using default")
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	seconds, err := strconv.ParseInt(s, 10, 64)
	if err != nil || seconds <= 0 {
		log.Warn().Str("env", key).Str("value", s).Msg("not a valid positive duration in seconds, using default")
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
