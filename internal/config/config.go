package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Addr string

	DatabaseDSN string

	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	RedisAddr string
	// KeyCache selects where conversation keys are memoized: "memory" or "redis".
	KeyCache string

	// NATSURL enables marketplace events when set.
	NATSURL string

	LogLevel    string
	CORSOrigins []string
}

const (
	KeyCacheMemory = "memory"
	KeyCacheRedis  = "redis"
)

// Load reads .env when present, then the process environment.
// Variables already set in the environment win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Addr:        getenv("ADDR", ":8080"),
		DatabaseDSN: os.Getenv("DB_DSN"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   getenv("JWT_ISSUER", "go-market"),
		RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
		KeyCache:    strings.ToLower(getenv("KEY_CACHE", KeyCacheMemory)),
		NATSURL:     os.Getenv("NATS_URL"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(getenv("CORS_ORIGINS", "http://localhost:3000")),
	}

	ttl, err := time.ParseDuration(getenv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = ttl

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("DB_DSN is not set")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	switch c.KeyCache {
	case KeyCacheMemory, KeyCacheRedis:
	default:
		return fmt.Errorf("KEY_CACHE must be %q or %q, got %q", KeyCacheMemory, KeyCacheRedis, c.KeyCache)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
