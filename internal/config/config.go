package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string

	JWTSecret string
	// Previous secrets still accepted during key rollover, comma-separated.
	JWTFallbackSecrets []string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	AccessTokenCookie  string
	RefreshTokenCookie string
	CSRFTokenCookie    string
	// Secure on by default; only COOKIE_SECURE=false (local development)
	// turns it off.
	CookieSecure bool

	AuthRoutePrefixes []string

	// Optional JSON overlay for CSRF gate options, watched for changes.
	CSRFOptionsPath string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		KafkaBrokers:       []string{os.Getenv("KAFKA_BROKER")},
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenTTL:     parseDuration(os.Getenv("ACCESS_TOKEN_TTL"), 15*time.Minute),
		RefreshTokenTTL:    parseDuration(os.Getenv("REFRESH_TOKEN_TTL"), 30*24*time.Hour),
		AccessTokenCookie:  os.Getenv("ACCESS_TOKEN_COOKIE"),
		RefreshTokenCookie: os.Getenv("REFRESH_TOKEN_COOKIE"),
		CSRFTokenCookie:    os.Getenv("CSRF_TOKEN_COOKIE"),
		CookieSecure:       os.Getenv("COOKIE_SECURE") != "false",
		CSRFOptionsPath:    os.Getenv("CSRF_OPTIONS_PATH"),
	}

	if fallbacks := os.Getenv("JWT_FALLBACK_SECRETS"); fallbacks != "" {
		for _, s := range strings.Split(fallbacks, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.JWTFallbackSecrets = append(cfg.JWTFallbackSecrets, s)
			}
		}
	}

	if prefixes := os.Getenv("AUTH_ROUTE_PREFIXES"); prefixes != "" {
		for _, p := range strings.Split(prefixes, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.AuthRoutePrefixes = append(cfg.AuthRoutePrefixes, p)
			}
		}
	}

	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=auth sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}
	if cfg.AccessTokenCookie == "" {
		cfg.AccessTokenCookie = "access_token"
	}
	if cfg.RefreshTokenCookie == "" {
		cfg.RefreshTokenCookie = "refresh_token"
	}
	if cfg.CSRFTokenCookie == "" {
		cfg.CSRFTokenCookie = "csrf_token"
	}
	if len(cfg.AuthRoutePrefixes) == 0 {
		cfg.AuthRoutePrefixes = []string{"/api/v1/auth"}
	}

	slog.Info("config loaded",
		"postgres_dsn", cfg.PostgresDSN,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"access_token_ttl", cfg.AccessTokenTTL,
		"refresh_token_ttl", cfg.RefreshTokenTTL)
	return cfg
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration in env, using default", "value", raw, "default", fallback)
		return fallback
	}
	return d
}
