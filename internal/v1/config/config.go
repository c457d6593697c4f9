package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default liveness and lifecycle tunables. These match the values the
// browser extension assumes, so change them together with the client.
const (
	DefaultPingInterval    = 15 * time.Second
	DefaultActivityTimeout = 2 * time.Hour
	DefaultRoomEmptyGrace  = 24 * time.Hour
)

// Config holds validated environment configuration
type Config struct {
	// Required in production
	SessionSecret string
	Port          string

	// Token verification
	TokenAudience string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  string

	// Room defaults
	DefaultEncryptionRequired bool
	RoomEmptyGrace            time.Duration
	PingInterval              time.Duration
	ActivityTimeout           time.Duration

	// Metadata mirror (optional)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Tracing (optional)
	OTelCollectorAddr string
}

// ValidateEnv validates all required environment variables and returns a Config object.
// Returns an error if any required variable is missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"

	// Required: SESSION_SECRET (minimum 32 characters). Development mode may
	// run without one, in which case tokens are accepted unsigned.
	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		if !cfg.DevelopmentMode {
			errs = append(errs, "SESSION_SECRET is required in production")
		}
	} else if len(cfg.SessionSecret) < 32 {
		errs = append(errs, fmt.Sprintf("SESSION_SECRET must be at least 32 characters (got %d)", len(cfg.SessionSecret)))
	}

	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Empty audience enables dev-mode token acceptance in the verifier.
	cfg.TokenAudience = os.Getenv("TOKEN_AUDIENCE")

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.DefaultEncryptionRequired = os.Getenv("DEFAULT_ENCRYPTION_REQUIRED") == "true"
	cfg.OTelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	cfg.RoomEmptyGrace = getDurationOrDefault("ROOM_EMPTY_GRACE", DefaultRoomEmptyGrace, &errs)
	cfg.PingInterval = getDurationOrDefault("PING_INTERVAL", DefaultPingInterval, &errs)
	cfg.ActivityTimeout = getDurationOrDefault("ACTIVITY_TIMEOUT", DefaultActivityTimeout, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"session_secret", redactSecret(cfg.SessionSecret),
		"port", cfg.Port,
		"token_audience", cfg.TokenAudience,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"default_encryption_required", cfg.DefaultEncryptionRequired,
		"room_empty_grace", cfg.RoomEmptyGrace.String(),
		"ping_interval", cfg.PingInterval.String(),
		"activity_timeout", cfg.ActivityTimeout.String(),
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getDurationOrDefault parses an environment variable as a Go duration.
func getDurationOrDefault(key string, defaultValue time.Duration, errs *[]string) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be a positive Go duration (got '%s')", key, value))
		return defaultValue
	}
	return d
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
