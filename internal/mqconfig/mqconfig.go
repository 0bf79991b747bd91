// Package mqconfig loads the handful of environment variables the cmd/
// example programs share: the Redis address and the logging level/format,
// the same envOrDefault convention the teacher's cmd/eventdispatcher uses,
// layered on top of a .env file via godotenv.
package mqconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings every example program needs to connect and log.
type Config struct {
	RedisAddress   string
	LogLevel       string
	LogFormat      string
	Namespace      string
	ConfirmTimeout time.Duration
}

// Load reads a .env file if present (missing is not an error, matching
// godotenv.Load's own convention) and returns a Config populated from the
// environment, falling back to sensible defaults for local development.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		RedisAddress:   envOrDefault("REDISMQ_ADDRESS", "redis://localhost:6379"),
		LogLevel:       envOrDefault("REDISMQ_LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("REDISMQ_LOG_FORMAT", "console"),
		Namespace:      envOrDefault("REDISMQ_NAMESPACE", "rmq"),
		ConfirmTimeout: envDurationOrDefault("REDISMQ_CONFIRM_TIMEOUT", 10*time.Second),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
