package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Base URL of the remote cart REST API.
	APIURL         string
	RequestTimeout time.Duration

	// Consecutive transport failures that open the circuit to the cart API;
	// 0 disables the breaker.
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration

	HTTPPort        string
	BackendPort     string
	ShutdownTimeout time.Duration

	// memory | redis
	CredentialBackend string
	SessionName       string
	SessionTTL        time.Duration

	RedisAddr     string
	RedisPassword string
	SnapshotCache bool

	LogLevel string
	AppEnv   string
}

// Load reads the environment, after merging any .env files found in the
// working directory. Variables already set in the environment win.
func Load(envFiles ...string) *Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// a missing .env is normal outside local development
		_ = godotenv.Load(f)
	}

	return &Config{
		APIURL:         getEnv("STOREFRONT_API_URL", "http://localhost:8090"),
		RequestTimeout: parseDuration(getEnv("REQUEST_TIMEOUT", "10s"), 10*time.Second),

		BreakerFailures:    parseUint32(getEnv("BREAKER_FAILURES", "5"), 5),
		BreakerOpenTimeout: parseDuration(getEnv("BREAKER_OPEN_TIMEOUT", "30s"), 30*time.Second),

		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		BackendPort:     getEnv("BACKEND_PORT", "8090"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),

		CredentialBackend: strings.ToLower(getEnv("CREDENTIAL_BACKEND", "memory")),
		SessionName:       getEnv("SESSION_NAME", "default"),
		SessionTTL:        parseDuration(getEnv("SESSION_TTL", "0s"), 0),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SnapshotCache: parseBool(getEnv("SNAPSHOT_CACHE", "off")),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		AppEnv:   getEnv("APP_ENV", "production"),
	}
}

// UsesRedis reports whether any configured component needs a redis connection.
func (c *Config) UsesRedis() bool {
	return c.CredentialBackend == "redis" || c.SnapshotCache
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); strings.TrimSpace(value) != "" {
		return value
	}
	return defaultValue
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func parseUint32(v string, def uint32) uint32 {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return def
	}
	return uint32(n)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
