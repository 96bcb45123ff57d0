package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port          string
	AllowedOrigin string

	// DBPath is the sqlite database file. Empty selects the in-memory store.
	DBPath string

	RemoteBaseURL string

	SyncInterval  time.Duration
	SyncTimeout   time.Duration
	ProbeInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8090"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		DBPath:        getEnv("DB_PATH", "pos.db"),
		RemoteBaseURL: getEnv("REMOTE_BASE_URL", ""),
		SyncInterval:  getEnvSeconds("SYNC_INTERVAL_SECONDS", 120),
		SyncTimeout:   getEnvSeconds("SYNC_TIMEOUT_SECONDS", 30),
		ProbeInterval: getEnvSeconds("PROBE_INTERVAL_SECONDS", 15),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
