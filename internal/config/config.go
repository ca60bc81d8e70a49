// Package config loads the process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr     string
	APIToken string

	ChunkSize       int
	MaxRetries      int
	RetryBackoff    time.Duration
	ConnectTimeout  time.Duration
	ReadIdleTimeout time.Duration

	RepoBackend string

	LogLevel string
	LogFile  string
}

// FromEnv reads the configuration with defaults. Provider credentials are
// read by the provider constructors themselves (NewFromEnv).
func FromEnv() Config {
	return Config{
		Addr:            getenv("DEBRIX_ADDR", ":8080"),
		APIToken:        os.Getenv("DEBRIX_API_TOKEN"),
		ChunkSize:       getint("CHUNK_SIZE", 8192),
		MaxRetries:      getint("MAX_RETRIES", 3),
		RetryBackoff:    getms("RETRY_BACKOFF_MS", 1000),
		ConnectTimeout:  getms("CONNECT_TIMEOUT_MS", 30000),
		ReadIdleTimeout: getms("READ_IDLE_TIMEOUT_MS", 300000),
		RepoBackend:     getenv("REPO_BACKEND", "memory"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFile:         os.Getenv("LOG_FILE"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}

func getms(k string, def int) time.Duration {
	return time.Duration(getint(k, def)) * time.Millisecond
}
