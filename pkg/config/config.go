// Package config loads the runtime configuration from the environment,
// honoring .env files the way local deployments expect.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults match a local single-node deployment.
const (
	DefaultMongoURL      = "mongodb://localhost:8765/"
	DefaultMongoDatabase = "rss"
	DefaultLLMURL        = "http://localhost:8989"
	DefaultLLMModel      = "gpt-3.5-turbo"
	DefaultHTTPAddr      = ":8000"
	DefaultWorkerCount   = 1
	DefaultPollInterval  = 2 * time.Second
	DefaultMaxChunkChars = 12000
	DefaultLogLevel      = "info"
)

// Config is the full runtime configuration.
type Config struct {
	MongoURL      string
	MongoDatabase string

	LLMURL   string
	LLMModel string
	LLMToken string

	HTTPAddr      string
	WorkerCount   int
	PollInterval  time.Duration
	MaxChunkChars int

	LogLevel string
}

// LoadEnvFiles loads .env.local then .env if present. Variables already in
// the environment win.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment after applying .env
// files.
func Load() (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{
		MongoURL:      getString("MONGODB_URL", DefaultMongoURL),
		MongoDatabase: getString("MONGODB_DATABASE", DefaultMongoDatabase),
		LLMURL:        getString("LLAMACPP_URL", DefaultLLMURL),
		LLMModel:      getString("LLM_MODEL", DefaultLLMModel),
		LLMToken:      os.Getenv("TOKEN"),
		HTTPAddr:      getString("HTTP_ADDR", DefaultHTTPAddr),
		LogLevel:      getString("LOG_LEVEL", DefaultLogLevel),
	}

	var err error
	if cfg.WorkerCount, err = getInt("WORKER_COUNT", DefaultWorkerCount); err != nil {
		return nil, err
	}
	if cfg.MaxChunkChars, err = getInt("MAX_CHUNK_CHARS", DefaultMaxChunkChars); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", DefaultPollInterval); err != nil {
		return nil, err
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if cfg.MaxChunkChars < 1 {
		return nil, fmt.Errorf("MAX_CHUNK_CHARS must be positive")
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// getDuration accepts Go duration strings ("2s") and bare integers, which
// are read as seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
