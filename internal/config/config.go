package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StoreBackend selects the queue store implementation.
type StoreBackend string

const (
	StoreUpstash StoreBackend = "upstash"
	StoreRedis   StoreBackend = "redis"
)

// Config holds everything both binaries read from the environment.
type Config struct {
	// Queue store.
	StoreBackend   StoreBackend
	UpstashRESTURL string
	UpstashToken   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	QueuePrefix    string

	// Relational storage.
	DatabaseURL string

	// Provider credentials.
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string

	// Worker tuning.
	PollInterval   time.Duration
	PrunerSchedule string

	// API server.
	APIAddr     string
	CORSOrigins []string
}

// Load reads configuration from the environment, honoring a local .env file
// when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		StoreBackend:   StoreBackend(getenv("FORGE_STORE_BACKEND", string(StoreUpstash))),
		UpstashRESTURL: os.Getenv("UPSTASH_REDIS_REST_URL"),
		UpstashToken:   os.Getenv("UPSTASH_REDIS_REST_TOKEN"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		QueuePrefix:    os.Getenv("FORGE_QUEUE_PREFIX"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),

		PollInterval:   3 * time.Second,
		PrunerSchedule: getenv("FORGE_PRUNER_SCHEDULE", "* * * * *"),

		APIAddr: getenv("FORGE_API_ADDR", ":8080"),
	}

	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	if raw := os.Getenv("FORGE_POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FORGE_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}

	if raw := getenv("FORGE_CORS_ORIGINS", "*"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if o := strings.TrimSpace(origin); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case StoreUpstash:
		if c.UpstashRESTURL == "" || c.UpstashToken == "" {
			return fmt.Errorf("UPSTASH_REDIS_REST_URL and UPSTASH_REDIS_REST_TOKEN are required for the upstash backend")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.OpenAIAPIKey == "" && c.AnthropicAPIKey == "" && c.GoogleAPIKey == "" {
		return fmt.Errorf("at least one provider API key must be set")
	}

	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
