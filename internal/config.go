package internal

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates every environment-driven setting the CLI commands in
// main.go need to wire up the registry, storage, and queue pipeline. It is
// the single place that reads os.Getenv so the rest of the package takes
// plain values and stays testable without environment coupling.
type Config struct {
	PostgresDSN string
	RedisAddr   string
	RedisPassword string
	RedisDB     int

	BookAPIEndpoint string
	BookAPIHost     string
	BookAPIKey      string
	FreeAPIBase     string
	OpenAIKey       string
	OpenAIModel     string

	WebhookEndpoint string
	WebhookSecret   string
	BackfillSecret  string

	BookAPIDailyLimit int64

	QueueBucketSize int
}

// LoadConfig reads a .env file if present (ignored if absent, matching
// godotenv's typical dev-convenience usage) and layers environment
// variables over the defaults below.
func LoadConfig() (Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	cfg := Config{
		PostgresDSN:       getenv("ALEXANDRIA_POSTGRES_DSN", "postgres://postgres@localhost:5432/alexandria"),
		RedisAddr:         getenv("ALEXANDRIA_REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getenv("ALEXANDRIA_REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("ALEXANDRIA_REDIS_DB", 0),
		BookAPIEndpoint:   getenv("ALEXANDRIA_BOOKAPI_ENDPOINT", "https://api.bookdata.example/graphql"),
		BookAPIHost:       getenv("ALEXANDRIA_BOOKAPI_HOST", "api.bookdata.example"),
		BookAPIKey:        getenv("ALEXANDRIA_BOOKAPI_KEY", ""),
		FreeAPIBase:       getenv("ALEXANDRIA_FREEAPI_BASE", "https://free.bookdata.example"),
		OpenAIKey:         getenv("ALEXANDRIA_OPENAI_KEY", ""),
		OpenAIModel:       getenv("ALEXANDRIA_OPENAI_MODEL", ""),
		WebhookEndpoint:   getenv("ALEXANDRIA_WEBHOOK_ENDPOINT", ""),
		WebhookSecret:     getenv("ALEXANDRIA_WEBHOOK_SECRET", ""),
		BackfillSecret:    getenv("ALEXANDRIA_BACKFILL_SECRET", ""),
		BookAPIDailyLimit: int64(getenvInt("ALEXANDRIA_BOOKAPI_DAILY_LIMIT", 15000)),
		QueueBucketSize:   getenvInt("ALEXANDRIA_BACKFILL_BUCKET_SIZE", 500),
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ShutdownGracePeriod bounds how long QueuePipeline.Shutdown waits for
// in-flight batches to drain before the server cancels them outright (§6
// "graceful shutdown must drain in-flight batches up to a configured
// deadline, then fail-fast pending tasks with cancellation").
func ShutdownGracePeriod() time.Duration { return 30 * time.Second }
