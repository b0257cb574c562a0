package internal

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"ALEXANDRIA_POSTGRES_DSN", "ALEXANDRIA_REDIS_ADDR", "ALEXANDRIA_BOOKAPI_DAILY_LIMIT",
	} {
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres://postgres@localhost:5432/alexandria", cfg.PostgresDSN)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.EqualValues(t, 15000, cfg.BookAPIDailyLimit)
	assert.Equal(t, 500, cfg.QueueBucketSize)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ALEXANDRIA_POSTGRES_DSN", "postgres://test/db")
	t.Setenv("ALEXANDRIA_BOOKAPI_DAILY_LIMIT", "42")
	t.Setenv("ALEXANDRIA_REDIS_DB", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres://test/db", cfg.PostgresDSN)
	assert.EqualValues(t, 42, cfg.BookAPIDailyLimit)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestGetenvIntFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("ALEXANDRIA_BACKFILL_BUCKET_SIZE", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.QueueBucketSize)
}

func TestShutdownGracePeriod(t *testing.T) {
	assert.Equal(t, 30*time.Second, ShutdownGracePeriod())
}
