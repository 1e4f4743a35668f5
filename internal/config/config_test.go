package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyglance/skyglance/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "en", cfg.DefaultLanguage)
	assert.Equal(t, "metric", cfg.DefaultUnits)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.True(t, cfg.Providers.NominatimEnabled)
	assert.True(t, cfg.Region.Enabled)
	assert.Equal(t, 2500*time.Millisecond, cfg.Region.ProbeTimeout)
	assert.Equal(t, config.MirrorNone, cfg.Cache.Mirror)
	assert.Equal(t, config.FlagStoreMemory, cfg.Flags.Store)
	assert.Equal(t, 15*time.Minute, cfg.Worker.Interval)
	assert.Equal(t, 3, cfg.Worker.Concurrency)
	assert.Equal(t, "skyglance", cfg.Database.Database)
	assert.False(t, cfg.NeedsDatabase())
	assert.False(t, cfg.RequireTLS)
	assert.Empty(t, cfg.Admin.SigningKey)
	assert.Equal(t, "skyglance-ops", cfg.Admin.Audience)
	assert.InDelta(t, 1.0, cfg.Telemetry.SampleRatio, 1e-9)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("OPENWEATHERMAP_API_KEY", "owm-key")
	t.Setenv("NOMINATIM_ENABLED", "false")
	t.Setenv("REGION_PROBE_TIMEOUT", "1s")
	t.Setenv("CACHE_MIRROR", "Redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("FLAG_STORE", "postgres")
	t.Setenv("REFRESH_CRON", "*/30 * * * *")
	t.Setenv("FAVOURITES", "Tehran:35.6892,51.389")
	t.Setenv("DEFAULT_UNITS", "imperial")
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")
	t.Setenv("OTEL_SAMPLE_RATIO", "0.1")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "owm-key", cfg.Providers.OpenWeatherMapAPIKey)
	assert.False(t, cfg.Providers.NominatimEnabled)
	assert.Equal(t, time.Second, cfg.Region.ProbeTimeout)
	assert.Equal(t, config.MirrorRedis, cfg.Cache.Mirror)
	assert.Equal(t, 2, cfg.Cache.RedisDB)
	assert.Equal(t, "*/30 * * * *", cfg.Worker.Cron)
	assert.Equal(t, "Tehran:35.6892,51.389", cfg.Worker.Favourites)
	assert.Equal(t, "imperial", cfg.DefaultUnits)
	assert.True(t, cfg.NeedsDatabase())
	assert.Equal(t, "s3cret", cfg.Admin.SigningKey)
	assert.InDelta(t, 0.1, cfg.Telemetry.SampleRatio, 1e-9)
}

func TestFromEnv_ReportsEveryInvalidValue(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "maybe")
	t.Setenv("REFRESH_INTERVAL", "soon")
	t.Setenv("CACHE_MIRROR", "memcached")
	t.Setenv("DEFAULT_UNITS", "kelvin")
	t.Setenv("OTEL_SAMPLE_RATIO", "half")

	_, err := config.FromEnv()
	require.Error(t, err)
	for _, key := range []string{"OTEL_ENABLED", "REFRESH_INTERVAL", "CACHE_MIRROR", "DEFAULT_UNITS", "OTEL_SAMPLE_RATIO"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_PORT=7070\nDEFAULT_LANGUAGE=fa\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("APP_PORT") })

	// Real environment wins over .env.
	t.Setenv("DEFAULT_LANGUAGE", "ku")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "ku", cfg.DefaultLanguage)
}

func TestLoad_NoDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := config.Load()
	require.NoError(t, err)
}
