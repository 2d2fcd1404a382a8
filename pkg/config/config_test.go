package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.Host.BaseURL)
	assert.NotEmpty(t, cfg.Host.UserAgents)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RequestDelay)
	assert.Equal(t, 1, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, 0.8, cfg.Validator.SuspiciousRatioMax)
	assert.Equal(t, 0.2, cfg.Validator.HighQualityRatioMin)
	assert.Equal(t, 0.5, cfg.Validator.ValidProductRatioMin)
	assert.Equal(t, 0.9, cfg.Validator.DuplicateRatioMax)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kitscraper.yaml")
	content := `
host:
  base_url: https://shop.example.com
rate_limit:
  request_delay: 5s
  delay_jitter: 2s
validator:
  suspicious_ratio_max: 0.7
output:
  base_directory: /tmp/out
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "https://shop.example.com", cfg.Host.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.RequestDelay)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.DelayJitter)
	assert.Equal(t, 0.7, cfg.Validator.SuspiciousRatioMax)
	assert.Equal(t, "/tmp/out", cfg.Output.BaseDirectory)
	// Untouched sections keep defaults
	assert.Equal(t, 3, cfg.Download.MaxAttempts)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KITSCRAPER_BASE_URL", "https://env.example.com")
	t.Setenv("KITSCRAPER_OUTPUT_DIR", "/data/harvest")
	t.Setenv("KITSCRAPER_REQUESTS_PER_MINUTE", "12")
	t.Setenv("KITSCRAPER_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://env.example.com", cfg.Host.BaseURL)
	assert.Equal(t, "/data/harvest", cfg.Output.BaseDirectory)
	assert.Equal(t, 12, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("KITSCRAPER_REQUESTS_PER_MINUTE", "not-a-number")
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromEnv())
}

func TestApplyFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyFlags(map[string]interface{}{
		"base-directory":       "/flags/out",
		"concurrent-downloads": 2,
		"requests-per-minute":  10,
		"request-delay":        4 * time.Second,
		"max-pages":            5,
		"log-level":            "warn",
	})

	assert.Equal(t, "/flags/out", cfg.Output.BaseDirectory)
	assert.Equal(t, 2, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, 10, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 4*time.Second, cfg.RateLimit.RequestDelay)
	assert.Equal(t, 5, cfg.Discovery.MaxPages)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Host.BaseURL = "" }},
		{"no user agents", func(c *Config) { c.Host.UserAgents = nil }},
		{"jitter above delay", func(c *Config) { c.RateLimit.DelayJitter = 10 * time.Second }},
		{"zero workers", func(c *Config) { c.Download.ConcurrentDownloads = 0 }},
		{"zero attempts", func(c *Config) { c.Download.MaxAttempts = 0 }},
		{"max below min size", func(c *Config) { c.Download.MinFileSize = 100; c.Download.MaxFileSize = 10 }},
		{"ratio out of range", func(c *Config) { c.Validator.SuspiciousRatioMax = 1.5 }},
		{"zero breaker threshold", func(c *Config) { c.Crawl.BreakerThreshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.BaseDirectory = "/srv/harvest"

	assert.Equal(t, filepath.Join("/srv/harvest", "progress.json"), cfg.ProgressPath())
	assert.Equal(t, filepath.Join("/srv/harvest", "failed_items.json"), cfg.FailedItemsPath())
	assert.Equal(t, filepath.Join("/srv/harvest", "reports"), cfg.ReportsPath())

	cfg.Output.ProgressFile = "/elsewhere/p.json"
	assert.Equal(t, "/elsewhere/p.json", cfg.ProgressPath())
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefault(path))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	assert.NoError(t, cfg.Validate())
}
