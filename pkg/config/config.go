package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the gallery harvester
type Config struct {
	// Target host settings
	Host HostConfig `yaml:"host" json:"host"`

	// Request pacing and throttling
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Album discovery tuning
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Gallery validation thresholds
	Validator ValidatorConfig `yaml:"validator" json:"validator"`

	// Download and verification settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Orchestration: delays, retries, circuit breaker
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Output layout and progress files
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// HostConfig describes the photo-hosting platform being harvested
type HostConfig struct {
	BaseURL    string   `yaml:"base_url" json:"base_url"`
	UserAgents []string `yaml:"user_agents" json:"user_agents"`
	// Headers are extra request headers sent on every fetch, merged over
	// the built-in defaults (e.g. a Referer some hosts require)
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// RateLimitConfig controls inter-request pacing
type RateLimitConfig struct {
	// RequestDelay is the base delay between requests; actual delay is
	// RequestDelay +/- DelayJitter.
	RequestDelay time.Duration `yaml:"request_delay" json:"request_delay"`
	DelayJitter  time.Duration `yaml:"delay_jitter" json:"delay_jitter"`
	// ErrorDelay is the base of the linear backoff after a failed fetch
	// (ErrorDelay * attempt number).
	ErrorDelay time.Duration `yaml:"error_delay" json:"error_delay"`
	// RequestsPerMinute caps total request volume regardless of delays
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// DiscoveryConfig tunes the album discovery walk
type DiscoveryConfig struct {
	MaxPages int `yaml:"max_pages" json:"max_pages"`
	// PageFailureLimit stops pagination after this many consecutive page
	// failures with zero albums collected.
	PageFailureLimit    int `yaml:"page_failure_limit" json:"page_failure_limit"`
	MinTitleLength      int `yaml:"min_title_length" json:"min_title_length"`
	MaxFolderNameLength int `yaml:"max_folder_name_length" json:"max_folder_name_length"`
}

// ValidatorConfig holds the gallery validator thresholds. The defaults are
// empirical values tuned against the target host, not derived constants.
type ValidatorConfig struct {
	SuspiciousRatioMax   float64 `yaml:"suspicious_ratio_max" json:"suspicious_ratio_max"`
	HighQualityRatioMin  float64 `yaml:"high_quality_ratio_min" json:"high_quality_ratio_min"`
	ValidProductRatioMin float64 `yaml:"valid_product_ratio_min" json:"valid_product_ratio_min"`
	DuplicateRatioMax    float64 `yaml:"duplicate_ratio_max" json:"duplicate_ratio_max"`
}

// DownloadConfig holds download and verification settings
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	MaxAttempts         int           `yaml:"max_attempts" json:"max_attempts"`
	ImageDelay          time.Duration `yaml:"image_delay" json:"image_delay"`
	MinFileSize         int64         `yaml:"min_file_size" json:"min_file_size"`
	MaxFileSize         int64         `yaml:"max_file_size" json:"max_file_size"`
	MinDimension        int           `yaml:"min_dimension" json:"min_dimension"`
}

// CrawlConfig holds orchestration settings
type CrawlConfig struct {
	AlbumDelay          time.Duration `yaml:"album_delay" json:"album_delay"`
	AlbumRetryAttempts  int           `yaml:"album_retry_attempts" json:"album_retry_attempts"`
	AlbumRetryBaseDelay time.Duration `yaml:"album_retry_base_delay" json:"album_retry_base_delay"`
	// BreakerThreshold consecutive album failures trigger a cool-down pause
	BreakerThreshold int           `yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" json:"breaker_cooldown"`
	// CheckpointEvery flushes the progress store after this many recorded items
	CheckpointEvery int `yaml:"checkpoint_every" json:"checkpoint_every"`
	// ProgressEvery emits a progress summary after this many albums
	ProgressEvery int `yaml:"progress_every" json:"progress_every"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory    string `yaml:"base_directory" json:"base_directory"`
	ProgressFile     string `yaml:"progress_file" json:"progress_file"`
	FailedItemsFile  string `yaml:"failed_items_file" json:"failed_items_file"`
	ReportsDirectory string `yaml:"reports_directory" json:"reports_directory"`
	// CategoryManifest points at a YAML category manifest; empty uses the
	// embedded default catalog.
	CategoryManifest string `yaml:"category_manifest" json:"category_manifest"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host: HostConfig{
			BaseURL: "https://x.yupoo.com",
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
			},
		},
		RateLimit: RateLimitConfig{
			RequestDelay:      2 * time.Second,
			DelayJitter:       time.Second,
			ErrorDelay:        3 * time.Second,
			RequestsPerMinute: 30,
		},
		Discovery: DiscoveryConfig{
			MaxPages:            10,
			PageFailureLimit:    3,
			MinTitleLength:      3,
			MaxFolderNameLength: 56,
		},
		Validator: ValidatorConfig{
			SuspiciousRatioMax:   0.8,
			HighQualityRatioMin:  0.2,
			ValidProductRatioMin: 0.5,
			DuplicateRatioMax:    0.9,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 1,
			DownloadTimeout:     30 * time.Second,
			MaxAttempts:         3,
			ImageDelay:          500 * time.Millisecond,
			MinFileSize:         1024,
			MaxFileSize:         20 * 1024 * 1024,
			MinDimension:        50,
		},
		Crawl: CrawlConfig{
			AlbumDelay:          3 * time.Second,
			AlbumRetryAttempts:  3,
			AlbumRetryBaseDelay: 5 * time.Second,
			BreakerThreshold:    5,
			BreakerCooldown:     time.Minute,
			CheckpointEvery:     10,
			ProgressEvery:       10,
		},
		Output: OutputConfig{
			BaseDirectory:    "./harvest",
			ProgressFile:     "",
			FailedItemsFile:  "",
			ReportsDirectory: "",
			CategoryManifest: "",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ProgressPath resolves the progress file location, defaulting under the
// output directory.
func (c *Config) ProgressPath() string {
	if c.Output.ProgressFile != "" {
		return c.Output.ProgressFile
	}
	return filepath.Join(c.Output.BaseDirectory, "progress.json")
}

// FailedItemsPath resolves the failed-items log location
func (c *Config) FailedItemsPath() string {
	if c.Output.FailedItemsFile != "" {
		return c.Output.FailedItemsFile
	}
	return filepath.Join(c.Output.BaseDirectory, "failed_items.json")
}

// ReportsPath resolves the per-run report directory
func (c *Config) ReportsPath() string {
	if c.Output.ReportsDirectory != "" {
		return c.Output.ReportsDirectory
	}
	return filepath.Join(c.Output.BaseDirectory, "reports")
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration overrides from environment variables
func (c *Config) LoadFromEnv() error {
	// Load .env file if present; missing files are fine
	_ = godotenv.Load()

	if baseURL := os.Getenv("KITSCRAPER_BASE_URL"); baseURL != "" {
		c.Host.BaseURL = baseURL
	}
	if dir := os.Getenv("KITSCRAPER_OUTPUT_DIR"); dir != "" {
		c.Output.BaseDirectory = dir
	}
	if manifest := os.Getenv("KITSCRAPER_CATEGORY_MANIFEST"); manifest != "" {
		c.Output.CategoryManifest = manifest
	}
	if level := os.Getenv("KITSCRAPER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if rpm := os.Getenv("KITSCRAPER_REQUESTS_PER_MINUTE"); rpm != "" {
		v, err := strconv.Atoi(rpm)
		if err != nil {
			return fmt.Errorf("invalid KITSCRAPER_REQUESTS_PER_MINUTE: %w", err)
		}
		c.RateLimit.RequestsPerMinute = v
	}
	return nil
}

// ApplyFlags applies command line flag overrides to the configuration
func (c *Config) ApplyFlags(flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "base-directory":
			if v, ok := value.(string); ok {
				c.Output.BaseDirectory = v
			}
		case "base-url":
			if v, ok := value.(string); ok {
				c.Host.BaseURL = v
			}
		case "concurrent-downloads":
			if v, ok := value.(int); ok {
				c.Download.ConcurrentDownloads = v
			}
		case "requests-per-minute":
			if v, ok := value.(int); ok {
				c.RateLimit.RequestsPerMinute = v
			}
		case "request-delay":
			if v, ok := value.(time.Duration); ok {
				c.RateLimit.RequestDelay = v
			}
		case "max-attempts":
			if v, ok := value.(int); ok {
				c.Download.MaxAttempts = v
			}
		case "max-pages":
			if v, ok := value.(int); ok {
				c.Discovery.MaxPages = v
			}
		case "log-level":
			if v, ok := value.(string); ok {
				c.Logging.Level = v
			}
		case "log-file":
			if v, ok := value.(string); ok {
				c.Logging.File = v
			}
		}
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Host.BaseURL == "" {
		return errors.New("host.base_url must be set")
	}
	if len(c.Host.UserAgents) == 0 {
		return errors.New("host.user_agents must not be empty")
	}
	if c.RateLimit.RequestDelay < 0 || c.RateLimit.DelayJitter < 0 {
		return errors.New("rate_limit delays must not be negative")
	}
	if c.RateLimit.DelayJitter > c.RateLimit.RequestDelay {
		return errors.New("rate_limit.delay_jitter must not exceed request_delay")
	}
	if c.Download.ConcurrentDownloads < 1 {
		return errors.New("download.concurrent_downloads must be at least 1")
	}
	if c.Download.MaxAttempts < 1 {
		return errors.New("download.max_attempts must be at least 1")
	}
	if c.Download.MinFileSize < 0 {
		return errors.New("download.min_file_size must not be negative")
	}
	if c.Download.MaxFileSize > 0 && c.Download.MaxFileSize < c.Download.MinFileSize {
		return errors.New("download.max_file_size must not be below min_file_size")
	}
	if c.Discovery.MaxPages < 1 {
		return errors.New("discovery.max_pages must be at least 1")
	}
	for _, ratio := range []float64{
		c.Validator.SuspiciousRatioMax,
		c.Validator.HighQualityRatioMin,
		c.Validator.ValidProductRatioMin,
		c.Validator.DuplicateRatioMax,
	} {
		if ratio < 0 || ratio > 1 {
			return errors.New("validator ratios must be between 0 and 1")
		}
	}
	if c.Crawl.BreakerThreshold < 1 {
		return errors.New("crawl.breaker_threshold must be at least 1")
	}
	if c.Crawl.CheckpointEvery < 1 {
		return errors.New("crawl.checkpoint_every must be at least 1")
	}
	return nil
}

// Load builds the effective configuration: defaults, then the config file
// (explicit path or well-known locations), then environment, then flags.
func Load(configFile string, flags map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	} else {
		for _, candidate := range defaultConfigPaths() {
			if _, err := os.Stat(candidate); err == nil {
				if err := cfg.LoadFromFile(candidate); err != nil {
					return nil, err
				}
				break
			}
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// defaultConfigPaths lists the well-known config file locations in priority order
func defaultConfigPaths() []string {
	paths := []string{"kitscraper.yaml", ".kitscraper.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".kitscraper.yaml"),
			filepath.Join(home, ".config", "kitscraper", "config.yaml"),
		)
	}
	return paths
}

// WriteDefault writes a commented default configuration file
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	header := []byte("# kitscraper configuration\n# All values shown are the defaults.\n")
	if err := os.WriteFile(path, append(header, data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
