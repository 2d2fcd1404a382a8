package integration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"kitscraper/pkg/config"
	"kitscraper/pkg/logger"
)

// TestHelper wires a mock gallery host to a test configuration
type TestHelper struct {
	t          *testing.T
	mockServer *MockGalleryServer
	tempDir    string
}

// NewTestHelper creates a helper with its own temp directory and mock host
func NewTestHelper(t *testing.T) *TestHelper {
	h := &TestHelper{
		t:          t,
		tempDir:    t.TempDir(),
		mockServer: NewMockGalleryServer(),
	}
	t.Cleanup(h.mockServer.Close)
	return h
}

// Server returns the mock gallery host
func (h *TestHelper) Server() *MockGalleryServer {
	return h.mockServer
}

// HarvestDir returns the configured output base directory
func (h *TestHelper) HarvestDir() string {
	return filepath.Join(h.tempDir, "harvest")
}

// CreateTestConfig builds a configuration pointed at the mock host with
// all pacing delays collapsed for fast tests.
func (h *TestHelper) CreateTestConfig() *config.Config {
	cfg := config.DefaultConfig()

	cfg.Host.BaseURL = h.mockServer.URL()

	cfg.RateLimit.RequestDelay = 0
	cfg.RateLimit.DelayJitter = 0
	cfg.RateLimit.ErrorDelay = time.Millisecond
	cfg.RateLimit.RequestsPerMinute = 0

	cfg.Download.ConcurrentDownloads = 2
	cfg.Download.DownloadTimeout = 5 * time.Second
	cfg.Download.MaxAttempts = 3
	cfg.Download.ImageDelay = 0
	cfg.Download.MinFileSize = 16
	cfg.Download.MaxFileSize = 1 << 20
	cfg.Download.MinDimension = 50

	cfg.Crawl.AlbumDelay = 0
	cfg.Crawl.AlbumRetryAttempts = 2
	cfg.Crawl.AlbumRetryBaseDelay = time.Millisecond
	cfg.Crawl.BreakerThreshold = 5
	cfg.Crawl.BreakerCooldown = time.Millisecond
	cfg.Crawl.CheckpointEvery = 2
	cfg.Crawl.ProgressEvery = 100

	cfg.Output.BaseDirectory = h.HarvestDir()
	cfg.Output.CategoryManifest = h.writeManifest()

	cfg.Logging.Level = "error"
	logger.Initialize(&cfg.Logging)

	return cfg
}

// writeManifest writes a single-category manifest for the mock host
func (h *TestHelper) writeManifest() string {
	manifest := `categories:
  - categoryId: retro
    path: /categories/retro
    labelRaw: "Retro"
    labelEnGuess: "Retro Kits"
    labelEsGuess: "Retro"
`
	path := filepath.Join(h.tempDir, "categories.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		h.t.Fatalf("Failed to write category manifest: %v", err)
	}
	return path
}

// AlbumDirs lists the album folder names under one category directory
func (h *TestHelper) AlbumDirs(categorySlug string) []string {
	entries, err := os.ReadDir(filepath.Join(h.HarvestDir(), categorySlug))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		h.t.Fatalf("Failed to read category dir: %v", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

// CountImages counts image files inside one album folder
func (h *TestHelper) CountImages(categorySlug, albumFolder string) int {
	entries, err := os.ReadDir(filepath.Join(h.HarvestDir(), categorySlug, albumFolder))
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			count++
		}
	}
	return count
}
