// Package storage manages the harvest output tree: one directory per
// category, one per accepted album, with deterministic image file names.
package storage

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	errs "kitscraper/pkg/errors"
	"kitscraper/pkg/logger"
)

// imageExtensions are the file extensions counted as harvested images
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// Manager lays out and inspects the output directory tree
type Manager struct {
	baseDir string
	logger  logger.Logger
}

// NewManager creates a Manager rooted at baseDir
func NewManager(baseDir string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{baseDir: baseDir, logger: log}
}

// BaseDir returns the output root
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// CategoryDir returns the directory for one category without creating it
func (m *Manager) CategoryDir(categorySlug string) string {
	return filepath.Join(m.baseDir, categorySlug)
}

// AlbumDir returns the directory for one album without creating it
func (m *Manager) AlbumDir(categorySlug, albumFolderName string) string {
	return filepath.Join(m.baseDir, categorySlug, albumFolderName)
}

// EnsureAlbumDir creates the album directory. Callers must only do this
// after the album passes validation; discovery and resolution alone never
// touch the filesystem.
func (m *Manager) EnsureAlbumDir(categorySlug, albumFolderName string) (string, error) {
	dir := m.AlbumDir(categorySlug, albumFolderName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errs.Wrap(errs.ErrorTypeStorage, "failed to create album directory", err)
	}
	return dir, nil
}

// ImageFileName builds the deterministic name for one downloaded image:
// category, album, item type, sequence and timestamp, plus the inferred
// extension.
func ImageFileName(categorySlug, albumFolderName, itemType string, sequence int, ts time.Time, ext string) string {
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s_%s_%s_%03d_%s%s",
		categorySlug, albumFolderName, itemType, sequence, ts.Format("20060102150405"), ext)
}

// InferExtension derives a file extension from the source URL, falling
// back to the response content type, defaulting to .jpg.
func InferExtension(sourceURL, contentType string) string {
	if u, err := url.Parse(sourceURL); err == nil {
		ext := strings.ToLower(filepath.Ext(u.Path))
		if imageExtensions[ext] {
			if ext == ".jpeg" {
				return ".jpg"
			}
			return ext
		}
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		switch mediaType {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/gif":
			return ".gif"
		case "image/webp":
			return ".webp"
		}
	}
	return ".jpg"
}

// CountImages counts image files directly inside dir. A missing directory
// counts as zero.
func (m *Manager) CountImages(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			count++
		}
	}
	return count
}

// EmptyAlbums lists album folder names under a category that contain no
// image files. These are the candidates for an empty-gallery retry.
func (m *Manager) EmptyAlbums(categorySlug string) ([]string, error) {
	catDir := m.CategoryDir(categorySlug)
	entries, err := os.ReadDir(catDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "failed to scan category directory", err)
	}

	var empty []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if m.CountImages(filepath.Join(catDir, entry.Name())) == 0 {
			empty = append(empty, entry.Name())
		}
	}
	return empty, nil
}

// Categories lists the category directories present under the output root
func (m *Manager) Categories() ([]string, error) {
	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "failed to scan output directory", err)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

// RemoveIfEmpty deletes an album directory left without any files, so a
// fully failed album leaves no trace on disk.
func (m *Manager) RemoveIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil {
		m.logger.WarnWithFields("failed to remove empty album directory", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
	}
}
