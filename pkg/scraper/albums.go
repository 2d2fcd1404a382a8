package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"kitscraper/pkg/discover"
	errs "kitscraper/pkg/errors"
)

// albumCacheDir is where per-category album lists are cached under the
// output root. The cache is what lets an empty-gallery retry map folder
// names back to album URLs without re-walking every listing page.
const albumCacheDir = "albums"

func (s *Scraper) albumCachePath(categorySlug string) string {
	return filepath.Join(s.cfg.Output.BaseDirectory, albumCacheDir, categorySlug+".json")
}

// saveAlbumCache persists the discovered album list for one category
func (s *Scraper) saveAlbumCache(categorySlug string, albums []discover.AlbumDescriptor) error {
	path := s.albumCachePath(categorySlug)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "failed to create album cache directory", err)
	}
	data, err := json.MarshalIndent(albums, "", "  ")
	if err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "failed to marshal album cache", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "failed to write album cache", err)
	}
	return nil
}

// loadAlbumCache reads the cached album list for one category
func (s *Scraper) loadAlbumCache(categorySlug string) ([]discover.AlbumDescriptor, error) {
	data, err := os.ReadFile(s.albumCachePath(categorySlug))
	if os.IsNotExist(err) {
		return nil, errs.New(errs.ErrorTypeNotFound,
			fmt.Sprintf("no cached album list for category %s, run discovery first", categorySlug))
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "failed to read album cache", err)
	}
	var albums []discover.AlbumDescriptor
	if err := json.Unmarshal(data, &albums); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "corrupt album cache", err)
	}
	return albums, nil
}
