package scraper

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kitscraper/internal/downloader"
	"kitscraper/pkg/catalog"
	"kitscraper/pkg/config"
	"kitscraper/pkg/discover"
	"kitscraper/pkg/download"
	"kitscraper/pkg/fetcher"
	"kitscraper/pkg/logger"
	"kitscraper/pkg/progress"
	"kitscraper/pkg/resolve"
	"kitscraper/pkg/retry"
	"kitscraper/pkg/storage"
	"kitscraper/pkg/validate"
)

// itemType tags product photos in the deterministic file name
const itemType = "product"

// Scraper orchestrates the harvest: discovery, resolution, validation and
// download per album, with durable progress and circuit breaking.
type Scraper struct {
	cfg        *config.Config
	fetcher    PageFetcher
	discoverer AlbumDiscoverer
	resolver   ImageResolver
	validator  GalleryValidator
	client     ImageDownloader
	store      *progress.Store
	storage    *storage.Manager
	categories []catalog.Category
	logger     logger.Logger
}

// albumOutcome summarizes one album's processing
type albumOutcome struct {
	queued   int
	success  int
	failed   int
	skipped  int
	rejected bool
	reason   string
}

// New builds a Scraper with the real pipeline components and loads any
// existing progress, demoting success records whose files are gone.
func New(cfg *config.Config) (*Scraper, error) {
	log := logger.GetLogger()

	categories, err := catalog.Load(cfg.Output.CategoryManifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load category manifest: %w", err)
	}

	f := fetcher.New(cfg, log)
	store := progress.NewStore(cfg, log)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	store.Reconcile()

	return &Scraper{
		cfg:        cfg,
		fetcher:    f,
		discoverer: discover.New(f, cfg.Discovery, log),
		resolver:   resolve.New(f, cfg.Download, log),
		validator:  validate.New(cfg.Validator, log),
		client:     download.New(f, cfg, log),
		store:      store,
		storage:    storage.NewManager(cfg.Output.BaseDirectory, log),
		categories: categories,
		logger:     log,
	}, nil
}

// Store exposes the progress store for reporting commands
func (s *Scraper) Store() *progress.Store {
	return s.store
}

// Categories returns the loaded category catalog
func (s *Scraper) Categories() []catalog.Category {
	return s.categories
}

// categoryURL joins the host base URL with a category's source path
func (s *Scraper) categoryURL(cat catalog.Category) string {
	return strings.TrimRight(s.cfg.Host.BaseURL, "/") + "/" + strings.TrimLeft(cat.SourcePath, "/")
}

// HarvestAll processes every category in the catalog. Category failures
// are logged and surfaced in the summary; they never abort the run.
func (s *Scraper) HarvestAll(ctx context.Context) error {
	for _, cat := range s.categories {
		if ctx.Err() != nil {
			break
		}
		if err := s.HarvestCategory(ctx, cat); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.ErrorWithFields("category failed", map[string]interface{}{
				"category": cat.Slug,
				"error":    err.Error(),
			})
		}
	}
	return s.store.Flush()
}

// HarvestCategory runs the full pipeline for one category. A category
// already recorded completed is skipped; interrupted categories resume
// where the progress store left off.
func (s *Scraper) HarvestCategory(ctx context.Context, cat catalog.Category) error {
	if s.store.CategoryStatus(cat.Slug) == progress.CategoryCompleted {
		s.logger.InfoWithFields("category already completed, skipping", map[string]interface{}{
			"category": cat.Slug,
		})
		return nil
	}

	s.logger.InfoWithFields("starting category", map[string]interface{}{
		"category": cat.Slug,
		"name":     cat.DisplayName,
	})
	s.store.StartCategory(cat.Slug)

	albums, err := s.DiscoverCategory(ctx, cat)
	if err != nil {
		return fmt.Errorf("discovery failed for %s: %w", cat.Slug, err)
	}
	if err := s.processAlbums(ctx, cat.Slug, albums, false); err != nil {
		return err
	}
	return s.store.CompleteCategory(cat.Slug)
}

// DiscoverCategory walks a category's listing pages and caches the album
// list for later targeted retries. No album folders are created.
func (s *Scraper) DiscoverCategory(ctx context.Context, cat catalog.Category) ([]discover.AlbumDescriptor, error) {
	albums, err := s.discoverer.DiscoverAlbumsAllPages(ctx, s.categoryURL(cat))
	if err != nil {
		return nil, err
	}
	s.logger.InfoWithFields("albums discovered", map[string]interface{}{
		"category": cat.Slug,
		"count":    len(albums),
	})
	if err := s.saveAlbumCache(cat.Slug, albums); err != nil {
		s.logger.WarnWithFields("failed to cache album list", map[string]interface{}{
			"category": cat.Slug,
			"error":    err.Error(),
		})
	}
	return albums, nil
}

// processAlbums drives the per-album pipeline with inter-album pacing and
// the consecutive-failure circuit breaker.
func (s *Scraper) processAlbums(ctx context.Context, categorySlug string, albums []discover.AlbumDescriptor, force bool) error {
	consecutive := 0

	for i, album := range albums {
		if i > 0 {
			if err := retry.Wait(ctx, s.cfg.Crawl.AlbumDelay); err != nil {
				return err
			}
		}

		outcome, err := s.processAlbumWithRetry(ctx, categorySlug, album, force)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if albumFailed(outcome, err) {
			consecutive++
			s.logger.WarnWithFields("album failed", map[string]interface{}{
				"category":    categorySlug,
				"album":       album.Title,
				"consecutive": consecutive,
			})
		} else {
			consecutive = 0
		}

		// Pause rather than abort: the host may be throttling us
		if consecutive >= s.cfg.Crawl.BreakerThreshold {
			s.logger.WarnWithFields("circuit breaker tripped, cooling down", map[string]interface{}{
				"category":    categorySlug,
				"consecutive": consecutive,
				"cooldown":    s.cfg.Crawl.BreakerCooldown.String(),
			})
			if err := retry.Wait(ctx, s.cfg.Crawl.BreakerCooldown); err != nil {
				return err
			}
			consecutive = 0
		}

		if s.cfg.Crawl.ProgressEvery > 0 && (i+1)%s.cfg.Crawl.ProgressEvery == 0 {
			summary := s.store.Summarize()
			s.logger.InfoWithFields("progress checkpoint", map[string]interface{}{
				"category":     categorySlug,
				"albums_done":  i + 1,
				"albums_total": len(albums),
				"processed":    summary.TotalProcessed,
				"success_rate": fmt.Sprintf("%.1f%%", summary.SuccessRate),
			})
		}
	}
	return nil
}

// albumFailed reports whether an album run counts against the breaker: a
// pipeline error, or downloads attempted with zero successes.
func albumFailed(outcome albumOutcome, err error) bool {
	if err != nil {
		return true
	}
	return outcome.queued > 0 && outcome.success == 0
}

// processAlbumWithRetry re-drives an album that yielded zero successful
// downloads, with exponential backoff between attempts. Rejected albums
// and albums with nothing left to do never retry.
func (s *Scraper) processAlbumWithRetry(ctx context.Context, categorySlug string, album discover.AlbumDescriptor, force bool) (albumOutcome, error) {
	backoff := &retry.ExponentialBackoff{
		BaseDelay:  s.cfg.Crawl.AlbumRetryBaseDelay,
		MaxDelay:   5 * time.Minute,
		Multiplier: 2.0,
	}
	attempts := s.cfg.Crawl.AlbumRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var outcome albumOutcome
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			s.logger.InfoWithFields("retrying album", map[string]interface{}{
				"category": categorySlug,
				"album":    album.Title,
				"attempt":  attempt,
			})
			if waitErr := retry.Wait(ctx, backoff.NextDelay(attempt-1)); waitErr != nil {
				return outcome, waitErr
			}
		}

		outcome, err = s.processAlbum(ctx, categorySlug, album, force)
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		if err == nil && (outcome.success > 0 || outcome.queued == 0) {
			return outcome, nil
		}
	}
	return outcome, err
}

// processAlbum runs resolution, validation and downloads for one album.
// The album directory is created only after validation accepts the image
// set, and is removed again if every download fails.
func (s *Scraper) processAlbum(ctx context.Context, categorySlug string, album discover.AlbumDescriptor, force bool) (albumOutcome, error) {
	var outcome albumOutcome

	images, err := s.resolver.ResolveImages(ctx, album.URL)
	if err != nil {
		return outcome, fmt.Errorf("resolution failed for %s: %w", album.URL, err)
	}

	result := s.validator.Validate(album, images)
	if !result.Accepted {
		outcome.rejected = true
		outcome.reason = result.Reason
		s.logger.InfoWithFields("album rejected", map[string]interface{}{
			"category": categorySlug,
			"album":    album.Title,
			"reason":   result.Reason,
			"images":   result.Stats.TotalImages,
		})
		return outcome, nil
	}

	dir, err := s.storage.EnsureAlbumDir(categorySlug, album.FolderName)
	if err != nil {
		return outcome, err
	}

	jobs := make([]downloader.Job, 0, len(images))
	now := time.Now()
	for index, candidate := range images {
		key := progress.ItemKey(album.FolderName, index)
		if !force && s.store.IsDone(categorySlug, key) {
			outcome.skipped++
			continue
		}
		ext := storage.InferExtension(candidate.SourceURL, "")
		jobs = append(jobs, downloader.Job{
			Candidate:       candidate,
			CategorySlug:    categorySlug,
			AlbumFolderName: album.FolderName,
			AlbumTitle:      album.Title,
			AlbumURL:        album.URL,
			ImageIndex:      index,
			OutputPath:      filepath.Join(dir, storage.ImageFileName(categorySlug, album.FolderName, itemType, index, now, ext)),
			ForceRetry:      force,
		})
	}

	if len(jobs) == 0 {
		s.storage.RemoveIfEmpty(dir)
		return outcome, nil
	}

	success, failed := s.runJobs(jobs)
	outcome.queued = len(jobs)
	outcome.success = success
	outcome.failed = failed

	if outcome.success == 0 && outcome.skipped == 0 {
		s.storage.RemoveIfEmpty(dir)
	}

	s.logger.InfoWithFields("album processed", map[string]interface{}{
		"category": categorySlug,
		"album":    album.Title,
		"queued":   outcome.queued,
		"success":  outcome.success,
		"failed":   outcome.failed,
		"skipped":  outcome.skipped,
	})
	return outcome, nil
}

// runJobs pushes jobs through a worker pool and records every outcome in
// the progress store.
func (s *Scraper) runJobs(jobs []downloader.Job) (success, failed int) {
	pool := downloader.NewWorkerPool(
		s.cfg.Download.ConcurrentDownloads,
		s.client,
		s.store,
		s.cfg.Download.ImageDelay,
		s.logger,
	)
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range pool.Results() {
			if result.Skipped {
				continue
			}
			item := progress.DownloadItem{
				CategorySlug:    result.Job.CategorySlug,
				AlbumFolderName: result.Job.AlbumFolderName,
				AlbumTitle:      result.Job.AlbumTitle,
				AlbumURL:        result.Job.AlbumURL,
				ImageIndex:      result.Job.ImageIndex,
				SourceURL:       result.Job.Candidate.SourceURL,
				OutputPath:      result.Job.OutputPath,
			}
			if result.Success {
				item.Status = progress.StatusSuccess
				success++
			} else {
				item.Status = progress.StatusFailed
				item.Error = result.Error.Error()
				failed++
			}
			if err := s.store.RecordOutcome(item); err != nil {
				s.logger.WarnWithFields("failed to record outcome", map[string]interface{}{
					"item":  result.Job.Key(),
					"error": err.Error(),
				})
			}
		}
	}()

	for _, job := range jobs {
		if err := pool.Submit(job); err != nil {
			break
		}
	}
	pool.Stop()
	wg.Wait()
	return success, failed
}

// HarvestAlbum processes a single album URL into a category, deriving the
// descriptor from the album page itself.
func (s *Scraper) HarvestAlbum(ctx context.Context, categorySlug, albumURL string) error {
	if _, ok := catalog.Find(s.categories, categorySlug); !ok {
		return fmt.Errorf("unknown category %q", categorySlug)
	}

	album, err := s.describeAlbum(ctx, albumURL)
	if err != nil {
		return err
	}

	s.store.StartCategory(categorySlug)
	outcome, err := s.processAlbumWithRetry(ctx, categorySlug, album, false)
	if err != nil {
		return err
	}
	if outcome.rejected {
		return fmt.Errorf("album rejected: %s", outcome.reason)
	}
	return s.store.Flush()
}

// describeAlbum builds an AlbumDescriptor for a directly supplied URL
func (s *Scraper) describeAlbum(ctx context.Context, albumURL string) (discover.AlbumDescriptor, error) {
	doc, err := s.fetcher.FetchDocument(ctx, albumURL, nil)
	if err != nil {
		return discover.AlbumDescriptor{}, fmt.Errorf("failed to fetch album page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	// Page titles usually carry a " | site name" or " - site name" suffix
	for _, sep := range []string{" | ", " - "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = strings.TrimSpace(title[:idx])
			break
		}
	}
	if _, rejected := discover.RejectTitle(title, s.cfg.Discovery.MinTitleLength); rejected {
		title = urlTail(albumURL)
	}

	folder := catalog.Sanitize(title)
	if max := s.cfg.Discovery.MaxFolderNameLength; max > 0 && len(folder) > max {
		folder = strings.Trim(folder[:max], "_")
	}
	if folder == "" {
		return discover.AlbumDescriptor{}, fmt.Errorf("cannot derive a folder name for %s", albumURL)
	}
	return discover.AlbumDescriptor{URL: albumURL, Title: title, FolderName: folder}, nil
}

func urlTail(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.IndexByte(trimmed, '?'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

// RetryFailed re-attempts every item currently recorded failed, bypassing
// the skip-if-done check. Successful items are never touched.
func (s *Scraper) RetryFailed(ctx context.Context) error {
	failed := s.store.FailedItems()
	if len(failed) == 0 {
		s.logger.Info("no failed items to retry")
		return nil
	}
	s.logger.InfoWithFields("retrying failed items", map[string]interface{}{
		"count": len(failed),
	})

	jobs := make([]downloader.Job, 0, len(failed))
	now := time.Now()
	for _, item := range failed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		dir, err := s.storage.EnsureAlbumDir(item.CategorySlug, item.AlbumFolderName)
		if err != nil {
			return err
		}
		outputPath := item.OutputPath
		if outputPath == "" {
			ext := storage.InferExtension(item.SourceURL, "")
			outputPath = filepath.Join(dir, storage.ImageFileName(item.CategorySlug, item.AlbumFolderName, itemType, item.ImageIndex, now, ext))
		}
		jobs = append(jobs, downloader.Job{
			Candidate:       resolve.ImageCandidate{SourceURL: item.SourceURL},
			CategorySlug:    item.CategorySlug,
			AlbumFolderName: item.AlbumFolderName,
			AlbumTitle:      item.AlbumTitle,
			AlbumURL:        item.AlbumURL,
			ImageIndex:      item.ImageIndex,
			OutputPath:      outputPath,
			ForceRetry:      true,
		})
	}

	success, stillFailed := s.runJobs(jobs)
	s.logger.InfoWithFields("failed-item retry finished", map[string]interface{}{
		"recovered":    success,
		"still_failed": stillFailed,
	})
	return s.store.Flush()
}

// RetryEmpty re-drives the pipeline for albums whose folders hold no
// image files, matching folder names against the cached album lists.
// Other albums are untouched.
func (s *Scraper) RetryEmpty(ctx context.Context) error {
	categoryDirs, err := s.storage.Categories()
	if err != nil {
		return err
	}

	total := 0
	for _, slug := range categoryDirs {
		if slug == albumCacheDir {
			continue
		}
		empty, err := s.storage.EmptyAlbums(slug)
		if err != nil {
			return err
		}
		if len(empty) == 0 {
			continue
		}

		cached, err := s.loadAlbumCache(slug)
		if err != nil {
			s.logger.WarnWithFields("cannot match empty albums without a cached list", map[string]interface{}{
				"category": slug,
				"error":    err.Error(),
			})
			continue
		}
		byFolder := make(map[string]discover.AlbumDescriptor, len(cached))
		for _, album := range cached {
			byFolder[album.FolderName] = album
		}

		var matched []discover.AlbumDescriptor
		for _, folder := range empty {
			album, ok := byFolder[folder]
			if !ok {
				s.logger.WarnWithFields("empty folder has no cached album", map[string]interface{}{
					"category": slug,
					"folder":   folder,
				})
				continue
			}
			matched = append(matched, album)
		}
		if len(matched) == 0 {
			continue
		}

		s.logger.InfoWithFields("retrying empty albums", map[string]interface{}{
			"category": slug,
			"count":    len(matched),
		})
		s.store.StartCategory(slug)
		if err := s.processAlbums(ctx, slug, matched, true); err != nil {
			return err
		}
		total += len(matched)
	}

	s.logger.InfoWithFields("empty-album retry finished", map[string]interface{}{
		"albums": total,
	})
	return s.store.Flush()
}
