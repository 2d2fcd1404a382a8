package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitscraper/pkg/catalog"
	"kitscraper/pkg/config"
	"kitscraper/pkg/discover"
	"kitscraper/pkg/fetcher"
	"kitscraper/pkg/logger"
	"kitscraper/pkg/progress"
	"kitscraper/pkg/resolve"
	"kitscraper/pkg/storage"
	"kitscraper/pkg/validate"
)

type fakeDiscoverer struct {
	albums map[string][]discover.AlbumDescriptor
	err    error
	calls  int
}

func (d *fakeDiscoverer) DiscoverAlbums(_ context.Context, url string) ([]discover.AlbumDescriptor, error) {
	return d.DiscoverAlbumsAllPages(context.Background(), url)
}

func (d *fakeDiscoverer) DiscoverAlbumsAllPages(_ context.Context, url string) ([]discover.AlbumDescriptor, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.albums[url], nil
}

type fakeResolver struct {
	images map[string][]resolve.ImageCandidate
	errs   map[string]error
}

func (r *fakeResolver) ResolveImages(_ context.Context, albumURL string) ([]resolve.ImageCandidate, error) {
	if err := r.errs[albumURL]; err != nil {
		return nil, err
	}
	return r.images[albumURL], nil
}

type fakeDownloadClient struct {
	mu       sync.Mutex
	calls    []string
	failOnce map[string]bool
	failing  map[string]error
}

func (c *fakeDownloadClient) DownloadAndVerify(_ context.Context, sourceURL, outputPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, sourceURL)
	if c.failOnce[sourceURL] {
		delete(c.failOnce, sourceURL)
		return errors.New("transient failure")
	}
	if err := c.failing[sourceURL]; err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte("image-bytes"), 0644)
}

func (c *fakeDownloadClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fixture struct {
	s        *Scraper
	disc     *fakeDiscoverer
	res      *fakeResolver
	client   *fakeDownloadClient
	log      *logger.TestLogger
	cfg      *config.Config
	category catalog.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Crawl.AlbumDelay = 0
	cfg.Crawl.AlbumRetryAttempts = 2
	cfg.Crawl.AlbumRetryBaseDelay = time.Millisecond
	cfg.Crawl.BreakerThreshold = 2
	cfg.Crawl.BreakerCooldown = time.Millisecond
	cfg.Download.ImageDelay = 0

	log := logger.NewTestLogger()
	disc := &fakeDiscoverer{albums: map[string][]discover.AlbumDescriptor{}}
	res := &fakeResolver{images: map[string][]resolve.ImageCandidate{}, errs: map[string]error{}}
	client := &fakeDownloadClient{failOnce: map[string]bool{}, failing: map[string]error{}}

	store := progress.NewStore(cfg, log)
	require.NoError(t, store.Load())

	categories, err := catalog.Load("")
	require.NoError(t, err)

	s := &Scraper{
		cfg:        cfg,
		discoverer: disc,
		resolver:   res,
		validator:  validate.New(cfg.Validator, log),
		client:     client,
		store:      store,
		storage:    storage.NewManager(cfg.Output.BaseDirectory, log),
		categories: categories,
		logger:     log,
	}
	return &fixture{
		s: s, disc: disc, res: res, client: client, log: log, cfg: cfg,
		category: catalog.Category{Slug: "retro", DisplayName: "Retro", SourcePath: "/categories/retro"},
	}
}

func candidate(id string) resolve.ImageCandidate {
	return resolve.ImageCandidate{
		SourceURL:    fmt.Sprintf("https://p.example/shop/%s/orig.jpg", id),
		CanonicalID:  id,
		QualityScore: 100,
	}
}

func album(n int) discover.AlbumDescriptor {
	return discover.AlbumDescriptor{
		URL:        fmt.Sprintf("https://h.example/albums/%d", n),
		Title:      fmt.Sprintf("Retro Jersey %d", n),
		FolderName: fmt.Sprintf("retro_jersey_%d", n),
	}
}

func TestHarvestCategoryDownloadsAndRecords(t *testing.T) {
	fx := newFixture(t)
	a := album(1)
	fx.disc.albums[fx.s.categoryURL(fx.category)] = []discover.AlbumDescriptor{a}
	fx.res.images[a.URL] = []resolve.ImageCandidate{candidate("aaaa0001"), candidate("aaaa0002")}

	require.NoError(t, fx.s.HarvestCategory(context.Background(), fx.category))

	assert.Equal(t, 2, fx.client.callCount())
	assert.Equal(t, progress.CategoryCompleted, fx.s.store.CategoryStatus("retro"))

	summary := fx.s.store.Summarize()
	assert.Equal(t, 2, summary.TotalSuccess)
	assert.Equal(t, 0, summary.TotalFailed)

	dir := fx.s.storage.AlbumDir("retro", a.FolderName)
	assert.Equal(t, 2, fx.s.storage.CountImages(dir))
}

func TestHarvestCategorySkipsCompleted(t *testing.T) {
	fx := newFixture(t)
	a := album(1)
	fx.disc.albums[fx.s.categoryURL(fx.category)] = []discover.AlbumDescriptor{a}
	fx.res.images[a.URL] = []resolve.ImageCandidate{candidate("aaaa0001")}

	require.NoError(t, fx.s.HarvestCategory(context.Background(), fx.category))
	require.NoError(t, fx.s.HarvestCategory(context.Background(), fx.category))

	assert.Equal(t, 1, fx.disc.calls, "completed category is not re-discovered")
	assert.Equal(t, 1, fx.client.callCount())
}

func TestIdempotentResume(t *testing.T) {
	fx := newFixture(t)
	a := album(1)
	fx.res.images[a.URL] = []resolve.ImageCandidate{candidate("aaaa0001"), candidate("aaaa0002")}

	fx.s.store.StartCategory("retro")
	outcome, err := fx.s.processAlbum(context.Background(), "retro", a, false)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.success)

	// Second pass over the same album downloads nothing new
	outcome, err = fx.s.processAlbum(context.Background(), "retro", a, false)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.queued)
	assert.Equal(t, 2, outcome.skipped)
	assert.Equal(t, 2, fx.client.callCount())
	assert.Equal(t, 2, fx.s.store.Summarize().TotalProcessed)
}

func TestRejectedAlbumLeavesNoFolder(t *testing.T) {
	fx := newFixture(t)
	a := album(1)
	fx.res.images[a.URL] = nil // zero images: validator rejects

	fx.s.store.StartCategory("retro")
	outcome, err := fx.s.processAlbum(context.Background(), "retro", a, false)
	require.NoError(t, err)
	assert.True(t, outcome.rejected)

	_, statErr := os.Stat(fx.s.storage.AlbumDir("retro", a.FolderName))
	assert.True(t, os.IsNotExist(statErr), "rejected album must not create a folder")
	assert.Equal(t, 0, fx.client.callCount())
}

func TestFullyFailedAlbumLeavesNoFolder(t *testing.T) {
	fx := newFixture(t)
	a := album(1)
	c := candidate("aaaa0001")
	fx.res.images[a.URL] = []resolve.ImageCandidate{c}
	fx.client.failing[c.SourceURL] = errors.New("decode failed")

	fx.s.store.StartCategory("retro")
	outcome, err := fx.s.processAlbumWithRetry(context.Background(), "retro", a, false)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.success)

	_, statErr := os.Stat(fx.s.storage.AlbumDir("retro", a.FolderName))
	assert.True(t, os.IsNotExist(statErr), "album with zero successes leaves no directory")
}

func TestAlbumRetryRecoversTransientFailure(t *testing.T) {
	fx := newFixture(t)
	a := album(1)
	c := candidate("aaaa0001")
	fx.res.images[a.URL] = []resolve.ImageCandidate{c}
	fx.client.failOnce[c.SourceURL] = true

	fx.s.store.StartCategory("retro")
	outcome, err := fx.s.processAlbumWithRetry(context.Background(), "retro", a, false)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.success)
	assert.Equal(t, 2, fx.client.callCount(), "second album attempt recovered the download")
}

func TestCircuitBreakerCoolsDownAndContinues(t *testing.T) {
	fx := newFixture(t)
	albums := []discover.AlbumDescriptor{album(1), album(2), album(3)}
	for i, a := range albums {
		c := candidate(fmt.Sprintf("aaaa%04d", i))
		fx.res.images[a.URL] = []resolve.ImageCandidate{c}
		if i < 2 {
			fx.client.failing[c.SourceURL] = errors.New("host unhappy")
		}
	}

	fx.s.store.StartCategory("retro")
	require.NoError(t, fx.s.processAlbums(context.Background(), "retro", albums, false))

	assert.True(t, fx.log.HasMessage("circuit breaker tripped, cooling down"))
	assert.Equal(t, 1, fx.s.store.Summarize().TotalSuccess, "run continues past the breaker")
}

func TestRetryFailedAttemptsOnlyFailures(t *testing.T) {
	fx := newFixture(t)
	fx.s.store.StartCategory("retro")

	for i := 0; i < 7; i++ {
		path := filepath.Join(t.TempDir(), fmt.Sprintf("ok%d.jpg", i))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		require.NoError(t, fx.s.store.RecordOutcome(progress.DownloadItem{
			CategorySlug:    "retro",
			AlbumFolderName: "done_album",
			ImageIndex:      i,
			SourceURL:       fmt.Sprintf("https://p.example/ok%d/orig.jpg", i),
			OutputPath:      path,
			Status:          progress.StatusSuccess,
		}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, fx.s.store.RecordOutcome(progress.DownloadItem{
			CategorySlug:    "retro",
			AlbumFolderName: "broken_album",
			ImageIndex:      i,
			SourceURL:       fmt.Sprintf("https://p.example/fail%d/orig.jpg", i),
			Status:          progress.StatusFailed,
		}))
	}

	require.NoError(t, fx.s.RetryFailed(context.Background()))

	assert.Equal(t, 3, fx.client.callCount(), "exactly the failed items are attempted")
	summary := fx.s.store.Summarize()
	assert.Equal(t, 10, summary.TotalSuccess)
	assert.Equal(t, 0, summary.TotalFailed)
}

func TestRetryEmptyRedrivesOnlyEmptyAlbums(t *testing.T) {
	fx := newFixture(t)
	full := album(1)
	empty := album(2)
	fx.res.images[full.URL] = []resolve.ImageCandidate{candidate("aaaa0001")}
	fx.res.images[empty.URL] = []resolve.ImageCandidate{candidate("bbbb0001")}

	require.NoError(t, fx.s.saveAlbumCache("retro", []discover.AlbumDescriptor{full, empty}))

	fullDir, err := fx.s.storage.EnsureAlbumDir("retro", full.FolderName)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(fullDir, "a.jpg"), []byte("x"), 0644))
	_, err = fx.s.storage.EnsureAlbumDir("retro", empty.FolderName)
	require.NoError(t, err)

	require.NoError(t, fx.s.RetryEmpty(context.Background()))

	require.Equal(t, 1, fx.client.callCount())
	assert.Equal(t, []string{"https://p.example/shop/bbbb0001/orig.jpg"}, fx.client.calls)
	assert.Equal(t, 1, fx.s.storage.CountImages(fx.s.storage.AlbumDir("retro", empty.FolderName)))
}

func TestDiscoverCategoryCachesAlbums(t *testing.T) {
	fx := newFixture(t)
	albums := []discover.AlbumDescriptor{album(1), album(2)}
	fx.disc.albums[fx.s.categoryURL(fx.category)] = albums

	got, err := fx.s.DiscoverCategory(context.Background(), fx.category)
	require.NoError(t, err)
	assert.Equal(t, albums, got)

	cached, err := fx.s.loadAlbumCache("retro")
	require.NoError(t, err)
	assert.Equal(t, albums, cached)

	_, statErr := os.Stat(fx.s.storage.AlbumDir("retro", album(1).FolderName))
	assert.True(t, os.IsNotExist(statErr), "discovery alone creates no album folders")
}

func TestWriteReport(t *testing.T) {
	fx := newFixture(t)
	fx.s.store.StartCategory("retro")
	require.NoError(t, fx.s.store.RecordOutcome(progress.DownloadItem{
		CategorySlug:    "retro",
		AlbumFolderName: "arsenal_home",
		ImageIndex:      0,
		Status:          progress.StatusSuccess,
	}))

	path, err := fx.s.WriteReport()
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_success": 1`)
}

type stubFetcher struct {
	pages map[string]string
}

func (f *stubFetcher) FetchDocument(_ context.Context, url string, _ *fetcher.Options) (*goquery.Document, error) {
	html, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func TestDescribeAlbum(t *testing.T) {
	fx := newFixture(t)
	fx.s.fetcher = &stubFetcher{pages: map[string]string{
		"https://h.example/albums/9": "<html><head><title>AC Milan Retro Kit 1990 | KitShop</title></head><body></body></html>",
	}}

	album, err := fx.s.describeAlbum(context.Background(), "https://h.example/albums/9")
	require.NoError(t, err)
	assert.Equal(t, "AC Milan Retro Kit 1990", album.Title)
	assert.Equal(t, "ac_milan_retro_kit_1990", album.FolderName)
}
