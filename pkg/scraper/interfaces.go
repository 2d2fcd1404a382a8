package scraper

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"kitscraper/pkg/discover"
	"kitscraper/pkg/fetcher"
	"kitscraper/pkg/resolve"
	"kitscraper/pkg/validate"
)

// PageFetcher retrieves and parses HTML pages
type PageFetcher interface {
	FetchDocument(ctx context.Context, url string, opts *fetcher.Options) (*goquery.Document, error)
}

// AlbumDiscoverer finds album descriptors on category listing pages
type AlbumDiscoverer interface {
	DiscoverAlbums(ctx context.Context, categoryURL string) ([]discover.AlbumDescriptor, error)
	DiscoverAlbumsAllPages(ctx context.Context, categoryURL string) ([]discover.AlbumDescriptor, error)
}

// ImageResolver extracts ranked image candidates from an album page
type ImageResolver interface {
	ResolveImages(ctx context.Context, albumURL string) ([]resolve.ImageCandidate, error)
}

// GalleryValidator gates an album's image set before any disk side effect
type GalleryValidator interface {
	Validate(album discover.AlbumDescriptor, images []resolve.ImageCandidate) validate.Result
}

// ImageDownloader fetches, stores and verifies one image
type ImageDownloader interface {
	DownloadAndVerify(ctx context.Context, sourceURL, outputPath string) error
}
