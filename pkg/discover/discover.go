// Package discover parses category listing pages into validated album
// descriptors. The host exposes no API, so discovery is an ordered chain
// of structural selectors with URL and title filters on every candidate.
package discover

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"kitscraper/pkg/catalog"
	"kitscraper/pkg/config"
	"kitscraper/pkg/fetcher"
	"kitscraper/pkg/logger"
)

// AlbumDescriptor identifies one product gallery on the host
type AlbumDescriptor struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	FolderName   string `json:"folder_name"`
	HasThumbnail bool   `json:"has_thumbnail"`
}

// PageFetcher is the fetch dependency the discoverer needs
type PageFetcher interface {
	FetchDocument(ctx context.Context, url string, opts *fetcher.Options) (*goquery.Document, error)
}

// Discoverer finds album links on category listing pages
type Discoverer struct {
	fetcher PageFetcher
	cfg     config.DiscoveryConfig
	logger  logger.Logger
}

// New creates a Discoverer
func New(f PageFetcher, cfg config.DiscoveryConfig, log logger.Logger) *Discoverer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Discoverer{fetcher: f, cfg: cfg, logger: log}
}

// selectorRule is one structural pattern likely to match album links.
// Rules run in order; all matches are merged and deduplicated by URL with
// the first occurrence winning.
type selectorRule struct {
	name     string
	selector string
}

var albumSelectors = []selectorRule{
	{"album card link", "a.album__main"},
	{"albums href", "a[href*='/albums/']"},
	{"album href", "a[href*='/album/']"},
	{"category children", ".categories__children a"},
	{"index children", ".showindex__children a"},
	{"image wrapping link", "a:has(img)"},
}

// DiscoverAlbums parses one category listing page into album descriptors
func (d *Discoverer) DiscoverAlbums(ctx context.Context, categoryURL string) ([]AlbumDescriptor, error) {
	doc, err := d.fetcher.FetchDocument(ctx, categoryURL, nil)
	if err != nil {
		return nil, err
	}
	return d.extract(doc, categoryURL), nil
}

// DiscoverAlbumsAllPages walks listing pages by incrementing the page
// parameter until a page yields zero new albums, the page bound is hit,
// or repeated page failures occur before anything was collected.
func (d *Discoverer) DiscoverAlbumsAllPages(ctx context.Context, categoryURL string) ([]AlbumDescriptor, error) {
	var all []AlbumDescriptor
	seen := make(map[string]bool)
	consecutiveFailures := 0

	for page := 1; page <= d.cfg.MaxPages; page++ {
		pageURL := withPageParam(categoryURL, page)

		albums, err := d.DiscoverAlbums(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			consecutiveFailures++
			d.logger.WarnWithFields("listing page failed", map[string]interface{}{
				"url":                  pageURL,
				"page":                 page,
				"consecutive_failures": consecutiveFailures,
				"error":                err.Error(),
			})
			if consecutiveFailures >= d.cfg.PageFailureLimit && len(all) == 0 {
				d.logger.ErrorWithFields("aborting discovery, nothing collected", map[string]interface{}{
					"url":   categoryURL,
					"pages": page,
				})
				return all, nil
			}
			continue
		}
		consecutiveFailures = 0

		added := 0
		for _, album := range albums {
			if seen[album.URL] {
				continue
			}
			seen[album.URL] = true
			all = append(all, album)
			added++
		}

		d.logger.InfoWithFields("listing page discovered", map[string]interface{}{
			"url":        pageURL,
			"page":       page,
			"new_albums": added,
			"total":      len(all),
		})

		if added == 0 {
			break
		}
	}

	return disambiguateFolders(all), nil
}

// extract applies the selector chain and both filters to one parsed page
func (d *Discoverer) extract(doc *goquery.Document, pageURL string) []AlbumDescriptor {
	base, err := url.Parse(pageURL)
	if err != nil {
		d.logger.WithError(err).WithField("url", pageURL).Warn("unparseable page URL")
		return nil
	}

	// Pass-local dedup map: discovery must stay re-entrant across categories
	seen := make(map[string]bool)
	var albums []AlbumDescriptor

	for _, rule := range albumSelectors {
		doc.Find(rule.selector).Each(func(_ int, link *goquery.Selection) {
			album, ok := d.candidate(link, base)
			if !ok || seen[album.URL] {
				return
			}
			seen[album.URL] = true
			albums = append(albums, album)
		})
	}

	// Thumbnail-backed links first, then longer (more descriptive) titles
	sort.SliceStable(albums, func(i, j int) bool {
		if albums[i].HasThumbnail != albums[j].HasThumbnail {
			return albums[i].HasThumbnail
		}
		return len(albums[i].Title) > len(albums[j].Title)
	})

	return disambiguateFolders(albums)
}

// candidate validates a single anchor into an album descriptor
func (d *Discoverer) candidate(link *goquery.Selection, base *url.URL) (AlbumDescriptor, bool) {
	href := strings.TrimSpace(link.AttrOr("href", ""))
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return AlbumDescriptor{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return AlbumDescriptor{}, false
	}
	absolute := base.ResolveReference(ref)
	absolute.Fragment = ""
	absoluteURL := absolute.String()

	if absoluteURL == base.String() {
		return AlbumDescriptor{}, false
	}
	if reason, rejected := RejectURL(absoluteURL); rejected {
		d.logger.DebugWithFields("link rejected by URL filter", map[string]interface{}{
			"url":    absoluteURL,
			"reason": reason,
		})
		return AlbumDescriptor{}, false
	}

	title, fromURL := extractTitle(link, absolute)
	if reason, rejected := RejectTitle(title, d.cfg.MinTitleLength); rejected {
		d.logger.DebugWithFields("link rejected by title filter", map[string]interface{}{
			"url":    absoluteURL,
			"title":  title,
			"reason": reason,
		})
		return AlbumDescriptor{}, false
	}

	folderSource := title
	if fromURL {
		// Low-confidence title: derive the folder from the URL tail instead
		folderSource = urlTail(absolute)
	}

	return AlbumDescriptor{
		URL:          absoluteURL,
		Title:        title,
		FolderName:   d.folderName(folderSource),
		HasThumbnail: link.Find("img").Length() > 0,
	}, true
}

// extractTitle runs the title fallback chain; the second return reports
// whether the title was a last-resort URL-derived slug.
func extractTitle(link *goquery.Selection, absolute *url.URL) (string, bool) {
	if title := strings.TrimSpace(link.AttrOr("title", "")); title != "" {
		return title, false
	}
	if text := strings.TrimSpace(link.Text()); text != "" {
		return text, false
	}
	if alt := strings.TrimSpace(link.Find("img").AttrOr("alt", "")); alt != "" {
		return alt, false
	}
	if heading := strings.TrimSpace(link.Closest("div,li,article").Find("h1,h2,h3,h4").First().Text()); heading != "" {
		return heading, false
	}
	for _, attr := range []string{"data-title", "data-name", "aria-label"} {
		if v := strings.TrimSpace(link.AttrOr(attr, "")); v != "" {
			return v, false
		}
	}
	return urlTail(absolute), true
}

// urlTail returns the last meaningful path segment of a URL
func urlTail(u *url.URL) string {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return u.Host
}

// folderName normalizes a title into a filesystem-safe slug
func (d *Discoverer) folderName(title string) string {
	slug := catalog.Sanitize(title)
	maxLen := d.cfg.MaxFolderNameLength
	if maxLen > 0 && len(slug) > maxLen {
		slug = strings.Trim(slug[:maxLen], "_")
	}
	if slug == "" {
		slug = "album"
	}
	return slug
}

// disambiguateFolders appends numeric suffixes to colliding folder names
// so two albums never share an output directory.
func disambiguateFolders(albums []AlbumDescriptor) []AlbumDescriptor {
	counts := make(map[string]int, len(albums))
	for i := range albums {
		name := albums[i].FolderName
		counts[name]++
		if n := counts[name]; n > 1 {
			albums[i].FolderName = fmt.Sprintf("%s_%d", name, n)
		}
	}
	return albums
}

// withPageParam sets the page query parameter on a listing URL
func withPageParam(rawURL string, page int) string {
	if page <= 1 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
