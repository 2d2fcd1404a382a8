// Package resolve parses album pages into ranked, deduplicated image
// candidates, upgrading each to its highest-quality variant.
package resolve

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"kitscraper/pkg/config"
	"kitscraper/pkg/fetcher"
	"kitscraper/pkg/logger"
)

// ImageCandidate is one downloadable photo variant
type ImageCandidate struct {
	SourceURL    string `json:"source_url"`
	CanonicalID  string `json:"canonical_id"`
	QualityScore int    `json:"quality_score"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	AltText      string `json:"alt_text,omitempty"`
}

// PageFetcher is the fetch dependency the resolver needs
type PageFetcher interface {
	FetchDocument(ctx context.Context, url string, opts *fetcher.Options) (*goquery.Document, error)
}

// Resolver extracts image candidates from album pages
type Resolver struct {
	fetcher      PageFetcher
	minDimension int
	logger       logger.Logger
}

// New creates a Resolver
func New(f PageFetcher, cfg config.DownloadConfig, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{fetcher: f, minDimension: cfg.MinDimension, logger: log}
}

// uiImagePatterns rejects navigation chrome and other non-product images
var uiImagePatterns = []string{
	"icon", "logo", "sprite", "avatar", "banner",
	"nav", "badge", "loading", "blank", "qrcode", "placeholder",
}

// disallowedExtensions are vector or icon formats, never product photos
var disallowedExtensions = []string{".svg", ".ico", ".cur"}

// imageSourceAttrs is the fallback order for the actual image URL;
// lazy-loading attributes carry the real source on this host.
var imageSourceAttrs = []string{"data-origin-src", "data-src", "data-original", "src"}

// viewerLinkSelectors find per-photo viewer pages when the album page
// itself exposes no usable image elements
var viewerLinkSelectors = []string{
	"a.image__clicklink",
	"a[href*='/photos/']",
	"a[href*='?uid=']",
}

// ResolveImages extracts the ranked candidate list for one album. Direct
// extraction from the page's image elements covers the common case; when
// it yields nothing, each per-photo viewer page is visited instead.
func (r *Resolver) ResolveImages(ctx context.Context, albumURL string) ([]ImageCandidate, error) {
	doc, err := r.fetcher.FetchDocument(ctx, albumURL, nil)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(albumURL)
	if err != nil {
		return nil, err
	}

	candidates := r.collectDirect(doc, base)
	if len(candidates) == 0 {
		r.logger.InfoWithFields("direct extraction empty, walking viewer pages", map[string]interface{}{
			"album_url": albumURL,
		})
		candidates = r.collectFromViewers(ctx, doc, base)
	}

	deduped := dedupeByCanonicalID(candidates)
	sortCandidates(deduped)

	r.logger.DebugWithFields("album resolved", map[string]interface{}{
		"album_url":  albumURL,
		"raw":        len(candidates),
		"candidates": len(deduped),
	})
	return deduped, nil
}

// collectDirect reads image elements straight off the album page
func (r *Resolver) collectDirect(doc *goquery.Document, base *url.URL) []ImageCandidate {
	var candidates []ImageCandidate
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if c, ok := r.candidate(img, base); ok {
			candidates = append(candidates, c)
		}
	})
	return candidates
}

// collectFromViewers visits each per-photo viewer page and extracts its
// single best image. Pacing comes from the shared fetcher.
func (r *Resolver) collectFromViewers(ctx context.Context, doc *goquery.Document, base *url.URL) []ImageCandidate {
	links := r.viewerLinks(doc, base)
	var candidates []ImageCandidate

	for _, link := range links {
		viewerDoc, err := r.fetcher.FetchDocument(ctx, link, nil)
		if err != nil {
			r.logger.WarnWithFields("viewer page failed", map[string]interface{}{
				"viewer_url": link,
				"error":      err.Error(),
			})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		viewerBase, err := url.Parse(link)
		if err != nil {
			continue
		}
		if best, ok := r.bestViewerImage(viewerDoc, viewerBase); ok {
			candidates = append(candidates, best)
		}
	}
	return candidates
}

// viewerLinks collects deduplicated per-photo page links in page order
func (r *Resolver) viewerLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	for _, selector := range viewerLinkSelectors {
		doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
			href := strings.TrimSpace(a.AttrOr("href", ""))
			if href == "" {
				return
			}
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			absolute := base.ResolveReference(ref).String()
			if seen[absolute] {
				return
			}
			seen[absolute] = true
			links = append(links, absolute)
		})
		if len(links) > 0 {
			break
		}
	}
	return links
}

// bestViewerImage picks the highest-scoring image on a viewer page
func (r *Resolver) bestViewerImage(doc *goquery.Document, base *url.URL) (ImageCandidate, bool) {
	var best ImageCandidate
	found := false
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		c, ok := r.candidate(img, base)
		if !ok {
			return
		}
		if !found || c.QualityScore > best.QualityScore ||
			(c.QualityScore == best.QualityScore && c.Width*c.Height > best.Width*best.Height) {
			best = c
			found = true
		}
	})
	return best, found
}

// candidate validates and scores a single image element
func (r *Resolver) candidate(img *goquery.Selection, base *url.URL) (ImageCandidate, bool) {
	src := ""
	for _, attr := range imageSourceAttrs {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
			src = v
			break
		}
	}
	if src == "" || strings.HasPrefix(src, "data:") {
		return ImageCandidate{}, false
	}

	ref, err := url.Parse(src)
	if err != nil {
		return ImageCandidate{}, false
	}
	// Protocol-relative sources are common on this host
	absolute := base.ResolveReference(ref)
	if absolute.Scheme == "" {
		absolute.Scheme = "https"
	}
	absoluteURL := absolute.String()

	if rejected := r.rejectSource(absoluteURL); rejected {
		return ImageCandidate{}, false
	}

	width := attrInt(img, "width")
	height := attrInt(img, "height")
	if belowFloor(width, r.minDimension) || belowFloor(height, r.minDimension) {
		return ImageCandidate{}, false
	}

	score := QualityScore(absoluteURL)
	return ImageCandidate{
		SourceURL:    UpgradeURL(absoluteURL),
		CanonicalID:  CanonicalID(absoluteURL),
		QualityScore: score,
		Width:        width,
		Height:       height,
		AltText:      strings.TrimSpace(img.AttrOr("alt", "")),
	}, true
}

func (r *Resolver) rejectSource(rawURL string) bool {
	lowered := strings.ToLower(rawURL)
	for _, ext := range disallowedExtensions {
		if strings.HasSuffix(strings.Split(lowered, "?")[0], ext) {
			return true
		}
	}
	for _, pattern := range uiImagePatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

// dedupeByCanonicalID keeps only the best-scoring variant per photo.
// A lower score never replaces a higher one.
func dedupeByCanonicalID(candidates []ImageCandidate) []ImageCandidate {
	best := make(map[string]ImageCandidate, len(candidates))
	var order []string
	for _, c := range candidates {
		existing, ok := best[c.CanonicalID]
		if !ok {
			best[c.CanonicalID] = c
			order = append(order, c.CanonicalID)
			continue
		}
		if c.QualityScore > existing.QualityScore ||
			(c.QualityScore == existing.QualityScore && c.Width*c.Height > existing.Width*existing.Height) {
			best[c.CanonicalID] = c
		}
	}

	deduped := make([]ImageCandidate, 0, len(order))
	for _, id := range order {
		deduped = append(deduped, best[id])
	}
	return deduped
}

// sortCandidates orders by quality score, then estimated pixel area
func sortCandidates(candidates []ImageCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].QualityScore != candidates[j].QualityScore {
			return candidates[i].QualityScore > candidates[j].QualityScore
		}
		return candidates[i].Width*candidates[i].Height > candidates[j].Width*candidates[j].Height
	})
}

func attrInt(img *goquery.Selection, attr string) int {
	v := strings.TrimSpace(img.AttrOr(attr, ""))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(v, "px"))
	if err != nil {
		return 0
	}
	return n
}

// belowFloor reports whether a declared dimension is present and under
// the minimum; undeclared dimensions pass.
func belowFloor(declared, floor int) bool {
	return declared > 0 && declared < floor
}
