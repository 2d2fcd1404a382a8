// Package validate gates harvested image sets before any persistent side
// effect. A rejected album never gets a folder on disk.
package validate

import (
	"fmt"

	"kitscraper/pkg/config"
	"kitscraper/pkg/discover"
	"kitscraper/pkg/logger"
	"kitscraper/pkg/resolve"
)

// Stats carries the ratios the decision was made on
type Stats struct {
	TotalImages       int     `json:"total_images"`
	SuspiciousCount   int     `json:"suspicious_count"`
	HighQualityCount  int     `json:"high_quality_count"`
	ValidProductCount int     `json:"valid_product_count"`
	SuspiciousRatio   float64 `json:"suspicious_ratio"`
	HighQualityRatio  float64 `json:"high_quality_ratio"`
	ValidProductRatio float64 `json:"valid_product_ratio"`
	DuplicateRatio    float64 `json:"duplicate_ratio"`
	VocabularyMatch   bool    `json:"vocabulary_match"`
}

// Result is the validator's verdict for one album
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
	Stats    Stats  `json:"stats"`
}

// Validator applies the ordered gallery rules with configurable thresholds
type Validator struct {
	cfg    config.ValidatorConfig
	logger logger.Logger
}

// New creates a Validator
func New(cfg config.ValidatorConfig, log logger.Logger) *Validator {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Validator{cfg: cfg, logger: log}
}

// Validate decides whether an album's resolved images look like genuine
// product content. Rules run in order; the duplicate check runs before
// the lenient vocabulary pass so near-total duplication rejects an album
// regardless of its title. On an internal panic the validator fails open:
// dropping real content silently is worse than keeping a junk folder.
func (v *Validator) Validate(album discover.AlbumDescriptor, images []resolve.ImageCandidate) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.ErrorWithFields("validator panic, failing open", map[string]interface{}{
				"album": album.Title,
				"panic": fmt.Sprint(r),
			})
			result = Result{Accepted: true, Reason: "validator error, failed open"}
		}
	}()

	stats := v.computeStats(album, images)

	if stats.TotalImages == 0 {
		return v.verdict(album, false, "no images resolved", stats)
	}
	if stats.SuspiciousRatio > v.cfg.SuspiciousRatioMax {
		return v.verdict(album, false,
			fmt.Sprintf("suspicious ratio %.2f exceeds %.2f", stats.SuspiciousRatio, v.cfg.SuspiciousRatioMax), stats)
	}
	if stats.DuplicateRatio > v.cfg.DuplicateRatioMax {
		return v.verdict(album, false,
			fmt.Sprintf("duplicate ratio %.2f exceeds %.2f", stats.DuplicateRatio, v.cfg.DuplicateRatioMax), stats)
	}
	if stats.VocabularyMatch {
		if stats.ValidProductCount >= 1 {
			return v.verdict(album, true, "title vocabulary match with valid images", stats)
		}
		return v.verdict(album, false, "title vocabulary match but no valid images", stats)
	}
	if stats.HighQualityRatio < v.cfg.HighQualityRatioMin && stats.ValidProductRatio < v.cfg.ValidProductRatioMin {
		return v.verdict(album, false,
			fmt.Sprintf("quality %.2f and product %.2f ratios below thresholds", stats.HighQualityRatio, stats.ValidProductRatio), stats)
	}
	return v.verdict(album, true, "passed all checks", stats)
}

func (v *Validator) computeStats(album discover.AlbumDescriptor, images []resolve.ImageCandidate) Stats {
	stats := Stats{
		TotalImages:     len(images),
		VocabularyMatch: HasProductVocabulary(album.Title),
	}
	seen := make(map[string]bool, len(images))
	duplicates := 0
	for _, img := range images {
		if _, suspicious := matchSuspicious(img); suspicious {
			stats.SuspiciousCount++
		}
		if isHighQuality(img) {
			stats.HighQualityCount++
		}
		if isValidProduct(img) {
			stats.ValidProductCount++
		}
		if seen[img.SourceURL] {
			duplicates++
		}
		seen[img.SourceURL] = true
	}
	if stats.TotalImages > 0 {
		total := float64(stats.TotalImages)
		stats.SuspiciousRatio = float64(stats.SuspiciousCount) / total
		stats.HighQualityRatio = float64(stats.HighQualityCount) / total
		stats.ValidProductRatio = float64(stats.ValidProductCount) / total
		stats.DuplicateRatio = float64(duplicates) / total
	}
	return stats
}

func (v *Validator) verdict(album discover.AlbumDescriptor, accepted bool, reason string, stats Stats) Result {
	v.logger.DebugWithFields("album validated", map[string]interface{}{
		"album":    album.Title,
		"accepted": accepted,
		"reason":   reason,
		"images":   stats.TotalImages,
	})
	return Result{Accepted: accepted, Reason: reason, Stats: stats}
}
