package resolve

import (
	"net/url"
	"regexp"
	"strings"
)

// Quality tier scores for the host's URL suffix patterns. Higher is
// better; unknown suffixes land mid-range so they neither beat known
// originals nor lose to thumbnails.
const (
	scoreOriginal = 100
	scoreRaw      = 95
	scoreMax      = 90
	scoreWebp     = 80
	scoreLarge    = 70
	scoreMedium   = 60
	scoreUnknown  = 50
	scoreSmall    = 40
	scoreSquare   = 30
	scoreThumb    = 20
)

// qualityTiers maps the host's tier names to their ordinal score
var qualityTiers = map[string]int{
	"orig":      scoreOriginal,
	"original":  scoreOriginal,
	"raw":       scoreRaw,
	"max":       scoreMax,
	"webp":      scoreWebp,
	"big":       scoreLarge,
	"large":     scoreLarge,
	"medium":    scoreMedium,
	"small":     scoreSmall,
	"square":    scoreSquare,
	"thumb":     scoreThumb,
	"thumbnail": scoreThumb,
}

// bestTier is the substitution target when upgrading a URL
const bestTier = "orig"

var (
	// matches .../<photoid>/<tier>.jpg, tier as the filename itself
	tierFileRe = regexp.MustCompile(`(?i)/(orig|original|raw|max|webp|big|large|medium|small|square|thumbnail|thumb)\.([a-z0-9]+)$`)
	// matches .../<photoid>_<tier>.jpg, tier as a filename suffix
	tierSuffixRe = regexp.MustCompile(`(?i)_(orig|original|raw|max|webp|big|large|medium|small|square|thumbnail|thumb)\.([a-z0-9]+)$`)
	// stable per-photo identifier path segment
	photoIDRe = regexp.MustCompile(`(?i)^[0-9a-f]{6,}$|^\d{6,}$`)
)

// QualityScore derives the ordinal quality of an image URL from its tier
// suffix. URLs without a recognizable tier score mid-range.
func QualityScore(rawURL string) int {
	if tier, ok := extractTier(rawURL); ok {
		return qualityTiers[tier]
	}
	return scoreUnknown
}

// UpgradeURL rewrites a tiered URL to the best known tier. URLs without a
// recognizable tier pattern are returned unchanged.
func UpgradeURL(rawURL string) string {
	if m := tierFileRe.FindStringSubmatch(rawURL); m != nil {
		return tierFileRe.ReplaceAllString(rawURL, "/"+bestTier+".$2")
	}
	if m := tierSuffixRe.FindStringSubmatch(rawURL); m != nil {
		return tierSuffixRe.ReplaceAllString(rawURL, "_"+bestTier+".$2")
	}
	return rawURL
}

// CanonicalID extracts the host's stable per-photo identifier so that
// multiple resolutions of one photo collapse to a single candidate. Falls
// back to the URL without query string and tier suffix.
func CanonicalID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	// Tier-as-filename: the id is the segment before the tier
	if tierFileRe.MatchString(u.Path) && len(segments) >= 2 {
		id := segments[len(segments)-2]
		if photoIDRe.MatchString(id) {
			return id
		}
	}

	// Tier-as-suffix: the id is the filename up to the underscore
	if m := tierSuffixRe.FindStringIndex(u.Path); m != nil {
		base := segments[len(segments)-1]
		if idx := strings.LastIndex(base, "_"); idx > 0 {
			id := base[:idx]
			if photoIDRe.MatchString(id) {
				return id
			}
		}
	}

	// Any path segment that looks like a photo id
	for i := len(segments) - 1; i >= 0; i-- {
		if photoIDRe.MatchString(segments[i]) {
			return segments[i]
		}
	}

	u.RawQuery = ""
	u.Fragment = ""
	stripped := u.String()
	stripped = tierFileRe.ReplaceAllString(stripped, "")
	stripped = tierSuffixRe.ReplaceAllString(stripped, "")
	return stripped
}

func extractTier(rawURL string) (string, bool) {
	if m := tierFileRe.FindStringSubmatch(rawURL); m != nil {
		return normalizeTier(m[1]), true
	}
	if m := tierSuffixRe.FindStringSubmatch(rawURL); m != nil {
		return normalizeTier(m[1]), true
	}
	return "", false
}

func normalizeTier(tier string) string {
	tier = strings.ToLower(tier)
	switch tier {
	case "original":
		return "orig"
	case "thumbnail":
		return "thumb"
	}
	return tier
}
