package validate

import (
	"regexp"
	"strings"

	"kitscraper/pkg/resolve"
)

// Pattern classifies a substring match with the reason it fires. Keeping
// the rules in tables rather than inline conditionals lets the tests
// enumerate every rule on its own.
type Pattern struct {
	Substring string
	Reason    string
}

// suspiciousPatterns marks images that are very unlikely to be product
// photos. Most navigation chrome never reaches the validator because the
// resolver filters it; these catch what slips through plus seller
// boilerplate embedded in galleries.
var suspiciousPatterns = []Pattern{
	{"qrcode", "qr code"},
	{"qr-code", "qr code"},
	{"wechat", "contact card"},
	{"whatsapp", "contact card"},
	{"telegram", "contact card"},
	{"watermark", "watermark asset"},
	{"payment", "payment instructions"},
	{"shipping", "shipping notice"},
	{"size-chart", "size chart"},
	{"sizechart", "size chart"},
	{"notice", "seller notice"},
	{"announce", "seller notice"},
}

// productVocabulary is the kit/jersey terminology that earns an album
// the lenient validation path.
var productVocabulary = []string{
	"jersey", "kit", "shirt", "maillot", "camiseta", "trikot", "maglia",
	"retro", "home", "away", "third", "goalkeeper", "gk",
	"training", "player", "fan", "version", "soccer", "football",
}

// seasonRe matches season markers like 23/24, 2023-24 or a plain year
var seasonRe = regexp.MustCompile(`\b(?:20\d{2}|\d{2})\s*[/-]\s*\d{2,4}\b|\b20\d{2}\b`)

const highQualityFloor = 90 // raw tier and above
const validProductFloor = 60

// matchSuspicious returns the first suspicious pattern an image hits
func matchSuspicious(c resolve.ImageCandidate) (Pattern, bool) {
	haystack := strings.ToLower(c.SourceURL + " " + c.AltText)
	for _, p := range suspiciousPatterns {
		if strings.Contains(haystack, p.Substring) {
			return p, true
		}
	}
	return Pattern{}, false
}

// isHighQuality reports whether the candidate sits at the raw tier or better
func isHighQuality(c resolve.ImageCandidate) bool {
	return c.QualityScore >= highQualityFloor
}

// isValidProduct reports whether the candidate plausibly shows the
// product: not suspicious, and either a decent quality tier or product
// terminology in its alt text.
func isValidProduct(c resolve.ImageCandidate) bool {
	if _, suspicious := matchSuspicious(c); suspicious {
		return false
	}
	if c.QualityScore >= validProductFloor {
		return true
	}
	return HasProductVocabulary(c.AltText)
}

// HasProductVocabulary reports whether text contains kit/jersey
// terminology or a season marker.
func HasProductVocabulary(text string) bool {
	lowered := strings.ToLower(text)
	for _, term := range productVocabulary {
		if containsWord(lowered, term) || containsWord(lowered, term+"s") {
			return true
		}
	}
	return seasonRe.MatchString(lowered)
}

// containsWord matches term on word boundaries so "player" does not fire
// on "displayer" and "kit" does not fire on "kitchen".
func containsWord(text, term string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
