package validate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"kitscraper/pkg/config"
	"kitscraper/pkg/discover"
	"kitscraper/pkg/logger"
	"kitscraper/pkg/resolve"
)

func newTestValidator() *Validator {
	return New(config.DefaultConfig().Validator, logger.NewTestLogger())
}

func photo(id string, score int) resolve.ImageCandidate {
	return resolve.ImageCandidate{
		SourceURL:    fmt.Sprintf("https://p.example/shop/%s/orig.jpg", id),
		CanonicalID:  id,
		QualityScore: score,
	}
}

func TestValidateRejectsEmptyAlbum(t *testing.T) {
	v := newTestValidator()
	result := v.Validate(discover.AlbumDescriptor{Title: "Arsenal Home Jersey 23/24"}, nil)
	assert.False(t, result.Accepted)
	assert.Equal(t, "no images resolved", result.Reason)
}

func TestValidateLenientVocabularyPass(t *testing.T) {
	v := newTestValidator()
	album := discover.AlbumDescriptor{Title: "Arsenal Home Jersey 23/24"}
	result := v.Validate(album, []resolve.ImageCandidate{photo("aaaa1111", 100)})

	assert.True(t, result.Accepted)
	assert.True(t, result.Stats.VocabularyMatch)
	assert.Equal(t, 1, result.Stats.ValidProductCount)
}

func TestValidateVocabularyNeedsOneValidImage(t *testing.T) {
	v := newTestValidator()
	album := discover.AlbumDescriptor{Title: "Retro Kit Collection"}
	qr := resolve.ImageCandidate{
		SourceURL:    "https://p.example/shop/assets/qrcode-wechat.jpg",
		CanonicalID:  "https://p.example/shop/assets/qrcode-wechat.jpg",
		QualityScore: 50,
	}
	// One suspicious image and nothing else: ratio 1.0 rejects first
	result := v.Validate(album, []resolve.ImageCandidate{qr})
	assert.False(t, result.Accepted)
}

func TestValidateRejectsMostlySuspicious(t *testing.T) {
	v := newTestValidator()
	album := discover.AlbumDescriptor{Title: "New Arrivals"}

	var images []resolve.ImageCandidate
	for i := 0; i < 9; i++ {
		images = append(images, resolve.ImageCandidate{
			SourceURL:    fmt.Sprintf("https://p.example/shop/wechat-%d/orig.jpg", i),
			CanonicalID:  fmt.Sprintf("contact%d", i),
			QualityScore: 100,
		})
	}
	images = append(images, photo("aaaa1111", 100))

	result := v.Validate(album, images)
	assert.False(t, result.Accepted)
	assert.InDelta(t, 0.9, result.Stats.SuspiciousRatio, 0.001)
}

func TestValidateRejectsDuplicatesRegardlessOfTitle(t *testing.T) {
	v := newTestValidator()
	album := discover.AlbumDescriptor{Title: "Real Madrid Home Jersey 2023-24"}

	same := photo("aaaa1111", 100)
	images := make([]resolve.ImageCandidate, 20)
	for i := range images {
		images[i] = same
	}

	result := v.Validate(album, images)
	assert.False(t, result.Accepted, "19/20 duplicate URLs must reject even with a vocabulary title")
	assert.InDelta(t, 0.95, result.Stats.DuplicateRatio, 0.001)
}

func TestValidateRatioPathWithoutVocabulary(t *testing.T) {
	v := newTestValidator()
	album := discover.AlbumDescriptor{Title: "New Arrivals"}

	t.Run("high quality ratio passes", func(t *testing.T) {
		images := []resolve.ImageCandidate{
			photo("aaaa0001", 100),
			photo("aaaa0002", 40),
			photo("aaaa0003", 40),
			photo("aaaa0004", 40),
		}
		result := v.Validate(album, images)
		assert.True(t, result.Accepted, "1/4 high quality meets the 0.2 floor")
	})

	t.Run("all low tiers reject", func(t *testing.T) {
		images := []resolve.ImageCandidate{
			photo("aaaa0001", 40),
			photo("aaaa0002", 40),
			photo("aaaa0003", 30),
			photo("aaaa0004", 20),
			photo("aaaa0005", 20),
		}
		result := v.Validate(album, images)
		assert.False(t, result.Accepted)
	})

	t.Run("valid product ratio passes", func(t *testing.T) {
		images := []resolve.ImageCandidate{
			photo("aaaa0001", 70),
			photo("aaaa0002", 70),
			photo("aaaa0003", 20),
			photo("aaaa0004", 20),
		}
		result := v.Validate(album, images)
		assert.True(t, result.Accepted, "2/4 valid product meets the 0.5 floor")
	})
}

func TestHasProductVocabulary(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Arsenal Home Jersey", true},
		{"retro kits", true},
		{"Maillot PSG 23/24", true},
		{"2023-24 third", true},
		{"camisetas nuevas", true},
		{"kitchen supplies", false},
		{"displayer stand", false},
		{"New Arrivals", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasProductVocabulary(tt.text), "text %q", tt.text)
	}
}

func TestSuspiciousPatternTable(t *testing.T) {
	for _, p := range suspiciousPatterns {
		img := resolve.ImageCandidate{SourceURL: "https://p.example/" + p.Substring + "/orig.jpg"}
		_, suspicious := matchSuspicious(img)
		assert.True(t, suspicious, "pattern %q must fire", p.Substring)
	}

	clean := photo("aaaa1111", 100)
	_, suspicious := matchSuspicious(clean)
	assert.False(t, suspicious)
}

func TestValidateFailsOpenOnPanic(t *testing.T) {
	v := newTestValidator()
	// A nil logger inside verdict would be a bug; simulate an internal
	// error by swapping in a panicking logger.
	v.logger = panickyLogger{Logger: logger.NewTestLogger()}

	result := v.Validate(discover.AlbumDescriptor{Title: "whatever"}, []resolve.ImageCandidate{photo("aaaa1111", 100)})
	assert.True(t, result.Accepted)
	assert.Equal(t, "validator error, failed open", result.Reason)
}

type panickyLogger struct {
	logger.Logger
}

func (panickyLogger) DebugWithFields(string, map[string]interface{}) { panic("boom") }
