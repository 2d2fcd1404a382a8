package discover

import (
	"strings"
	"unicode"
)

// Pattern is one declarative rejection rule: a lowercase substring and the
// classification reported when it matches.
type Pattern struct {
	Substring string
	Reason    string
}

// nonGalleryURLPatterns rejects links the host serves around its galleries:
// legal boilerplate, account pages, and the compliance pages Chinese hosts
// must link to.
var nonGalleryURLPatterns = []Pattern{
	{"privacy", "privacy policy page"},
	{"policy", "policy page"},
	{"terms", "terms of service page"},
	{"/tos", "terms of service page"},
	{"legal", "legal page"},
	{"disclaimer", "legal page"},
	{"copyright", "legal page"},
	{"login", "account page"},
	{"signin", "account page"},
	{"signup", "account page"},
	{"register", "account page"},
	{"account", "account page"},
	{"beian", "compliance filing page"},
	{"miit.gov.cn", "compliance filing domain"},
	{"gov.cn", "government domain"},
	{"icp", "compliance filing page"},
	{"about", "about page"},
	{"contact", "contact page"},
	{"help", "help page"},
	{"faq", "help page"},
}

// genericTitles are link texts too vague to identify a product listing
var genericTitles = map[string]bool{
	"click here": true,
	"here":       true,
	"photo":      true,
	"photos":     true,
	"image":      true,
	"images":     true,
	"album":      true,
	"gallery":    true,
	"untitled":   true,
	"more":       true,
	"view":       true,
	"view all":   true,
	"next":       true,
	"prev":       true,
	"previous":   true,
}

// boilerplateTitlePhrases embed in otherwise plausible titles on
// compliance and legal pages
var boilerplateTitlePhrases = []string{
	"privacy policy",
	"terms of service",
	"terms of use",
	"all rights reserved",
	"icp",
	"备案",
	"版权所有",
	"法律声明",
}

// RejectURL reports whether an absolute URL matches a known non-gallery
// pattern, returning the matched rule's reason.
func RejectURL(rawURL string) (string, bool) {
	lowered := strings.ToLower(rawURL)
	for _, p := range nonGalleryURLPatterns {
		if strings.Contains(lowered, p.Substring) {
			return p.Reason, true
		}
	}
	return "", false
}

// RejectTitle reports whether a candidate title fails the title filter,
// returning the rejection reason.
func RejectTitle(title string, minLength int) (string, bool) {
	trimmed := strings.TrimSpace(title)
	if len([]rune(trimmed)) < minLength {
		return "title too short", true
	}
	if isPurelyNumeric(trimmed) {
		return "purely numeric title", true
	}
	lowered := strings.ToLower(trimmed)
	if genericTitles[lowered] {
		return "generic title", true
	}
	for _, phrase := range boilerplateTitlePhrases {
		if strings.Contains(lowered, phrase) {
			return "boilerplate title", true
		}
	}
	return "", false
}

func isPurelyNumeric(s string) bool {
	seen := false
	for _, r := range s {
		if unicode.IsDigit(r) {
			seen = true
			continue
		}
		if unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' {
			continue
		}
		return false
	}
	return seen
}
