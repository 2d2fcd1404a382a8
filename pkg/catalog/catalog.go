// Package catalog loads the category manifest that drives the harvest:
// which listing pages to walk and how their names map to output folders.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var embeddedManifest []byte

// ManifestEntry is one raw row of the category manifest file
type ManifestEntry struct {
	CategoryID      string `yaml:"categoryId"`
	Path            string `yaml:"path"`
	LabelRaw        string `yaml:"labelRaw"`
	LabelEmojiGuess string `yaml:"labelEmojiGuess"`
	LabelEnGuess    string `yaml:"labelEnGuess"`
	LabelEsGuess    string `yaml:"labelEsGuess"`
}

// Category is a harvestable category with derived identifiers. Immutable
// during a run.
type Category struct {
	Slug          string
	DisplayName   string
	LocalizedName string
	Emoji         string
	SourcePath    string
}

type manifest struct {
	Categories []ManifestEntry `yaml:"categories"`
}

// Load reads the category manifest from path, or the embedded default
// catalog when path is empty.
func Load(path string) ([]Category, error) {
	data := embeddedManifest
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read category manifest: %w", err)
		}
		data = fileData
	}
	return parse(data)
}

func parse(data []byte) ([]Category, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse category manifest: %w", err)
	}
	if len(m.Categories) == 0 {
		return nil, fmt.Errorf("category manifest contains no categories")
	}

	seen := make(map[string]bool, len(m.Categories))
	categories := make([]Category, 0, len(m.Categories))
	for _, entry := range m.Categories {
		if entry.Path == "" {
			return nil, fmt.Errorf("category %q has no source path", entry.CategoryID)
		}

		display := entry.LabelEnGuess
		if display == "" {
			display = entry.LabelRaw
		}
		slug := Sanitize(entry.CategoryID)
		if slug == "" {
			slug = Sanitize(display)
		}
		if slug == "" {
			return nil, fmt.Errorf("category with path %q yields an empty slug", entry.Path)
		}
		if seen[slug] {
			return nil, fmt.Errorf("duplicate category slug %q", slug)
		}
		seen[slug] = true

		categories = append(categories, Category{
			Slug:          slug,
			DisplayName:   display,
			LocalizedName: entry.LabelEsGuess,
			Emoji:         entry.LabelEmojiGuess,
			SourcePath:    entry.Path,
		})
	}
	return categories, nil
}

// Find returns the category with the given slug
func Find(categories []Category, slug string) (Category, bool) {
	for _, c := range categories {
		if c.Slug == slug {
			return c, true
		}
	}
	return Category{}, false
}

// Sanitize derives a deterministic slug: lowercase, strip everything but
// letters, digits, spaces and hyphens, then collapse separators to single
// underscores.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "_")
}
