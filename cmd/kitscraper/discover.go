package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kitscraper/pkg/catalog"
	"kitscraper/pkg/scraper"
	"kitscraper/pkg/ui"
)

var discoverMaxPages int

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover <category>",
	Short: "List the albums of a category without downloading anything",
	Long: `Discover walks the listing pages of a category and prints every album
found, without downloading any images.

The discovered album list is also cached on disk, where 'retry empty' uses
it to map empty album folders back to their source URLs.`,
	Example: `  # List all albums in the retro category
  kitscraper discover retro

  # Only look at the first two listing pages
  kitscraper discover retro --max-pages 2`,
	Args: cobra.ExactArgs(1),
	Run:  runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().IntVar(&discoverMaxPages, "max-pages", 0, "maximum listing pages to walk")
}

func runDiscover(cmd *cobra.Command, args []string) {
	flags := make(map[string]interface{})
	if discoverMaxPages > 0 {
		flags["max-pages"] = discoverMaxPages
	}
	cfg := loadConfig(flags)

	s, err := scraper.New(cfg)
	if err != nil {
		ui.PrintError("Failed to initialize scraper", err.Error())
		os.Exit(1)
	}

	slug := args[0]
	cat, ok := catalog.Find(s.Categories(), slug)
	if !ok {
		ui.PrintError("Unknown category", slug)
		ui.PrintInfo("Hint", "use 'kitscraper categories' to list known slugs")
		os.Exit(1)
	}

	ctx, cancel := commandContext()
	defer cancel()

	albums, err := s.DiscoverCategory(ctx, cat)
	if err != nil {
		ui.PrintError("Discovery failed", err.Error())
		os.Exit(1)
	}

	ui.PrintInfo("Category", cat.DisplayName)
	ui.PrintInfo("Albums", fmt.Sprintf("%d", len(albums)))
	for _, album := range albums {
		fmt.Printf("  %-40s %s\n", album.Title, album.URL)
	}
}
