package main

import (
	"os"

	"github.com/spf13/cobra"

	"kitscraper/pkg/scraper"
	"kitscraper/pkg/ui"
)

// albumCmd represents the album command
var albumCmd = &cobra.Command{
	Use:   "album <category> <album-url>",
	Short: "Harvest a single album by URL",
	Long: `Album downloads one album directly by its URL, filing the images under
the named category. The category must exist in the catalog because it
determines the output folder and how progress is recorded.

The same validation and quality selection as a full harvest applies, so an
album whose gallery looks like a QR-code or announcement page is rejected.`,
	Example: `  # Download one album into the retro category
  kitscraper album retro https://host.example/shop/albums/12345`,
	Args: cobra.ExactArgs(2),
	Run:  runAlbum,
}

func init() {
	rootCmd.AddCommand(albumCmd)
}

func runAlbum(cmd *cobra.Command, args []string) {
	cfg := loadConfig(nil)

	s, err := scraper.New(cfg)
	if err != nil {
		ui.PrintError("Failed to initialize scraper", err.Error())
		os.Exit(1)
	}

	ctx, cancel := commandContext()
	defer cancel()

	slug, albumURL := args[0], args[1]
	ui.PrintInfo("Album", albumURL)

	if err := s.HarvestAlbum(ctx, slug, albumURL); err != nil {
		ui.PrintError("Album harvest failed", err.Error())
		os.Exit(1)
	}

	ui.PrintSummary(s.Store().Summarize())
	ui.PrintSuccess("Album harvested")
}
