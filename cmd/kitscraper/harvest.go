package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kitscraper/pkg/catalog"
	"kitscraper/pkg/logger"
	"kitscraper/pkg/scraper"
	"kitscraper/pkg/ui"
)

var (
	// Harvest command flags
	outputDir  string
	baseURL    string
	concurrent int
	rateLimit  int
	maxPages   int
	maxRetries int
	noReport   bool
)

// harvestCmd represents the harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest [category...]",
	Short: "Download every album in one or more categories",
	Long: `Harvest walks the listing pages of each named category, discovers all
albums, validates their galleries and downloads the best quality variant of
every product image.

Without arguments, every category in the catalog is harvested in order.
Categories that completed in a previous run are skipped; already-downloaded
images inside partially processed albums are skipped as well, so the command
is safe to interrupt and rerun.`,
	Example: `  # Harvest the full catalog
  kitscraper harvest

  # Harvest two specific categories
  kitscraper harvest retro national-teams

  # Harvest into a specific directory with more workers
  kitscraper harvest retro --output ./kits --concurrent 3`,
	Args: cobra.ArbitraryArgs,
	Run:  runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().StringVarP(&outputDir, "output", "o", "", "base directory for downloads")
	harvestCmd.Flags().StringVar(&baseURL, "base-url", "", "override the photo host base URL")
	harvestCmd.Flags().IntVar(&concurrent, "concurrent", 0, "number of concurrent downloads")
	harvestCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute")
	harvestCmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum listing pages per category")
	harvestCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "maximum download attempts per image")
	harvestCmd.Flags().BoolVar(&noReport, "no-report", false, "skip writing the session report file")
}

func harvestFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["base-directory"] = outputDir
	}
	if baseURL != "" {
		flags["base-url"] = baseURL
	}
	if concurrent > 0 {
		flags["concurrent-downloads"] = concurrent
	}
	if rateLimit > 0 {
		flags["requests-per-minute"] = rateLimit
	}
	if maxPages > 0 {
		flags["max-pages"] = maxPages
	}
	if maxRetries > 0 {
		flags["max-attempts"] = maxRetries
	}
	return flags
}

func runHarvest(cmd *cobra.Command, args []string) {
	cfg := loadConfig(harvestFlags())
	logger.WithField("version", version).Info("kitscraper starting")

	s, err := scraper.New(cfg)
	if err != nil {
		ui.PrintError("Failed to initialize scraper", err.Error())
		os.Exit(1)
	}

	ctx, cancel := commandContext()
	defer cancel()

	if len(args) == 0 {
		ui.PrintInfo("Target", "all categories")
		err = s.HarvestAll(ctx)
	} else {
		ui.PrintInfo("Target", strings.Join(args, ", "))
		for _, slug := range args {
			cat, ok := catalog.Find(s.Categories(), slug)
			if !ok {
				ui.PrintError("Unknown category", slug)
				ui.PrintInfo("Hint", "use 'kitscraper categories' to list known slugs")
				os.Exit(1)
			}
			if err = s.HarvestCategory(ctx, cat); err != nil {
				break
			}
		}
	}

	summary := s.Store().Summarize()
	ui.PrintSummary(summary)
	if failed := s.Store().FailedItems(); len(failed) > 0 {
		ui.PrintFailedItems(failed)
		ui.PrintInfo("Hint", "use 'kitscraper retry failed' to retry these items")
	}

	if !noReport {
		if path, rerr := s.WriteReport(); rerr != nil {
			logger.WithError(rerr).Warn("failed to write session report")
		} else {
			ui.PrintInfo("Report", path)
		}
	}

	if err != nil {
		logger.WithError(err).Error("harvest failed")
		ui.PrintError("Harvest failed", err.Error())
		os.Exit(1)
	}

	logger.Info("harvest completed")
	ui.PrintSuccess("Harvest completed")
}
