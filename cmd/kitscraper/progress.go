package main

import (
	"os"

	"github.com/spf13/cobra"

	"kitscraper/pkg/logger"
	"kitscraper/pkg/progress"
	"kitscraper/pkg/ui"
)

var progressShowFailed bool

// progressCmd represents the progress command
var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the state of the current harvest session",
	Long: `Progress prints a summary of the progress file: per-category counts,
overall success rate and, with --failed, the individual failed items.

Nothing is fetched or downloaded; this only reads local state.`,
	Example: `  kitscraper progress
  kitscraper progress --failed`,
	Run: runProgress,
}

func init() {
	rootCmd.AddCommand(progressCmd)

	progressCmd.Flags().BoolVar(&progressShowFailed, "failed", false, "also list every failed item")
}

func runProgress(cmd *cobra.Command, args []string) {
	cfg := loadConfig(nil)

	store := progress.NewStore(cfg, logger.GetLogger())
	if err := store.Load(); err != nil {
		ui.PrintError("Failed to load progress file", err.Error())
		os.Exit(1)
	}

	summary := store.Summarize()
	if summary.TotalProcessed == 0 && len(summary.Categories) == 0 {
		ui.PrintInfo("Progress", "no harvest session recorded yet")
		return
	}

	ui.PrintSummary(summary)
	if progressShowFailed {
		ui.PrintFailedItems(store.FailedItems())
	}
}
