package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"kitscraper/pkg/scraper"
	"kitscraper/pkg/ui"
)

// retryCmd represents the retry command
var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry failed downloads or re-drive empty album folders",
	Long: `Retry re-runs work that a previous harvest left incomplete.

'retry failed' re-downloads every image recorded as failed in the progress
file. 'retry empty' re-walks albums whose folders exist on disk but contain
no images, using the cached album lists written during discovery.`,
}

// retryFailedCmd represents the retry failed command
var retryFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "Re-download every image recorded as failed",
	Example: `  kitscraper retry failed
  kitscraper retry failed --log-level debug`,
	Run: func(cmd *cobra.Command, args []string) {
		runRetry(func(ctx context.Context, s *scraper.Scraper) error {
			return s.RetryFailed(ctx)
		})
	},
}

// retryEmptyCmd represents the retry empty command
var retryEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Re-process albums whose folders contain no images",
	Example: `  kitscraper retry empty`,
	Run: func(cmd *cobra.Command, args []string) {
		runRetry(func(ctx context.Context, s *scraper.Scraper) error {
			return s.RetryEmpty(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
	retryCmd.AddCommand(retryFailedCmd)
	retryCmd.AddCommand(retryEmptyCmd)
}

func runRetry(op func(context.Context, *scraper.Scraper) error) {
	cfg := loadConfig(nil)

	s, err := scraper.New(cfg)
	if err != nil {
		ui.PrintError("Failed to initialize scraper", err.Error())
		os.Exit(1)
	}

	ctx, cancel := commandContext()
	defer cancel()

	if err := op(ctx, s); err != nil {
		ui.PrintError("Retry failed", err.Error())
		os.Exit(1)
	}

	ui.PrintSummary(s.Store().Summarize())
	if failed := s.Store().FailedItems(); len(failed) > 0 {
		ui.PrintFailedItems(failed)
	} else {
		ui.PrintSuccess("No failed items remain")
	}
}
