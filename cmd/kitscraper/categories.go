package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kitscraper/pkg/catalog"
	"kitscraper/pkg/ui"
)

// categoriesCmd represents the categories command
var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the categories in the catalog",
	Long: `Categories prints every category in the catalog with its slug, display
name and source path on the photo host. Slugs are what the harvest, discover
and album commands accept.`,
	Run: runCategories,
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

func runCategories(cmd *cobra.Command, args []string) {
	cfg := loadConfig(nil)

	categories, err := catalog.Load(cfg.Output.CategoryManifest)
	if err != nil {
		ui.PrintError("Failed to load category catalog", err.Error())
		os.Exit(1)
	}

	for _, cat := range categories {
		name := cat.DisplayName
		if cat.Emoji != "" {
			name = cat.Emoji + " " + name
		}
		fmt.Printf("  %-20s %-36s %s\n", cat.Slug, name, cat.SourcePath)
	}
	ui.PrintInfo("Total", fmt.Sprintf("%d categories", len(categories)))
}
