package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"kitscraper/pkg/progress"
)

var (
	summaryBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)

	summaryTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	summaryLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Width(12)

	okValue   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badValue  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimValue  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	catHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// RenderSummary renders the run summary as a styled terminal box
func RenderSummary(summary progress.Summary) string {
	var b strings.Builder

	b.WriteString(summaryTitle.Render("Harvest summary"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%s %d\n", summaryLabel.Render("Processed"), summary.TotalProcessed))
	b.WriteString(fmt.Sprintf("%s %s\n", summaryLabel.Render("Success"), okValue.Render(fmt.Sprintf("%d", summary.TotalSuccess))))

	failed := fmt.Sprintf("%d", summary.TotalFailed)
	if summary.TotalFailed > 0 {
		failed = badValue.Render(failed)
	} else {
		failed = dimValue.Render(failed)
	}
	b.WriteString(fmt.Sprintf("%s %s\n", summaryLabel.Render("Failed"), failed))
	b.WriteString(fmt.Sprintf("%s %.1f%%\n", summaryLabel.Render("Rate"), summary.SuccessRate))

	if len(summary.Categories) > 0 {
		b.WriteString("\n")
		b.WriteString(catHeader.Render("Categories"))
		b.WriteString("\n")
		for _, cat := range summary.Categories {
			status := cat.Status
			if status == progress.CategoryCompleted {
				status = okValue.Render(status)
			} else {
				status = dimValue.Render(status)
			}
			b.WriteString(fmt.Sprintf("  %-24s %s  %d/%d ok\n", cat.Slug, status, cat.Success, cat.Processed))
		}
	}

	return summaryBox.Render(strings.TrimRight(b.String(), "\n"))
}

// PrintSummary prints the styled run summary unless quiet mode is set
func PrintSummary(summary progress.Summary) {
	if IsQuietMode() {
		return
	}
	fmt.Println(RenderSummary(summary))
}

// PrintFailedItems lists failed items with enough detail to retry them
func PrintFailedItems(items []progress.DownloadItem) {
	if len(items) == 0 {
		PrintSuccess("No failed items")
		return
	}
	PrintWarning("Failed items", len(items))
	for _, item := range items {
		title := item.AlbumTitle
		if title == "" {
			title = item.AlbumFolderName
		}
		fmt.Printf("  %s %s [%s] %s\n",
			Red("✗"), title, Dim(item.Key()), Dim(item.Error))
	}
}
