package scraper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	errs "kitscraper/pkg/errors"
	"kitscraper/pkg/progress"
)

// Report is the per-run summary document written alongside the output
type Report struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Summary     progress.Summary        `json:"summary"`
	FailedItems []progress.DownloadItem `json:"failed_items,omitempty"`
}

// WriteReport writes the run report into the reports directory and
// returns its path.
func (s *Scraper) WriteReport() (string, error) {
	report := Report{
		GeneratedAt: time.Now(),
		Summary:     s.store.Summarize(),
		FailedItems: s.store.FailedItems(),
	}

	dir := s.cfg.ReportsPath()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errs.Wrap(errs.ErrorTypeStorage, "failed to create reports directory", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errs.Wrap(errs.ErrorTypeStorage, "failed to marshal report", err)
	}

	path := filepath.Join(dir, "report_"+s.store.SessionID()+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errs.Wrap(errs.ErrorTypeStorage, "failed to write report", err)
	}
	return path, nil
}
