// Package progress keeps the durable, resumable record of per-item crawl
// outcomes. The progress file is the single recovery point: it is loaded
// at startup, checkpointed periodically, and rewritten atomically so an
// interrupted crawl never corrupts it.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"kitscraper/pkg/config"
	errs "kitscraper/pkg/errors"
	"kitscraper/pkg/logger"
)

// Item states
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Category states
const (
	CategoryInProgress = "in_progress"
	CategoryCompleted  = "completed"
)

// DownloadItem records the outcome of one image download attempt
type DownloadItem struct {
	CategorySlug    string    `json:"category_slug"`
	AlbumFolderName string    `json:"album_folder_name"`
	AlbumTitle      string    `json:"album_title,omitempty"`
	AlbumURL        string    `json:"album_url,omitempty"`
	ImageIndex      int       `json:"image_index"`
	SourceURL       string    `json:"source_url"`
	OutputPath      string    `json:"output_path,omitempty"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Key returns the item's idempotency key within its category
func (d DownloadItem) Key() string {
	return ItemKey(d.AlbumFolderName, d.ImageIndex)
}

// ItemKey builds the per-category idempotency key for one image
func ItemKey(albumFolderName string, imageIndex int) string {
	return fmt.Sprintf("%s#%04d", albumFolderName, imageIndex)
}

// CategoryProgress tracks one category's items
type CategoryProgress struct {
	Status      string                   `json:"status"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
	Items       map[string]*DownloadItem `json:"items"`
}

// State is the persisted progress document
type State struct {
	SessionID      string                       `json:"session_id"`
	StartedAt      time.Time                    `json:"started_at"`
	UpdatedAt      time.Time                    `json:"updated_at"`
	Categories     map[string]*CategoryProgress `json:"categories"`
	TotalProcessed int                          `json:"total_processed"`
	TotalSuccess   int                          `json:"total_success"`
	TotalFailed    int                          `json:"total_failed"`
}

// Summary is the roll-up reported at the end of a run
type Summary struct {
	SessionID      string            `json:"session_id"`
	TotalProcessed int               `json:"total_processed"`
	TotalSuccess   int               `json:"total_success"`
	TotalFailed    int               `json:"total_failed"`
	SuccessRate    float64           `json:"success_rate"`
	Categories     []CategorySummary `json:"categories"`
}

// CategorySummary is the per-category slice of a Summary
type CategorySummary struct {
	Slug      string `json:"slug"`
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Success   int    `json:"success"`
	Failed    int    `json:"failed"`
}

// Store is the single-writer progress store backed by a JSON file
type Store struct {
	path            string
	failedPath      string
	checkpointEvery int
	logger          logger.Logger

	mu     sync.Mutex
	state  *State
	unsync int // outcomes recorded since the last flush
}

// NewStore creates a Store over the configured progress files
func NewStore(cfg *config.Config, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{
		path:            cfg.ProgressPath(),
		failedPath:      cfg.FailedItemsPath(),
		checkpointEvery: cfg.Crawl.CheckpointEvery,
		logger:          log,
		state:           newState(),
	}
}

func newState() *State {
	now := time.Now()
	return &State{
		SessionID:  now.Format("20060102_150405"),
		StartedAt:  now,
		UpdatedAt:  now,
		Categories: make(map[string]*CategoryProgress),
	}
}

// Load reads the progress file from disk. A missing file starts a fresh
// session; a corrupt file is an error rather than silent data loss.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Debug("no progress file, starting fresh session")
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "failed to read progress file", err)
	}

	loaded := newState()
	if err := json.Unmarshal(data, loaded); err != nil {
		return errs.Wrap(errs.ErrorTypeStorage,
			fmt.Sprintf("corrupt progress file %s", s.path), err)
	}
	if loaded.Categories == nil {
		loaded.Categories = make(map[string]*CategoryProgress)
	}
	s.state = loaded
	s.logger.InfoWithFields("progress loaded", map[string]interface{}{
		"session":    loaded.SessionID,
		"processed":  loaded.TotalProcessed,
		"success":    loaded.TotalSuccess,
		"failed":     loaded.TotalFailed,
		"categories": len(loaded.Categories),
	})
	return nil
}

// Flush writes the state to disk atomically and rewrites the failed-items log
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	s.state.UpdatedAt = time.Now()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "failed to create progress directory", err)
	}
	if err := writeJSONAtomic(s.path, s.state); err != nil {
		return err
	}
	if err := writeJSONAtomic(s.failedPath, s.failedItemsLocked()); err != nil {
		return err
	}
	s.unsync = 0
	return nil
}

// writeJSONAtomic writes via a temp file and rename so readers never see
// a half-written document.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "failed to marshal progress state", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "failed to write progress file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.ErrorTypeStorage, "failed to replace progress file", err)
	}
	return nil
}

// StartCategory marks a category in progress, keeping existing items
func (s *Store) StartCategory(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat, ok := s.state.Categories[slug]
	if !ok {
		cat = &CategoryProgress{
			StartedAt: time.Now(),
			Items:     make(map[string]*DownloadItem),
		}
		s.state.Categories[slug] = cat
	}
	cat.Status = CategoryInProgress
	cat.CompletedAt = nil
}

// CompleteCategory marks a category done and checkpoints immediately
func (s *Store) CompleteCategory(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat, ok := s.state.Categories[slug]
	if !ok {
		return errs.New(errs.ErrorTypeUnknown, fmt.Sprintf("unknown category %s", slug))
	}
	now := time.Now()
	cat.Status = CategoryCompleted
	cat.CompletedAt = &now
	return s.flushLocked()
}

// CategoryStatus returns the recorded status for a category, or "" if the
// category has never been started.
func (s *Store) CategoryStatus(slug string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cat, ok := s.state.Categories[slug]; ok {
		return cat.Status
	}
	return ""
}

// IsDone reports whether an item is already recorded successful
func (s *Store) IsDone(categorySlug, itemKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat, ok := s.state.Categories[categorySlug]
	if !ok {
		return false
	}
	item, ok := cat.Items[itemKey]
	return ok && item.Status == StatusSuccess
}

// RecordOutcome merges one download outcome into the store. Totals follow
// status transitions so re-recording a retried item never double counts.
// Every checkpointEvery outcomes the state flushes to disk.
func (s *Store) RecordOutcome(item DownloadItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat, ok := s.state.Categories[item.CategorySlug]
	if !ok {
		cat = &CategoryProgress{
			Status:    CategoryInProgress,
			StartedAt: time.Now(),
			Items:     make(map[string]*DownloadItem),
		}
		s.state.Categories[item.CategorySlug] = cat
	}

	key := item.Key()
	item.UpdatedAt = time.Now()

	previous, existed := cat.Items[key]
	if existed {
		s.retireCount(previous.Status)
	} else {
		s.state.TotalProcessed++
	}
	s.admitCount(item.Status)

	stored := item
	cat.Items[key] = &stored
	s.unsync++

	if s.checkpointEvery > 0 && s.unsync >= s.checkpointEvery {
		return s.flushLocked()
	}
	return nil
}

func (s *Store) admitCount(status string) {
	switch status {
	case StatusSuccess:
		s.state.TotalSuccess++
	case StatusFailed:
		s.state.TotalFailed++
	}
}

func (s *Store) retireCount(status string) {
	switch status {
	case StatusSuccess:
		s.state.TotalSuccess--
	case StatusFailed:
		s.state.TotalFailed--
	}
}

// FailedItems returns every item currently recorded failed, in a stable order
func (s *Store) FailedItems() []DownloadItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedItemsLocked()
}

func (s *Store) failedItemsLocked() []DownloadItem {
	items := []DownloadItem{}
	for _, cat := range s.state.Categories {
		for _, item := range cat.Items {
			if item.Status == StatusFailed {
				items = append(items, *item)
			}
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CategorySlug != items[j].CategorySlug {
			return items[i].CategorySlug < items[j].CategorySlug
		}
		return items[i].Key() < items[j].Key()
	})
	return items
}

// Reconcile demotes success records whose file is gone. A success without
// a file on disk is a corrupt record and must be treated as failed.
func (s *Store) Reconcile() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	demoted := 0
	for _, cat := range s.state.Categories {
		for _, item := range cat.Items {
			if item.Status != StatusSuccess || item.OutputPath == "" {
				continue
			}
			if _, err := os.Stat(item.OutputPath); os.IsNotExist(err) {
				item.Status = StatusFailed
				item.Error = "recorded success but file missing on disk"
				item.UpdatedAt = time.Now()
				s.state.TotalSuccess--
				s.state.TotalFailed++
				demoted++
			}
		}
	}
	if demoted > 0 {
		s.logger.WarnWithFields("demoted corrupt success records", map[string]interface{}{
			"count": demoted,
		})
	}
	return demoted
}

// Summarize rolls the state up for reporting
func (s *Store) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		SessionID:      s.state.SessionID,
		TotalProcessed: s.state.TotalProcessed,
		TotalSuccess:   s.state.TotalSuccess,
		TotalFailed:    s.state.TotalFailed,
	}
	if summary.TotalProcessed > 0 {
		summary.SuccessRate = float64(summary.TotalSuccess) / float64(summary.TotalProcessed) * 100
	}

	slugs := make([]string, 0, len(s.state.Categories))
	for slug := range s.state.Categories {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	for _, slug := range slugs {
		cat := s.state.Categories[slug]
		cs := CategorySummary{Slug: slug, Status: cat.Status}
		for _, item := range cat.Items {
			cs.Processed++
			switch item.Status {
			case StatusSuccess:
				cs.Success++
			case StatusFailed:
				cs.Failed++
			}
		}
		summary.Categories = append(summary.Categories, cs)
	}
	return summary
}

// SessionID returns the current session identifier
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionID
}
