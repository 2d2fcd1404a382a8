package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitscraper/pkg/config"
	"kitscraper/pkg/logger"
)

func testStore(t *testing.T, checkpointEvery int) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = dir
	cfg.Crawl.CheckpointEvery = checkpointEvery
	return NewStore(cfg, logger.NewTestLogger()), dir
}

func item(category, album string, index int, status string) DownloadItem {
	return DownloadItem{
		CategorySlug:    category,
		AlbumFolderName: album,
		ImageIndex:      index,
		SourceURL:       "https://p.example/shop/aaaa1111/orig.jpg",
		Status:          status,
	}
}

func TestRecordAndIsDone(t *testing.T) {
	s, _ := testStore(t, 100)
	s.StartCategory("retro")

	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 0, StatusSuccess)))
	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 1, StatusFailed)))

	assert.True(t, s.IsDone("retro", ItemKey("arsenal_home", 0)))
	assert.False(t, s.IsDone("retro", ItemKey("arsenal_home", 1)), "failed item is not done")
	assert.False(t, s.IsDone("retro", ItemKey("arsenal_home", 2)))
	assert.False(t, s.IsDone("club", ItemKey("arsenal_home", 0)))
}

func TestRetryTransitionDoesNotDoubleCount(t *testing.T) {
	s, _ := testStore(t, 100)
	s.StartCategory("retro")

	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 0, StatusFailed)))
	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 0, StatusSuccess)))

	summary := s.Summarize()
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, 1, summary.TotalSuccess)
	assert.Equal(t, 0, summary.TotalFailed)
}

func TestPeriodicCheckpoint(t *testing.T) {
	s, dir := testStore(t, 2)
	s.StartCategory("retro")
	progressPath := filepath.Join(dir, "progress.json")

	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 0, StatusSuccess)))
	_, err := os.Stat(progressPath)
	assert.True(t, os.IsNotExist(err), "below threshold, no checkpoint yet")

	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 1, StatusSuccess)))
	_, err = os.Stat(progressPath)
	assert.NoError(t, err, "threshold reached, checkpoint written")
}

func TestLoadRoundTrip(t *testing.T) {
	s, dir := testStore(t, 100)
	s.StartCategory("retro")
	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 0, StatusSuccess)))
	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 1, StatusFailed)))
	require.NoError(t, s.CompleteCategory("retro"))

	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = dir
	reloaded := NewStore(cfg, logger.NewTestLogger())
	require.NoError(t, reloaded.Load())

	assert.True(t, reloaded.IsDone("retro", ItemKey("arsenal_home", 0)))
	assert.Equal(t, CategoryCompleted, reloaded.CategoryStatus("retro"))

	summary := reloaded.Summarize()
	assert.Equal(t, 2, summary.TotalProcessed)
	assert.Equal(t, 1, summary.TotalSuccess)
	assert.Equal(t, 1, summary.TotalFailed)
}

func TestLoadMissingFileStartsFresh(t *testing.T) {
	s, _ := testStore(t, 100)
	require.NoError(t, s.Load())
	assert.Equal(t, 0, s.Summarize().TotalProcessed)
}

func TestLoadCorruptFileErrors(t *testing.T) {
	s, dir := testStore(t, 100)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "progress.json"), []byte("{broken"), 0644))
	assert.Error(t, s.Load())
}

func TestFailedItemsLog(t *testing.T) {
	s, dir := testStore(t, 100)
	s.StartCategory("retro")
	s.StartCategory("club")
	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 0, StatusSuccess)))
	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 1, StatusFailed)))
	require.NoError(t, s.RecordOutcome(item("club", "milan_away", 0, StatusFailed)))
	require.NoError(t, s.Flush())

	failed := s.FailedItems()
	require.Len(t, failed, 2)
	assert.Equal(t, "club", failed[0].CategorySlug, "stable category order")
	assert.Equal(t, "retro", failed[1].CategorySlug)

	data, err := os.ReadFile(filepath.Join(dir, "failed_items.json"))
	require.NoError(t, err)
	var logged []DownloadItem
	require.NoError(t, json.Unmarshal(data, &logged))
	assert.Len(t, logged, 2)
}

func TestReconcileDemotesMissingFiles(t *testing.T) {
	s, dir := testStore(t, 100)
	s.StartCategory("retro")

	present := filepath.Join(dir, "present.jpg")
	require.NoError(t, os.WriteFile(present, []byte("data"), 0644))

	good := item("retro", "arsenal_home", 0, StatusSuccess)
	good.OutputPath = present
	require.NoError(t, s.RecordOutcome(good))

	gone := item("retro", "arsenal_home", 1, StatusSuccess)
	gone.OutputPath = filepath.Join(dir, "missing.jpg")
	require.NoError(t, s.RecordOutcome(gone))

	demoted := s.Reconcile()
	assert.Equal(t, 1, demoted)
	assert.True(t, s.IsDone("retro", ItemKey("arsenal_home", 0)))
	assert.False(t, s.IsDone("retro", ItemKey("arsenal_home", 1)))

	summary := s.Summarize()
	assert.Equal(t, 1, summary.TotalSuccess)
	assert.Equal(t, 1, summary.TotalFailed)
}

func TestSummarizePerCategory(t *testing.T) {
	s, _ := testStore(t, 100)
	s.StartCategory("retro")
	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 0, StatusSuccess)))
	require.NoError(t, s.RecordOutcome(item("retro", "arsenal_home", 1, StatusSuccess)))
	require.NoError(t, s.RecordOutcome(item("retro", "milan_retro", 0, StatusFailed)))

	summary := s.Summarize()
	require.Len(t, summary.Categories, 1)
	assert.Equal(t, "retro", summary.Categories[0].Slug)
	assert.Equal(t, 3, summary.Categories[0].Processed)
	assert.Equal(t, 2, summary.Categories[0].Success)
	assert.Equal(t, 1, summary.Categories[0].Failed)
	assert.InDelta(t, 66.66, summary.SuccessRate, 0.1)
}
