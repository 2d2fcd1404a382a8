// Package downloader runs image download jobs through a small bounded
// worker pool. The default is a single worker: the host tolerates slow,
// paced clients, not parallel ones, so concurrency stays an explicit
// configuration choice.
package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kitscraper/pkg/logger"
	"kitscraper/pkg/progress"
	"kitscraper/pkg/resolve"
)

// Job is one image to download into a known output path
type Job struct {
	Candidate       resolve.ImageCandidate
	CategorySlug    string
	AlbumFolderName string
	AlbumTitle      string
	AlbumURL        string
	ImageIndex      int
	OutputPath      string
	// ForceRetry bypasses the skip-if-done check for retry batches
	ForceRetry bool
}

// Key returns the job's idempotency key within its category
func (j Job) Key() string {
	return progress.ItemKey(j.AlbumFolderName, j.ImageIndex)
}

// Result is the outcome of one job
type Result struct {
	Job      Job
	Success  bool
	Skipped  bool
	Error    error
	Duration time.Duration
}

// ImageDownloader fetches, stores and verifies one image
type ImageDownloader interface {
	DownloadAndVerify(ctx context.Context, sourceURL, outputPath string) error
}

// DoneChecker reports whether an item is already recorded successful
type DoneChecker interface {
	IsDone(categorySlug, itemKey string) bool
}

// WorkerPool manages the download workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      ImageDownloader
	done        DoneChecker
	imageDelay  time.Duration
	logger      logger.Logger
}

// NewWorkerPool creates a pool of numWorkers download workers
func NewWorkerPool(
	numWorkers int,
	client ImageDownloader,
	done DoneChecker,
	imageDelay time.Duration,
	log logger.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		done:        done,
		imageDelay:  imageDelay,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop drains the queue, waits for the workers and closes the result channel
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Submit queues one job; it fails only when the pool is shutting down
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the channel jobs report on
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

// QueueSize returns the number of queued jobs
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}

		if wp.imageDelay > 0 && !result.Skipped {
			select {
			case <-time.After(wp.imageDelay):
			case <-wp.ctx.Done():
				return
			}
		}
	}
}

func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	if !job.ForceRetry && wp.done.IsDone(job.CategorySlug, job.Key()) {
		result.Success = true
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	err := wp.client.DownloadAndVerify(wp.ctx, job.Candidate.SourceURL, job.OutputPath)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		wp.logger.WarnWithFields("download job failed", map[string]interface{}{
			"worker_id": workerID,
			"category":  job.CategorySlug,
			"item":      job.Key(),
			"error":     err.Error(),
		})
		return result
	}

	result.Success = true
	wp.logger.DebugWithFields("download job completed", map[string]interface{}{
		"worker_id": workerID,
		"category":  job.CategorySlug,
		"item":      job.Key(),
		"duration":  result.Duration,
	})
	return result
}
