// Package download streams accepted image candidates to disk and verifies
// the result before it counts as success. Invalid downloads never survive
// on disk.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"kitscraper/pkg/config"
	errs "kitscraper/pkg/errors"
	"kitscraper/pkg/fetcher"
	"kitscraper/pkg/logger"
	"kitscraper/pkg/retry"
)

// Getter issues a single paced GET returning the raw response
type Getter interface {
	Get(ctx context.Context, url string, opts *fetcher.Options) (*http.Response, error)
}

// Downloader fetches, stores and verifies image files
type Downloader struct {
	getter     Getter
	cfg        config.DownloadConfig
	errorDelay time.Duration
	logger     logger.Logger
}

// New creates a Downloader sharing the fetcher's pacing
func New(getter Getter, cfg *config.Config, log logger.Logger) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Downloader{
		getter:     getter,
		cfg:        cfg.Download,
		errorDelay: cfg.RateLimit.ErrorDelay,
		logger:     log,
	}
}

// DownloadAndVerify retrieves sourceURL into outputPath. The body streams
// to a temporary file first; only a download that passes verification is
// renamed into place. Each failed cycle deletes its partial file and the
// whole fetch-and-verify cycle retries on retryable failures.
func (d *Downloader) DownloadAndVerify(ctx context.Context, sourceURL, outputPath string) error {
	return retry.Do(func() error {
		return d.downloadOnce(ctx, sourceURL, outputPath)
	}, &retry.Config{
		MaxAttempts: d.cfg.MaxAttempts,
		Backoff: &retry.LinearBackoff{
			BaseDelay: d.errorDelay,
			Increment: d.errorDelay,
		},
		RetryIf: retry.DefaultRetryIf,
		Context: ctx,
		Logger:  d.logger.WithField("url", sourceURL),
	})
}

func (d *Downloader) downloadOnce(ctx context.Context, sourceURL, outputPath string) error {
	resp, err := d.getter.Get(ctx, sourceURL, nil)
	if err != nil {
		return errs.NetworkFailure(sourceURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &errs.Error{
			Type:    classifyStatus(resp.StatusCode),
			Message: fmt.Sprintf("unexpected status %d fetching %s", resp.StatusCode, sourceURL),
			Code:    resp.StatusCode,
		}
	}

	// Gate on the declared type before touching disk; the sniff after the
	// stream is what actually decides.
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") &&
		!strings.HasPrefix(contentType, "application/octet-stream") {
		return errs.New(errs.ErrorTypeValidation,
			fmt.Sprintf("declared content type %q is not an image", contentType))
	}

	tmpPath := outputPath + ".partial"
	if err := d.streamToFile(resp.Body, tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := VerifyFile(tmpPath, d.cfg); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.ErrorTypeStorage, "failed to move download into place", err)
	}

	d.logger.DebugWithFields("download verified", map[string]interface{}{
		"url":  sourceURL,
		"path": outputPath,
	})
	return nil
}

// classifyStatus maps an HTTP status to the error taxonomy; only
// retryable statuses classify as network or rate-limit failures.
func classifyStatus(code int) errs.ErrorType {
	switch {
	case code == http.StatusTooManyRequests:
		return errs.ErrorTypeRateLimit
	case code == http.StatusNotFound:
		return errs.ErrorTypeNotFound
	case errs.IsRetryableStatusCode(code):
		return errs.ErrorTypeNetwork
	default:
		return errs.ErrorTypeUnknown
	}
}

// streamToFile copies the body to path, refusing bodies past the size cap
func (d *Downloader) streamToFile(body io.Reader, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "failed to create file", err)
	}

	reader := body
	if d.cfg.MaxFileSize > 0 {
		reader = io.LimitReader(body, d.cfg.MaxFileSize+1)
	}
	written, err := io.Copy(f, reader)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, "stream interrupted", err)
	}
	if d.cfg.MaxFileSize > 0 && written > d.cfg.MaxFileSize {
		return errs.New(errs.ErrorTypeValidation,
			fmt.Sprintf("body exceeds maximum size %d", d.cfg.MaxFileSize))
	}
	return nil
}
