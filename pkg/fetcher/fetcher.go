// Package fetcher issues rate-limited, retried HTTP GET requests against
// the photo host, rotating browser identities and pacing every request
// with a randomized delay.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"kitscraper/pkg/config"
	errs "kitscraper/pkg/errors"
	"kitscraper/pkg/logger"
	"kitscraper/pkg/ratelimit"
	"kitscraper/pkg/retry"
)

// Options adjusts a single fetch call
type Options struct {
	// Headers are merged over the fetcher's base headers
	Headers map[string]string
	// MaxAttempts overrides the configured attempt count when > 0
	MaxAttempts int
}

// Fetcher performs paced, retried GET requests
type Fetcher struct {
	httpClient  *http.Client
	headers     map[string]string
	userAgents  []string
	pacer       *ratelimit.Pacer
	limiter     ratelimit.Limiter
	maxAttempts int
	errorDelay  time.Duration
	logger      logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Fetcher from configuration
func New(cfg *config.Config, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	}

	headers := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Cache-Control":   "no-cache",
	}
	// Host-specific headers from configuration win over the defaults.
	// Merged once here; the map is read-only afterwards.
	for key, value := range cfg.Host.Headers {
		headers[key] = value
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Download.DownloadTimeout,
		},
		headers: headers,
		userAgents:  cfg.Host.UserAgents,
		pacer:       ratelimit.NewPacer(cfg.RateLimit.RequestDelay, cfg.RateLimit.DelayJitter),
		limiter:     limiter,
		maxAttempts: cfg.Download.MaxAttempts,
		errorDelay:  cfg.RateLimit.ErrorDelay,
		logger:      log,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// userAgent picks a randomized client identity for one request
func (f *Fetcher) userAgent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userAgents[f.rng.Intn(len(f.userAgents))]
}

// Fetch retrieves the body at url, retrying transient failures with a
// linearly increasing backoff. After exhausting attempts it returns a
// terminal network error carrying the last failure.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts *Options) ([]byte, error) {
	maxAttempts := f.maxAttempts
	if opts != nil && opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}

	var lastErr error
	lastCode := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// Linear backoff: base error delay scaled by attempt number
			delay := f.errorDelay * time.Duration(attempt-1)
			f.logger.WarnWithFields("retrying fetch", map[string]interface{}{
				"url":      url,
				"attempt":  attempt,
				"delay_ms": delay.Milliseconds(),
				"error":    lastErr.Error(),
			})
			if err := retry.Wait(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, code, err := f.fetchOnce(ctx, url, opts)
		if err == nil {
			return body, nil
		}
		lastErr = err
		lastCode = code

		if !errs.IsRetryableStatusCode(code) {
			break
		}
	}

	f.logger.ErrorWithFields("fetch failed after all attempts", map[string]interface{}{
		"url":      url,
		"attempts": maxAttempts,
		"error":    lastErr.Error(),
	})
	return nil, errs.NetworkFailure(url, lastCode, lastErr)
}

// fetchOnce performs one paced request, returning the body and status code
func (f *Fetcher) fetchOnce(ctx context.Context, url string, opts *Options) ([]byte, int, error) {
	resp, err := f.Get(ctx, url, opts)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Get performs a single paced GET and returns the raw response. Callers
// streaming large bodies own the response and must close it. Status
// handling is left to the caller.
func (f *Fetcher) Get(ctx context.Context, url string, opts *Options) (*http.Response, error) {
	if err := f.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	if f.limiter != nil {
		f.limiter.Wait()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}
	if opts != nil {
		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
	}
	req.Header.Set("User-Agent", f.userAgent())

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		f.logger.DebugWithFields("request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, fmt.Errorf("request failed: %w", err)
	}

	f.logger.DebugWithFields("request completed", map[string]interface{}{
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// FetchDocument retrieves and parses an HTML page
func (f *Fetcher) FetchDocument(ctx context.Context, url string, opts *Options) (*goquery.Document, error) {
	body, err := f.Fetch(ctx, url, opts)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeDiscovery, fmt.Sprintf("failed to parse page %s", url), err)
	}
	return doc, nil
}
