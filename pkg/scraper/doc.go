// Package scraper orchestrates the gallery harvest.
//
// The Scraper drives the pipeline per category: the discoverer walks the
// listing pages into album descriptors, the resolver turns each album
// into ranked image candidates, the validator gates the set before any
// folder is created, and the worker pool downloads and verifies the
// accepted candidates. Every outcome lands in the progress store, which
// makes runs resumable and retries targeted.
//
// Usage:
//
//	cfg, err := config.Load("", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s, err := scraper.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := s.HarvestAll(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Pacing:
//
// All page and image fetches go through one shared fetcher that sleeps a
// randomized delay between requests and caps total request volume with a
// token bucket. Albums are separated by a configured delay, and repeated
// consecutive album failures trip a circuit breaker that pauses the crawl
// for a cool-down instead of aborting it.
//
// Resume and retry:
//
// The progress store is the single recovery point. Items recorded
// successful are skipped on later runs; RetryFailed re-attempts exactly
// the failed items, and RetryEmpty re-drives albums whose folders hold no
// images, matched against the cached album lists.
package scraper
