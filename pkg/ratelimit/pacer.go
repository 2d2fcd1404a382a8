package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer inserts a randomized politeness delay between consecutive
// requests. The delay is base +/- jitter, drawn fresh for every request so
// the crawl does not present a fixed cadence to the host.
type Pacer struct {
	base   time.Duration
	jitter time.Duration

	mu   sync.Mutex
	last time.Time
	rng  *rand.Rand
}

// NewPacer creates a pacer with the given base delay and jitter bound
func NewPacer(base, jitter time.Duration) *Pacer {
	return &Pacer{
		base:   base,
		jitter: jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextDelay draws the next randomized inter-request delay
func (p *Pacer) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drawLocked()
}

func (p *Pacer) drawLocked() time.Duration {
	delay := p.base
	if p.jitter > 0 {
		delay += time.Duration(p.rng.Int63n(int64(2*p.jitter))) - p.jitter
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Wait blocks until the pacing delay since the previous request has
// elapsed, or the context is cancelled. The first call returns
// immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	var sleep time.Duration
	if !p.last.IsZero() {
		due := p.last.Add(p.drawLocked())
		sleep = time.Until(due)
	}
	p.last = time.Now().Add(sleep)
	p.mu.Unlock()

	if sleep <= 0 {
		return nil
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
