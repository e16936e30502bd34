package archiver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/wayback-crawler/internal/metrics"
)

// Clock tells time and sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Pacer spaces archive requests globally. Starts are at least minInterval
// apart and none begins before an active cooldown ends.
type Pacer struct {
	mu            sync.Mutex
	minInterval   time.Duration
	lastStart     time.Time
	cooldownUntil time.Time
	clock         Clock
}

// NewPacer builds a pacer.
func NewPacer(minInterval time.Duration, clock Clock) *Pacer {
	return &Pacer{minInterval: minInterval, clock: clock}
}

// Acquire blocks until a request may start and records its start time.
func (p *Pacer) Acquire(ctx context.Context) error {
	_, err := p.acquire(ctx)
	return err
}

// acquire returns the start time granted to the caller.
func (p *Pacer) acquire(ctx context.Context) (time.Time, error) {
	var waited time.Duration
	for {
		p.mu.Lock()
		now := p.clock.Now()
		wait := p.cooldownUntil.Sub(now)
		if !p.lastStart.IsZero() {
			if gap := p.lastStart.Add(p.minInterval).Sub(now); gap > wait {
				wait = gap
			}
		}
		if wait <= 0 {
			p.lastStart = now
			p.mu.Unlock()
			if waited > 0 {
				metrics.ObserveRateLimitDelay("archive", waited)
			}
			return now, nil
		}
		p.mu.Unlock()

		if err := p.clock.Sleep(ctx, wait); err != nil {
			return time.Time{}, fmt.Errorf("archive pacer wait: %w", err)
		}
		waited += wait
	}
}

// Penalize opens a cooldown of d from now. An existing longer cooldown is kept.
func (p *Pacer) Penalize(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := p.clock.Now().Add(d)
	if until.After(p.cooldownUntil) {
		p.cooldownUntil = until
	}
}

// CooldownUntil reports the end of the current cooldown.
func (p *Pacer) CooldownUntil() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cooldownUntil
}
