package archiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/crawler"
	"github.com/JakeFAU/wayback-crawler/internal/logging"
	"github.com/JakeFAU/wayback-crawler/internal/metrics"
	"github.com/JakeFAU/wayback-crawler/internal/wayback"
)

const snapshotQueryAttempts = 2

// Config controls archive decisions and retries.
type Config struct {
	Action      Action
	Cooldown    time.Duration
	Retries     int
	SaveTimeout time.Duration
	// Penalty is the cooldown opened after a rate-limit refusal.
	Penalty time.Duration
	// QueryRetryPause separates the two snapshot lookups.
	QueryRetryPause time.Duration
	// RetryUnit scales the 1-3 unit jitter between save attempts.
	RetryUnit time.Duration
}

// Archiver submits URLs to the archive.
type Archiver struct {
	cfg    Config
	client crawler.ArchiveClient
	pacer  *Pacer
	clock  Clock
	logger *zap.Logger
}

// New wires an Archiver around a shared pacer.
func New(cfg Config, client crawler.ArchiveClient, pacer *Pacer, clock Clock, logger *zap.Logger) *Archiver {
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 300 * time.Second
	}
	if cfg.Penalty <= 0 {
		cfg.Penalty = 60 * time.Second
	}
	if cfg.QueryRetryPause <= 0 {
		cfg.QueryRetryPause = 2 * time.Second
	}
	if cfg.RetryUnit <= 0 {
		cfg.RetryUnit = time.Second
	}
	return &Archiver{
		cfg:    cfg,
		client: client,
		pacer:  pacer,
		clock:  clock,
		logger: logging.OrNop(logger),
	}
}

// ShouldArchive reports whether url needs a fresh capture. Lookup failures
// err on the side of archiving.
func (a *Archiver) ShouldArchive(ctx context.Context, url string) bool {
	switch a.cfg.Action {
	case ActionArchiveAll:
		return true
	case ActionSkipAll:
		return false
	}

	for attempt := 1; attempt <= snapshotQueryAttempts; attempt++ {
		captured, err := a.client.LatestSnapshot(ctx, url)
		if err == nil {
			age := a.clock.Now().Sub(captured)
			return age >= a.cfg.Cooldown
		}
		if errors.Is(err, wayback.ErrNoSnapshot) {
			return true
		}
		a.logger.Warn("snapshot lookup failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < snapshotQueryAttempts {
			if sleepErr := a.clock.Sleep(ctx, a.cfg.QueryRetryPause); sleepErr != nil {
				return true
			}
		}
	}
	return true
}

// Submit archives url if needed, retrying transient failures.
func (a *Archiver) Submit(ctx context.Context, url string) Outcome {
	if !a.ShouldArchive(ctx, url) {
		a.record(url, OutcomeSkipped)
		return OutcomeSkipped
	}

	for attempt := 1; attempt <= a.cfg.Retries; attempt++ {
		if err := a.pacer.Acquire(ctx); err != nil {
			a.record(url, OutcomeFailed)
			return OutcomeFailed
		}
		err := a.attempt(ctx, url)
		if err == nil {
			a.record(url, OutcomeArchived)
			return OutcomeArchived
		}
		if ctx.Err() != nil {
			a.record(url, OutcomeFailed)
			return OutcomeFailed
		}

		if errors.Is(err, wayback.ErrRateLimited) {
			a.pacer.Penalize(a.cfg.Penalty)
			metrics.ObserveArchivePenalty()
			a.logger.Warn("archive rate limited, cooling down",
				zap.String("url", url),
				zap.Duration("penalty", a.cfg.Penalty),
			)
			continue
		}
		a.logger.Warn("archive attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", a.cfg.Retries),
			zap.Error(err),
		)
		if attempt < a.cfg.Retries {
			backoff := crawler.Between(a.cfg.RetryUnit, 3*a.cfg.RetryUnit)
			if sleepErr := a.clock.Sleep(ctx, backoff); sleepErr != nil {
				a.record(url, OutcomeFailed)
				return OutcomeFailed
			}
		}
	}
	a.record(url, OutcomeFailed)
	return OutcomeFailed
}

// attempt runs one save bounded by the save timeout. A save that overruns is
// abandoned; its context is canceled and its result discarded.
func (a *Archiver) attempt(ctx context.Context, url string) (err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.SaveTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("save %s panicked: %v", url, r)
			}
		}()
		done <- a.client.Save(attemptCtx, url)
	}()

	select {
	case err = <-done:
		return err
	case <-attemptCtx.Done():
		return fmt.Errorf("save %s: %w", url, attemptCtx.Err())
	}
}

func (a *Archiver) record(url string, outcome Outcome) {
	metrics.ObserveArchiveOutcome(outcome.String())
	a.logger.Info("archive outcome", zap.String("url", url), zap.Stringer("outcome", outcome))
}
