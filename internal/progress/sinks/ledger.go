package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/logging"
	"github.com/JakeFAU/wayback-crawler/internal/progress"
	"github.com/JakeFAU/wayback-crawler/internal/store"
)

// LedgerSink persists runs and archive outcomes through a
// store.LedgerRepository. Archive outcomes in a batch are written together.
type LedgerSink struct {
	repo   store.LedgerRepository
	logger *zap.Logger
}

// NewLedgerSink constructs a LedgerSink.
func NewLedgerSink(repo store.LedgerRepository, logger *zap.Logger) *LedgerSink {
	return &LedgerSink{repo: repo, logger: logging.OrNop(logger)}
}

// Consume writes run transitions in order and archive outcomes in one call.
// Run starts are written before the outcomes; run ends after.
func (s *LedgerSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var (
		records []store.ArchiveRecord
		ends    []progress.Event
	)
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.TS); err != nil {
				return fmt.Errorf("ledger start run: %w", err)
			}
		case progress.StageArchiveDone:
			records = append(records, store.ArchiveRecord{
				RunID:       evt.RunID,
				URL:         evt.URL,
				Domain:      evt.Domain,
				Outcome:     evt.Outcome,
				AttemptedAt: evt.TS,
				Duration:    evt.Dur,
			})
		case progress.StageRunDone, progress.StageRunStopped:
			ends = append(ends, evt)
		}
	}

	if err := s.repo.RecordArchives(ctx, records); err != nil {
		return fmt.Errorf("ledger record archives: %w", err)
	}
	for _, evt := range ends {
		status := store.RunCompleted
		if evt.Stage == progress.StageRunStopped {
			status = store.RunStopped
		}
		totals := store.RunTotals{
			Archived: int64(evt.Archived),
			Skipped:  int64(evt.Skipped),
			Failed:   int64(evt.Failed),
		}
		if err := s.repo.FinishRun(ctx, evt.RunID, evt.TS, status, totals); err != nil {
			return fmt.Errorf("ledger finish run: %w", err)
		}
	}
	if len(records) > 0 {
		s.logger.Debug("ledger batch written", zap.Int("records", len(records)))
	}
	return nil
}

// Close implements progress.Sink.
func (s *LedgerSink) Close(context.Context) error {
	return nil
}
