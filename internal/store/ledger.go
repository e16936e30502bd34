package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("ledger record not found")

// RunStatus mirrors the runs status column.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunStopped   RunStatus = "stopped"
)

// Run is one coordinator run.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	Archived   int64      `json:"archived"`
	Skipped    int64      `json:"skipped"`
	Failed     int64      `json:"failed"`
}

// RunTotals are the final counters of a run.
type RunTotals struct {
	Archived int64
	Skipped  int64
	Failed   int64
}

// ArchiveRecord is one terminal archive outcome.
type ArchiveRecord struct {
	RunID       uuid.UUID
	URL         string
	Domain      string
	Outcome     string
	AttemptedAt time.Time
	Duration    time.Duration
}

// LedgerRepository persists runs and their archive outcomes.
type LedgerRepository interface {
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, totals RunTotals) error
	RecordArchives(ctx context.Context, records []ArchiveRecord) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
}
