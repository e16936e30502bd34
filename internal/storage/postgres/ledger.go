// Package postgres provides the Postgres-backed archive ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/wayback-crawler/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LedgerConfig controls the Postgres connection pool used for ledger rows.
type LedgerConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Ledger records runs in <table>_runs and archive outcomes in <table>.
type Ledger struct {
	pool  pool
	table string
}

// NewLedger connects to Postgres using cfg.
func NewLedger(ctx context.Context, cfg LedgerConfig) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	ledger, err := NewLedgerWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return ledger, nil
}

// NewLedgerWithPool constructs a ledger from an existing pool.
func NewLedgerWithPool(p pool, table string) (*Ledger, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "archive_ledger"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Ledger{pool: p, table: table}, nil
}

// Close releases the underlying pool.
func (l *Ledger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

// StartRun inserts a running row; repeated calls are ignored.
func (l *Ledger) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s_runs (id, started_at, status)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`, l.table)
	if _, err := l.pool.Exec(ctx, query, runID, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final status and totals.
func (l *Ledger) FinishRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totals store.RunTotals,
) error {
	query := fmt.Sprintf(`
UPDATE %s_runs
SET finished_at = $1, status = $2, archived = $3, skipped = $4, failed = $5
WHERE id = $6`, l.table)
	tag, err := l.pool.Exec(ctx, query,
		finishedAt, string(status), totals.Archived, totals.Skipped, totals.Failed, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", runID, store.ErrNotFound)
	}
	return nil
}

// RecordArchives inserts outcomes in one transaction.
func (l *Ledger) RecordArchives(ctx context.Context, records []store.ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, url, domain, outcome, attempted_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6)`, l.table)
	for _, rec := range records {
		if _, err := tx.Exec(ctx, query,
			rec.RunID, rec.URL, rec.Domain, rec.Outcome, rec.AttemptedAt, rec.Duration.Milliseconds(),
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert archive record %s: %w", rec.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (l *Ledger) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := fmt.Sprintf(`
SELECT started_at, finished_at, status, archived, skipped, failed
FROM %s_runs
WHERE id = $1`, l.table)
	run := store.Run{ID: runID}
	var status string
	err := l.pool.QueryRow(ctx, query, runID).Scan(
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Archived,
		&run.Skipped,
		&run.Failed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
