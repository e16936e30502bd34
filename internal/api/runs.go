package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/logging"
	"github.com/JakeFAU/wayback-crawler/internal/store"
)

const ledgerTimeout = 3 * time.Second

// RunReader loads persisted runs.
type RunReader interface {
	GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error)
}

// RunHandler exposes read-only run history from the archive ledger.
type RunHandler struct {
	repo    RunReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler wires the repository and logger.
func NewRunHandler(repo RunReader, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		repo:    repo,
		timeout: ledgerTimeout,
		logger:  logging.OrNop(logger),
	}
}

type runDTO struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Archived   int64      `json:"archived"`
	Skipped    int64      `json:"skipped"`
	Failed     int64      `json:"failed"`
}

// GetRun handles GET /v1/runs/{run_id}. It returns {"run": {...}} on success,
// 400 for malformed IDs, 404 when the ledger has no such run, 503 if no
// ledger is wired, or 500 otherwise.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "archive ledger unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.String("run_id", runID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": runDTO{
		ID:         runID.String(),
		Status:     string(run.Status),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Archived:   run.Archived,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
	}})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "run_id"))
	if raw == "" {
		return uuid.Nil, errors.New("run_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run_id: %w", err)
	}
	return id, nil
}
