package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wayback-crawler/internal/progress"
	"github.com/JakeFAU/wayback-crawler/internal/store"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	return m.Called(ctx, runID, startedAt).Error(0)
}

func (m *MockLedger) FinishRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totals store.RunTotals,
) error {
	return m.Called(ctx, runID, finishedAt, status, totals).Error(0)
}

func (m *MockLedger) RecordArchives(ctx context.Context, records []store.ArchiveRecord) error {
	return m.Called(ctx, records).Error(0)
}

func (m *MockLedger) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(store.Run), args.Error(1)
}

func TestLedgerSinkPersistsRunAndOutcomes(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	repo := &MockLedger{}
	repo.On("StartRun", mock.Anything, runID, now).Return(nil).Once()
	repo.On("RecordArchives", mock.Anything, []store.ArchiveRecord{
		{RunID: runID, URL: "http://example.com/a", Domain: "example.com", Outcome: "archived", AttemptedAt: now, Duration: time.Second},
	}).Return(nil).Once()
	repo.On("FinishRun", mock.Anything, runID, now.Add(time.Hour), store.RunCompleted,
		store.RunTotals{Archived: 1, Skipped: 2}).Return(nil).Once()

	sink := NewLedgerSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StagePageCrawled, URL: "http://example.com/"},
		{RunID: runID, TS: now, Stage: progress.StageArchiveDone, URL: "http://example.com/a", Domain: "example.com", Outcome: "archived", Dur: time.Second},
		{RunID: runID, TS: now.Add(time.Hour), Stage: progress.StageRunDone, Archived: 1, Skipped: 2},
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestLedgerSinkStoppedRun(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	repo := &MockLedger{}
	repo.On("RecordArchives", mock.Anything, []store.ArchiveRecord(nil)).Return(nil).Once()
	repo.On("FinishRun", mock.Anything, runID, now, store.RunStopped, store.RunTotals{Failed: 4}).Return(nil).Once()

	sink := NewLedgerSink(repo, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStopped, Failed: 4},
	}))
	repo.AssertExpectations(t)
}

func TestLedgerSinkSurfacesErrors(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &MockLedger{}
	repo.On("StartRun", mock.Anything, runID, mock.Anything).Return(errors.New("db down")).Once()

	sink := NewLedgerSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
	})
	require.ErrorContains(t, err, "db down")
	repo.AssertNotCalled(t, "RecordArchives", mock.Anything, mock.Anything)
}

func TestLedgerSinkNilRepo(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewLedgerSink(nil, nil).Consume(context.Background(), []progress.Event{{}}))
}
