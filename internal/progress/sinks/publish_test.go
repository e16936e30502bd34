package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wayback-crawler/internal/progress"
	"github.com/JakeFAU/wayback-crawler/internal/publisher/memory"
)

func publishBatch() []progress.Event {
	runID := uuid.New()
	now := time.Now()
	return []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageArchiveDone, URL: "http://example.com/a", Outcome: "failed"},
		{RunID: runID, TS: now, Stage: progress.StageRunDone},
	}
}

func TestPublishSinkForwardsAll(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, "wayback-progress", false)
	require.NoError(t, sink.Consume(context.Background(), publishBatch()))

	msgs := pub.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "wayback-progress", msgs[0].Topic)
	require.Equal(t, progress.StageArchiveDone, msgs[1].Payload.(progress.Event).Stage)
}

func TestPublishSinkRunEventsOnly(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, "wayback-progress", true)
	require.NoError(t, sink.Consume(context.Background(), publishBatch()))
	require.Len(t, pub.Messages(), 2)
}

func TestPublishSinkJoinsErrors(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.Err = errors.New("unavailable")
	sink := NewPublishSink(pub, "wayback-progress", false)
	err := sink.Consume(context.Background(), publishBatch())
	require.ErrorContains(t, err, "unavailable")
	require.ErrorContains(t, err, "RUN_DONE")
}
