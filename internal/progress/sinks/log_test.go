package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/wayback-crawler/internal/progress"
)

func TestLogSinkWritesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: uuid.New(), TS: time.Now(), Stage: progress.StageArchiveDone, URL: "http://example.com/a", Outcome: "archived"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	require.Equal(t, "ARCHIVE_DONE", fields["stage"])
	require.Equal(t, "archived", fields["outcome"])
	require.NotContains(t, fields, "domain")
}
