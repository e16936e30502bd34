package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/config"
	"github.com/JakeFAU/wayback-crawler/internal/coordinator"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Retries: 1,
		Crawl: config.CrawlConfig{
			MaxWorkers:            2,
			RequestTimeoutSeconds: 5,
			RestrictBackwards:     true,
		},
		Archive: config.ArchiveConfig{
			TimeoutSeconds:          60,
			URLsPerMinute:           15,
			DefaultAction:           "bogus",
			MaxWorkers:              1,
			Endpoint:                "http://127.0.0.1:1/save/",
			CDXEndpoint:             "http://127.0.0.1:1/cdx",
			RateLimitPenaltySeconds: 60,
		},
		Report: config.ReportConfig{LocalDir: t.TempDir()},
	}
}

func TestBuildAndRunWithoutSeeds(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	app, err := Build(ctx, cfg, zap.NewNop(), false)
	require.NoError(t, err)
	defer app.Close(ctx)

	require.Equal(t, coordinator.StateIdle, app.Coordinator().State())
	summary, err := app.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.TotalLinksToArchive)
	require.False(t, summary.Stopped)
	require.True(t, app.Coordinator().IsCompleted())

	report := filepath.Join(cfg.Report.LocalDir, "runs", summary.RunID+".json")
	_, err = os.Stat(report)
	require.NoError(t, err)
}

func TestSetupReportsRejectsMissingDirectory(t *testing.T) {
	t.Parallel()

	app := &App{cfg: config.Config{Report: config.ReportConfig{LocalDir: "  "}}, logger: zap.NewNop()}
	_, err := app.setupReports(context.Background())
	require.Error(t, err)

	app.cfg.Report.LocalDir = ""
	store, err := app.setupReports(context.Background())
	require.NoError(t, err)
	require.Nil(t, store)
}
