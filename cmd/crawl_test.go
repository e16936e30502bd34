package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/archiver"
	"github.com/JakeFAU/wayback-crawler/internal/config"
	"github.com/JakeFAU/wayback-crawler/internal/coordinator"
)

type stubPages struct{}

func (stubPages) Discover(context.Context, string, string) ([]string, error) { return nil, nil }

type stubArchiver struct{}

func (stubArchiver) Submit(context.Context, string) archiver.Outcome { return archiver.OutcomeArchived }

type fakeApp struct {
	coord  *coordinator.Coordinator
	serve  bool
	closed bool
}

func (f *fakeApp) Coordinator() *coordinator.Coordinator { return f.coord }

func (f *fakeApp) Run(ctx context.Context) (coordinator.Summary, error) { return f.coord.Run(ctx) }

func (f *fakeApp) Close(context.Context) { f.closed = true }

func withFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	fake := &fakeApp{coord: coordinator.New(coordinator.Options{}, coordinator.Deps{
		Pages:    stubPages{},
		Archiver: stubArchiver{},
	})}
	original := newApp
	newApp = func(_ context.Context, _ config.Config, _ *zap.Logger, serve bool) (crawlApp, error) {
		fake.serve = serve
		return fake, nil
	}
	t.Cleanup(func() { newApp = original })
	return fake
}

func execute(args ...string) (string, error) {
	cfgFile = ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommand_RequiresSeeds(t *testing.T) {
	withFakeApp(t)

	_, err := execute("crawl")
	require.ErrorContains(t, err, "at least one seed URL is required")
}

func TestCrawlCommand_RejectsMissingConfig(t *testing.T) {
	withFakeApp(t)

	_, err := execute("--config", filepath.Join(t.TempDir(), "missing.yaml"), "crawl", "example.com")
	require.ErrorContains(t, err, "load config")
}

func TestCrawlCommand_RunsAndPrintsSummary(t *testing.T) {
	fake := withFakeApp(t)

	seeds := filepath.Join(t.TempDir(), "seeds.txt")
	require.NoError(t, os.WriteFile(seeds, []byte("# docs\nhttp://example.com/docs\n\n"), 0o600))

	out, err := execute("crawl", "--serve", "--seeds-file", seeds, "example.com")
	require.NoError(t, err)
	require.Contains(t, out, "Archived: 2")
	require.Contains(t, out, "Total links: 2")
	require.True(t, fake.serve)
	require.True(t, fake.closed)
}

func TestCrawlCommand_NoValidSeeds(t *testing.T) {
	fake := withFakeApp(t)

	_, err := execute("crawl", "   ")
	require.ErrorContains(t, err, "no valid seed URLs")
	require.True(t, fake.closed)
}

func TestReadSeeds(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seeds.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.test\n  # skip\n\n  http://b.test/x  \n"), 0o600))

	seeds, err := readSeeds(path)
	require.NoError(t, err)
	require.Equal(t, []string{"a.test", "http://b.test/x"}, seeds)

	_, err = readSeeds(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}
