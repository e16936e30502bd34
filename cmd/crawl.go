package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/config"
	"github.com/JakeFAU/wayback-crawler/internal/coordinator"
	"github.com/JakeFAU/wayback-crawler/internal/logging"
	"github.com/JakeFAU/wayback-crawler/internal/server"
)

// crawlApp is what the crawl command needs from the assembled application.
type crawlApp interface {
	Coordinator() *coordinator.Coordinator
	Run(ctx context.Context) (coordinator.Summary, error)
	Close(ctx context.Context)
}

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, serve bool) (crawlApp, error) {
	return server.Build(ctx, cfg, logger, serve)
}

type crawlOptions struct {
	serve     bool
	seedsFile string
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var opts crawlOptions
	cmd := &cobra.Command{
		Use:   "crawl [seed URL...]",
		Short: "Crawl from the given seeds and archive every discovered page",
		Long: `Queues each seed for link discovery and archiving, then runs until both
queues drain, a phase budget expires, or the process is interrupted. With
--serve the control API can pause, resume, stop and extend the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context(), cmd.OutOrStdout(), args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "expose the control API while crawling")
	cmd.Flags().StringVar(&opts.seedsFile, "seeds-file", "", "file with one seed URL per line")
	return cmd
}

func runCrawl(ctx context.Context, out io.Writer, args []string, opts crawlOptions) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	seeds := append([]string(nil), args...)
	if opts.seedsFile != "" {
		fromFile, err := readSeeds(opts.seedsFile)
		if err != nil {
			return err
		}
		seeds = append(seeds, fromFile...)
	}
	if len(seeds) == 0 {
		return errors.New("at least one seed URL is required")
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := newApp(ctx, cfg, logger, opts.serve || cfg.Server.Enabled)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer app.Close(context.WithoutCancel(ctx))

	if accepted := app.Coordinator().AddInitialURLs(seeds); accepted == 0 {
		return errors.New("no valid seed URLs")
	}

	summary, err := app.Run(ctx)
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}
	logger.Info("Crawl command finished.", zap.Stringer("summary", summary))
	fmt.Fprintf(out, "Archived: %d\nSkipped: %d\nFailed: %d\nTotal links: %d\nElapsed: %s\n",
		summary.Archived, summary.Skipped, summary.Failed, summary.TotalLinksToArchive,
		coordinator.FormatDuration(summary.Elapsed))
	return nil
}

// readSeeds returns the non-blank lines of path, skipping # comments.
func readSeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seeds file: %w", err)
	}
	defer f.Close()

	var seeds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read seeds file: %w", err)
	}
	return seeds, nil
}
