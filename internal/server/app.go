// Package server assembles the crawl-archive pipeline from configuration and
// runs it alongside the optional control API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/wayback-crawler/internal/api"
	"github.com/JakeFAU/wayback-crawler/internal/archiver"
	"github.com/JakeFAU/wayback-crawler/internal/clock/system"
	"github.com/JakeFAU/wayback-crawler/internal/config"
	"github.com/JakeFAU/wayback-crawler/internal/coordinator"
	"github.com/JakeFAU/wayback-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/wayback-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/wayback-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/wayback-crawler/internal/headless/detector"
	"github.com/JakeFAU/wayback-crawler/internal/id/uuid"
	"github.com/JakeFAU/wayback-crawler/internal/logging"
	"github.com/JakeFAU/wayback-crawler/internal/metrics"
	"github.com/JakeFAU/wayback-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/wayback-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/wayback-crawler/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/wayback-crawler/internal/publisher/pubsub"
	blobstorage "github.com/JakeFAU/wayback-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/wayback-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/wayback-crawler/internal/storage/local"
	pgstore "github.com/JakeFAU/wayback-crawler/internal/storage/postgres"
	"github.com/JakeFAU/wayback-crawler/internal/telemetry"
	"github.com/JakeFAU/wayback-crawler/internal/urlscope"
	"github.com/JakeFAU/wayback-crawler/internal/wayback"
)

const (
	shutdownTimeout = 10 * time.Second
	serviceName     = "wayback-crawler"
)

// App owns every long-lived dependency of a crawl.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	coord        *coordinator.Coordinator
	apiServer    *api.Server
	progressHub  *progress.Hub
	headless     *headlessfetcher.Fetcher
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
	ledger       *pgstore.Ledger

	tracerShutdown func(context.Context) error
}

// Coordinator exposes the coordinator for seeding.
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coord
}

// Build wires the pipeline described by cfg. serve enables the control API.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, serve bool) (*App, error) {
	app := &App{cfg: cfg, logger: logging.OrNop(logger)}
	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	if err := app.setupLedger(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	reports, err := app.setupReports(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	emitter, err := app.setupProgress()
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	pages, err := app.setupCrawler()
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	policy := coordinator.KeepQueuedArchives
	if cfg.Archive.DropQueuedOnDomainSkip {
		policy = coordinator.DropQueuedArchives
	}
	app.coord = coordinator.New(coordinator.Options{
		CrawlWorkers:   cfg.CrawlWorkers(),
		ArchiveWorkers: cfg.ArchiveWorkers(),
		CrawlBudget:    cfg.CrawlBudget(),
		ArchiveBudget:  cfg.ArchiveBudget(),
		DomainPolicy:   policy,
	}, coordinator.Deps{
		Pages:    pages,
		Archiver: app.setupArchiver(),
		Events:   emitter,
		Clock:    system.New(),
		IDs:      uuid.New(),
		Reports:  reports,
		Logger:   app.logger.Named("coordinator"),
	})

	if serve {
		var runs *api.RunHandler
		if app.ledger != nil {
			runs = api.NewRunHandler(app.ledger, app.logger.Named("api"))
		}
		app.apiServer = api.NewServer(app.coord, runs, app.logger.Named("api"))
	}

	app.logger.Info("application built",
		zap.Int("crawl_workers", cfg.CrawlWorkers()),
		zap.Int("archive_workers", cfg.ArchiveWorkers()),
		zap.Bool("serve", serve),
		zap.Bool("ledger", app.ledger != nil),
		zap.Bool("reports", reports != nil),
	)
	return app, nil
}

// Run executes one crawl and, when the control API is enabled, serves it
// until the crawl ends or ctx is canceled.
func (a *App) Run(ctx context.Context) (coordinator.Summary, error) {
	g, gctx := errgroup.WithContext(ctx)
	runDone := make(chan struct{})

	var summary coordinator.Summary
	g.Go(func() error {
		defer close(runDone)
		var err error
		summary, err = a.coord.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("run coordinator: %w", err)
		}
		return nil
	})

	if a.apiServer != nil {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-runDone:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("server shutdown error", zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()
	return summary, err
}

// Close flushes progress sinks and releases clients.
func (a *App) Close(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}

func (a *App) setupLedger(ctx context.Context) error {
	if a.cfg.Ledger.DSN == "" {
		a.logger.Info("no ledger dsn configured; archive ledger disabled")
		return nil
	}
	ledger, err := pgstore.NewLedger(ctx, pgstore.LedgerConfig{
		DSN:   a.cfg.Ledger.DSN,
		Table: a.cfg.Ledger.Table,
	})
	if err != nil {
		return fmt.Errorf("ledger init failed: %w", err)
	}
	a.ledger = ledger
	a.logger.Info("archive ledger initialized", zap.String("table", a.cfg.Ledger.Table))
	return nil
}

func (a *App) setupReports(ctx context.Context) (blobstorage.BlobStore, error) {
	switch {
	case a.cfg.Report.GCSBucket != "":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Report.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs report store init failed: %w", err)
		}
		a.logger.Info("writing run reports to gcs", zap.String("bucket", a.cfg.Report.GCSBucket))
		return store, nil
	case a.cfg.Report.LocalDir != "":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Report.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local report store init failed: %w", err)
		}
		a.logger.Info("writing run reports locally", zap.String("dir", a.cfg.Report.LocalDir))
		return store, nil
	default:
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.Topic == "" {
		a.logger.Info("no pub/sub topic configured; progress publishing disabled")
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher = gcppublisher.New(client)
	a.logger.Info("pub/sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func (a *App) setupProgress() (progress.Emitter, error) {
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	}
	if a.ledger != nil {
		sinkList = append(sinkList, progresssinks.NewLedgerSink(a.ledger, a.logger.Named("progress_ledger")))
	}
	if a.publisher != nil {
		sinkList = append(sinkList, progresssinks.NewPublishSink(a.publisher, a.cfg.PubSub.Topic, a.cfg.PubSub.RunEventsOnly))
	}
	a.progressHub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress_hub")}, sinkList...)
	a.logger.Info("progress hub initialized", zap.Int("sinks", len(sinkList)))
	return a.progressHub, nil
}

func (a *App) setupCrawler() (*crawler.Crawler, error) {
	light, err := collyfetcher.New(collyfetcher.Config{
		Timeout: a.cfg.RequestTimeout(),
		Proxies: a.cfg.Proxies,
	})
	if err != nil {
		return nil, fmt.Errorf("light fetcher init failed: %w", err)
	}
	for _, p := range a.cfg.Proxies {
		a.logger.Debug("proxy configured", logging.Proxy(p))
	}

	var headless crawler.Fetcher
	if a.cfg.Crawl.HeadlessEnabled {
		fetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Crawl.HeadlessMaxParallel,
			NavigationTimeout: a.cfg.RequestTimeout(),
			Proxies:           a.cfg.Proxies,
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed; continuing with light fetches only", zap.Error(err))
		} else {
			a.headless = fetcher
			headless = fetcher
		}
	}

	var limiter crawler.DomainLimiter
	if a.cfg.Crawl.PerDomainRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{DefaultRPS: a.cfg.Crawl.PerDomainRPS, DefaultBurst: 1})
		a.logger.Info("per-domain rate limiter enabled", zap.Float64("rps", a.cfg.Crawl.PerDomainRPS))
	}

	minDelay, maxDelay := a.cfg.LinkSearchDelay()
	return crawler.New(crawler.Config{
		Policy: urlscope.Policy{
			AllowExternal:     a.cfg.Crawl.AllowExternalLinks,
			RestrictSideways:  a.cfg.Crawl.RestrictSideways,
			RestrictBackwards: a.cfg.Crawl.RestrictBackwards,
		},
		Retries:  a.cfg.Retries,
		MinDelay: minDelay,
		MaxDelay: maxDelay,
	}, light, headless, detector.NewHeuristic(0), detector.NewChallenge(), limiter, a.logger.Named("crawler")), nil
}

func (a *App) setupArchiver() *archiver.Archiver {
	client := wayback.New(wayback.Config{
		SaveEndpoint: a.cfg.Archive.Endpoint,
		CDXEndpoint:  a.cfg.Archive.CDXEndpoint,
		AccessKey:    a.cfg.Archive.AccessKey,
		SecretKey:    a.cfg.Archive.SecretKey,
		UserAgent:    crawler.RandomUserAgent,
	}, &http.Client{
		Timeout:   a.cfg.SaveTimeout() + 30*time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, a.logger.Named("wayback"))

	clock := system.New()
	action := archiver.ParseAction(a.cfg.Archive.DefaultAction, a.logger)
	return archiver.New(archiver.Config{
		Action:      action,
		Cooldown:    a.cfg.ArchiveCooldown(),
		Retries:     a.cfg.Retries,
		SaveTimeout: a.cfg.SaveTimeout(),
		Penalty:     a.cfg.RateLimitPenalty(),
	}, client, archiver.NewPacer(a.cfg.MinArchiveInterval(), clock), clock, a.logger.Named("archiver"))
}
