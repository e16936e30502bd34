package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/archiver"
	"github.com/JakeFAU/wayback-crawler/internal/crawler"
	"github.com/JakeFAU/wayback-crawler/internal/metrics"
	"github.com/JakeFAU/wayback-crawler/internal/progress"
	"github.com/JakeFAU/wayback-crawler/internal/telemetry"
)

const (
	phaseCrawl   = "crawl"
	phaseArchive = "archive"

	reportTimeout = 30 * time.Second
)

type crawlResult struct {
	task  crawler.CrawlTask
	links []string
	err   error
	dur   time.Duration
}

type archiveResult struct {
	task    crawler.ArchiveTask
	outcome archiver.Outcome
	dur     time.Duration
}

// result carries exactly one of crawl or archive.
type result struct {
	crawl   *crawlResult
	archive *archiveResult
}

// Run drains both queues until they are empty and every worker is idle, a
// stop is requested, or ctx is canceled. Results of tasks still in flight at
// stop are discarded.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return Summary{}, ErrRunning
	}
	c.running = true
	c.cancel = cancel
	c.stopping.Store(false)
	c.crawlEnabled, c.archiveEnabled = true, true
	c.runID = c.newRunID()
	c.startedAt = c.clock.Now()
	c.state = StateRunning
	if c.paused.Load() {
		c.state = StatePaused
	}
	runID := c.runID
	c.emitLocked(progress.Event{Stage: progress.StageRunStart, Note: c.scopePath})
	for _, task := range c.crawlQueue {
		c.emitLocked(progress.Event{Stage: progress.StageURLQueued, Domain: task.RootDomain, URL: task.URL, Note: "seed"})
	}
	queued := len(c.crawlQueue)
	c.mu.Unlock()

	c.logger.Info("run started",
		zap.String("run_id", runID.String()),
		zap.Int("queued", queued),
		zap.Int("crawl_workers", c.opts.CrawlWorkers),
		zap.Int("archive_workers", c.opts.ArchiveWorkers),
	)

	results := make(chan result, c.opts.CrawlWorkers+c.opts.ArchiveWorkers)
	var wg sync.WaitGroup
	c.loop(runCtx, results, &wg)

	stopped := c.stopping.Load() || ctx.Err() != nil
	cancel()
	wg.Wait()

	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.activeCrawls, c.activeArchives = 0, 0
	c.state = StateCompleted
	c.drainInboxLocked()
	summary := Summary{
		RunID:               runID.String(),
		Archived:            c.archived,
		Skipped:             c.skippedCount,
		Failed:              c.failed,
		TotalLinksToArchive: c.totalLinks,
		Elapsed:             c.clock.Now().Sub(c.startedAt),
		Stopped:             stopped,
		SkippedDomains:      sortedKeys(c.skipped),
	}
	stage := progress.StageRunDone
	if stopped {
		stage = progress.StageRunStopped
	}
	c.emitLocked(progress.Event{
		Stage:    stage,
		Dur:      summary.Elapsed,
		Archived: summary.Archived,
		Skipped:  summary.Skipped,
		Failed:   summary.Failed,
	})
	c.mu.Unlock()

	c.logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("archived", summary.Archived),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("total_links", summary.TotalLinksToArchive),
		zap.Strings("skipped_domains", summary.SkippedDomains),
		zap.Bool("stopped", stopped),
		zap.String("elapsed", FormatDuration(summary.Elapsed)),
	)
	c.writeReport(context.WithoutCancel(ctx), summary)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (c *Coordinator) loop(ctx context.Context, results chan result, wg *sync.WaitGroup) {
	wait := time.NewTimer(c.opts.WaitInterval)
	defer wait.Stop()

	for {
		if c.stopping.Load() || ctx.Err() != nil {
			return
		}

		if c.paused.Load() {
			c.drainInbox()
			c.drainResults(ctx, results)
			if err := c.clock.Sleep(ctx, c.opts.PauseInterval); err != nil {
				return
			}
			continue
		}

		c.drainInbox()
		if done := c.schedule(ctx, results, wg); done {
			c.mu.Lock()
			c.state = StateStopping
			c.mu.Unlock()
			return
		}

		if !wait.Stop() {
			select {
			case <-wait.C:
			default:
			}
		}
		wait.Reset(c.opts.WaitInterval)
		select {
		case r := <-results:
			c.handle(ctx, r)
			c.drainResults(ctx, results)
		case raw := <-c.inbox:
			c.mu.Lock()
			c.enqueueSeedLocked(raw)
			c.mu.Unlock()
		case <-wait.C:
		case <-ctx.Done():
			return
		}
	}
}

// schedule applies phase budgets, dispatches queued work up to the worker
// caps and reports whether the run has nothing left to do.
func (c *Coordinator) schedule(ctx context.Context, results chan result, wg *sync.WaitGroup) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.clock.Now().Sub(c.startedAt)
	if c.crawlEnabled && c.opts.CrawlBudget > 0 && elapsed > c.opts.CrawlBudget {
		c.crawlEnabled = false
		c.logger.Warn("crawl budget exhausted; dropping crawl queue",
			zap.Duration("budget", c.opts.CrawlBudget),
			zap.Int("dropped", len(c.crawlQueue)),
		)
		c.crawlQueue = nil
	}
	if c.archiveEnabled && c.opts.ArchiveBudget > 0 && elapsed > c.opts.ArchiveBudget {
		c.archiveEnabled = false
		c.logger.Warn("archive budget exhausted; dropping archive queue",
			zap.Duration("budget", c.opts.ArchiveBudget),
			zap.Int("dropped", len(c.archiveQueue)),
		)
		c.archiveQueue = nil
	}

	for c.crawlEnabled && c.activeCrawls < c.opts.CrawlWorkers && len(c.crawlQueue) > 0 {
		task := c.crawlQueue[0]
		c.crawlQueue = c.crawlQueue[1:]
		if _, skip := c.skipped[task.RootDomain]; skip {
			c.logger.Debug("skipping crawl of unreachable domain", zap.String("url", task.URL))
			continue
		}
		c.activeCrawls++
		wg.Add(1)
		go c.crawlWorker(ctx, task, results, wg)
	}
	for c.archiveEnabled && c.activeArchives < c.opts.ArchiveWorkers && len(c.archiveQueue) > 0 {
		task := c.archiveQueue[0]
		c.archiveQueue = c.archiveQueue[1:]
		if c.opts.DomainPolicy == DropQueuedArchives {
			if _, skip := c.skipped[rootOf(task.URL)]; skip {
				continue
			}
		}
		c.activeArchives++
		wg.Add(1)
		go c.archiveWorker(ctx, task, results, wg)
	}
	metrics.SetQueueDepth(phaseCrawl, len(c.crawlQueue))
	metrics.SetQueueDepth(phaseArchive, len(c.archiveQueue))

	crawlDone := (!c.crawlEnabled || len(c.crawlQueue) == 0) && c.activeCrawls == 0
	archiveDone := (!c.archiveEnabled || len(c.archiveQueue) == 0) && c.activeArchives == 0
	return crawlDone && archiveDone
}

func (c *Coordinator) crawlWorker(ctx context.Context, task crawler.CrawlTask, results chan<- result, wg *sync.WaitGroup) {
	defer wg.Done()
	metrics.IncActiveWorkers(phaseCrawl)
	defer metrics.DecActiveWorkers(phaseCrawl)

	ctx, span := telemetry.Tracer().Start(ctx, "crawl.discover", trace.WithAttributes(
		attribute.String("url", task.URL),
		attribute.String("domain", task.RootDomain),
	))
	start := time.Now()
	res := &crawlResult{task: task}
	defer func() {
		if r := recover(); r != nil {
			res.links = nil
			res.err = fmt.Errorf("crawl %s panicked: %v", task.URL, r)
		}
		res.dur = time.Since(start)
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, "discovery failed")
		}
		span.SetAttributes(attribute.Int("links", len(res.links)))
		span.End()
		results <- result{crawl: res}
	}()
	res.links, res.err = c.pages.Discover(ctx, task.URL, task.ScopePath)
}

func (c *Coordinator) archiveWorker(ctx context.Context, task crawler.ArchiveTask, results chan<- result, wg *sync.WaitGroup) {
	defer wg.Done()
	metrics.IncActiveWorkers(phaseArchive)
	defer metrics.DecActiveWorkers(phaseArchive)

	ctx, span := telemetry.Tracer().Start(ctx, "archive.submit", trace.WithAttributes(
		attribute.String("url", task.URL),
	))
	start := time.Now()
	res := &archiveResult{task: task, outcome: archiver.OutcomeFailed}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("archive worker panicked", zap.String("url", task.URL), zap.Any("panic", r))
			res.outcome = archiver.OutcomeFailed
		}
		res.dur = time.Since(start)
		span.SetAttributes(attribute.String("outcome", res.outcome.String()))
		if res.outcome == archiver.OutcomeFailed {
			span.SetStatus(codes.Error, "archive failed")
		}
		span.End()
		results <- result{archive: res}
	}()
	res.outcome = c.archive.Submit(ctx, task.URL)
}

// handle folds a finished task into the run state. Results that arrive after
// a stop or cancellation only release their worker slot.
func (c *Coordinator) handle(ctx context.Context, r result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	discard := c.stopping.Load() || ctx.Err() != nil
	switch {
	case r.crawl != nil:
		c.activeCrawls--
		if !discard {
			c.handleCrawlLocked(r.crawl)
		}
	case r.archive != nil:
		c.activeArchives--
		if !discard {
			c.handleArchiveLocked(r.archive)
		}
	}
}

func (c *Coordinator) handleCrawlLocked(res *crawlResult) {
	task := res.task
	if res.err != nil {
		switch {
		case errors.Is(res.err, context.Canceled):
			// run is winding down
		case errors.Is(res.err, crawler.ErrDomainUnreachable):
			c.skipDomainLocked(task.RootDomain, res.err)
		default:
			c.logger.Warn("crawl failed", zap.String("url", task.URL), zap.Error(res.err))
		}
		return
	}
	if c.paused.Load() || !c.acceptingLocked() {
		c.logger.Debug("dropping discoveries",
			zap.String("url", task.URL),
			zap.Int("links", len(res.links)),
		)
		return
	}

	added := 0
	for _, link := range res.links {
		if _, seen := c.visited[link]; seen {
			continue
		}
		root := rootOf(link)
		c.enqueueLocked(link, root)
		c.emitLocked(progress.Event{Stage: progress.StageURLQueued, Domain: root, URL: link})
		added++
	}
	c.emitLocked(progress.Event{
		Stage:  progress.StagePageCrawled,
		Domain: task.RootDomain,
		URL:    task.URL,
		Links:  added,
		Dur:    res.dur,
	})
	c.logger.Debug("page crawled",
		zap.String("url", task.URL),
		zap.Int("found", len(res.links)),
		zap.Int("queued", added),
	)
}

func (c *Coordinator) skipDomainLocked(domain string, cause error) {
	if _, ok := c.skipped[domain]; ok {
		return
	}
	c.skipped[domain] = struct{}{}
	metrics.ObserveSkippedDomain()
	c.logger.Warn("abandoning unreachable domain", zap.String("domain", domain), zap.Error(cause))
	c.emitLocked(progress.Event{Stage: progress.StageDomainSkipped, Domain: domain, Note: cause.Error()})

	if c.opts.DomainPolicy != DropQueuedArchives {
		return
	}
	kept := c.archiveQueue[:0]
	for _, task := range c.archiveQueue {
		if rootOf(task.URL) != domain {
			kept = append(kept, task)
		}
	}
	c.archiveQueue = kept
}

func (c *Coordinator) handleArchiveLocked(res *archiveResult) {
	switch res.outcome {
	case archiver.OutcomeArchived:
		c.archived++
	case archiver.OutcomeSkipped:
		c.skippedCount++
	default:
		c.failed++
	}
	c.emitLocked(progress.Event{
		Stage:   progress.StageArchiveDone,
		Domain:  rootOf(res.task.URL),
		URL:     res.task.URL,
		Outcome: res.outcome.String(),
		Dur:     res.dur,
	})
}

func (c *Coordinator) drainResults(ctx context.Context, results <-chan result) {
	for {
		select {
		case r := <-results:
			c.handle(ctx, r)
		default:
			return
		}
	}
}

func (c *Coordinator) drainInbox() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainInboxLocked()
}

func (c *Coordinator) drainInboxLocked() {
	for {
		select {
		case raw := <-c.inbox:
			c.enqueueSeedLocked(raw)
		default:
			return
		}
	}
}

func (c *Coordinator) newRunID() uuid.UUID {
	raw, err := c.ids.NewID()
	if err == nil {
		if id, parseErr := uuid.Parse(raw); parseErr == nil {
			return id
		}
	}
	c.logger.Warn("run id generator failed; using random id", zap.Error(err))
	return uuid.New()
}

func (c *Coordinator) writeReport(ctx context.Context, summary Summary) {
	if c.reports == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		c.logger.Error("failed to encode run report", zap.Error(err))
		return
	}
	uri, err := c.reports.PutObject(ctx, "runs/"+summary.RunID+".json", "application/json", bytes.NewReader(payload))
	if err != nil {
		c.logger.Error("failed to write run report", zap.String("run_id", summary.RunID), zap.Error(err))
		return
	}
	c.logger.Info("run report written", zap.String("uri", uri))
}
