// Package coordinator schedules link discovery and archive submission. One
// control goroutine owns the queues, the visited and skipped-domain sets and
// the counters; bounded pools of worker goroutines report back to it.
package coordinator

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/archiver"
	"github.com/JakeFAU/wayback-crawler/internal/clock/system"
	"github.com/JakeFAU/wayback-crawler/internal/crawler"
	idgen "github.com/JakeFAU/wayback-crawler/internal/id/uuid"
	"github.com/JakeFAU/wayback-crawler/internal/logging"
	"github.com/JakeFAU/wayback-crawler/internal/progress"
	"github.com/JakeFAU/wayback-crawler/internal/storage"
	"github.com/JakeFAU/wayback-crawler/internal/urlscope"
)

var (
	// ErrRunning is returned by operations that need an idle coordinator.
	ErrRunning = errors.New("coordinator is running")
	// ErrInboxFull is returned when live URLs arrive faster than the loop drains them.
	ErrInboxFull = errors.New("live url inbox is full")
	// ErrPhaseClosed is returned for live URLs once a phase budget has expired.
	ErrPhaseClosed = errors.New("crawl or archive phase is closed")
)

const (
	defaultCrawlWorkers   = 4
	defaultArchiveWorkers = 2
	defaultPauseInterval  = 200 * time.Millisecond
	defaultWaitInterval   = 500 * time.Millisecond
	inboxSize             = 256
)

// Archiver submits one URL and reports its outcome.
type Archiver interface {
	Submit(ctx context.Context, url string) archiver.Outcome
}

// Clock tells time and sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Options tunes scheduling.
type Options struct {
	CrawlWorkers   int
	ArchiveWorkers int
	// Budgets are soft per-phase deadlines; zero disables them.
	CrawlBudget   time.Duration
	ArchiveBudget time.Duration
	DomainPolicy  ArchiveQueueDomainPolicy
	PauseInterval time.Duration
	WaitInterval  time.Duration
}

// Deps are the coordinator's collaborators. Pages and Archiver are required.
type Deps struct {
	Pages    crawler.PageFetcher
	Archiver Archiver
	Events   progress.Emitter
	Clock    Clock
	IDs      crawler.IDGenerator
	Reports  storage.BlobStore
	Logger   *zap.Logger
}

// Coordinator runs the crawl and archive pipelines.
type Coordinator struct {
	opts    Options
	pages   crawler.PageFetcher
	archive Archiver
	events  progress.Emitter
	clock   Clock
	ids     crawler.IDGenerator
	reports storage.BlobStore
	logger  *zap.Logger

	inbox    chan string
	paused   atomic.Bool
	stopping atomic.Bool

	mu             sync.RWMutex
	state          State
	running        bool
	cancel         context.CancelFunc
	runID          uuid.UUID
	startedAt      time.Time
	scopePath      string
	crawlQueue     []crawler.CrawlTask
	archiveQueue   []crawler.ArchiveTask
	visited        map[string]struct{}
	skipped        map[string]struct{}
	archived       int
	skippedCount   int
	failed         int
	totalLinks     int
	activeCrawls   int
	activeArchives int
	crawlEnabled   bool
	archiveEnabled bool
}

// New builds an idle coordinator.
func New(opts Options, deps Deps) *Coordinator {
	if opts.CrawlWorkers <= 0 {
		opts.CrawlWorkers = defaultCrawlWorkers
	}
	if opts.ArchiveWorkers <= 0 {
		opts.ArchiveWorkers = defaultArchiveWorkers
	}
	if opts.PauseInterval <= 0 {
		opts.PauseInterval = defaultPauseInterval
	}
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = defaultWaitInterval
	}
	if deps.Events == nil {
		deps.Events = progress.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = idgen.New()
	}
	return &Coordinator{
		opts:           opts,
		pages:          deps.Pages,
		archive:        deps.Archiver,
		events:         deps.Events,
		clock:          deps.Clock,
		ids:            deps.IDs,
		reports:        deps.Reports,
		logger:         logging.OrNop(deps.Logger),
		inbox:          make(chan string, inboxSize),
		visited:        make(map[string]struct{}),
		skipped:        make(map[string]struct{}),
		crawlEnabled:   true,
		archiveEnabled: true,
	}
}

// AddInitialURLs queues seeds and returns how many passed validation. Invalid
// URLs are logged and skipped; duplicates are dropped when they are applied.
func (c *Coordinator) AddInitialURLs(urls []string) int {
	accepted := 0
	for _, raw := range urls {
		if err := c.AddURLLive(raw); err != nil {
			c.logger.Warn("ignoring invalid seed", zap.String("url", raw), zap.Error(err))
			continue
		}
		accepted++
	}
	return accepted
}

// AddURLLive validates raw and queues it. While a run is active the URL is
// handed to the control goroutine; otherwise it is queued directly.
func (c *Coordinator) AddURLLive(raw string) error {
	if _, _, err := urlscope.Seed(raw); err != nil {
		return err
	}
	c.mu.Lock()
	if !c.running {
		c.enqueueSeedLocked(raw)
		c.mu.Unlock()
		return nil
	}
	accepting := c.acceptingLocked()
	c.mu.Unlock()
	if !accepting {
		return ErrPhaseClosed
	}
	select {
	case c.inbox <- raw:
		return nil
	default:
		return ErrInboxFull
	}
}

// Pause stops new submissions; in-flight work continues.
func (c *Coordinator) Pause() {
	c.paused.Store(true)
	c.mu.Lock()
	if c.state == StateRunning {
		c.state = StatePaused
	}
	c.mu.Unlock()
	c.logger.Info("crawl paused")
}

// Resume lifts a pause.
func (c *Coordinator) Resume() {
	c.paused.Store(false)
	c.mu.Lock()
	if c.state == StatePaused {
		c.state = StateRunning
	}
	c.mu.Unlock()
	c.logger.Info("crawl resumed")
}

// Stop cancels every outstanding task and ends the current run.
func (c *Coordinator) Stop() {
	c.stopping.Store(true)
	c.mu.Lock()
	if c.running {
		c.state = StateStopping
		if c.cancel != nil {
			c.cancel()
		}
	}
	c.mu.Unlock()
	c.logger.Info("crawl stop requested")
}

// ResetState clears queues, sets and counters for reuse.
func (c *Coordinator) ResetState() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunning
	}
	c.crawlQueue = nil
	c.archiveQueue = nil
	c.visited = make(map[string]struct{})
	c.skipped = make(map[string]struct{})
	c.archived, c.skippedCount, c.failed, c.totalLinks = 0, 0, 0, 0
	c.scopePath = ""
	c.runID = uuid.Nil
	c.crawlEnabled, c.archiveEnabled = true, true
	c.state = StateIdle
	c.paused.Store(false)
	c.stopping.Store(false)
	return nil
}

// IsCompleted reports whether the last run finished.
func (c *Coordinator) IsCompleted() bool {
	return c.State() == StateCompleted
}

// State returns the lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot copies the current progress.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{
		State:               c.state,
		ScopePath:           c.scopePath,
		CrawlQueue:          make([]string, 0, len(c.crawlQueue)),
		ArchiveQueue:        make([]string, 0, len(c.archiveQueue)),
		Visited:             len(c.visited),
		SkippedDomains:      sortedKeys(c.skipped),
		Archived:            c.archived,
		Skipped:             c.skippedCount,
		Failed:              c.failed,
		TotalLinksToArchive: c.totalLinks,
		ActiveCrawls:        c.activeCrawls,
		ActiveArchives:      c.activeArchives,
		CrawlEnabled:        c.crawlEnabled,
		ArchiveEnabled:      c.archiveEnabled,
	}
	if c.runID != uuid.Nil {
		snap.RunID = c.runID.String()
	}
	if c.running {
		snap.Elapsed = c.clock.Now().Sub(c.startedAt)
	}
	for _, task := range c.crawlQueue {
		snap.CrawlQueue = append(snap.CrawlQueue, task.URL)
	}
	for _, task := range c.archiveQueue {
		snap.ArchiveQueue = append(snap.ArchiveQueue, task.URL)
	}
	return snap
}

// enqueueSeedLocked queues a seed on both pipelines. The first accepted seed
// fixes the scope path. Callers hold c.mu.
func (c *Coordinator) enqueueSeedLocked(raw string) bool {
	normalized, root, err := urlscope.Seed(raw)
	if err != nil {
		c.logger.Warn("ignoring invalid url", zap.String("url", raw), zap.Error(err))
		return false
	}
	if _, seen := c.visited[normalized]; seen {
		return false
	}
	if c.running && !c.acceptingLocked() {
		c.logger.Debug("phase closed; dropping url", zap.String("url", normalized))
		return false
	}
	if c.scopePath == "" {
		c.scopePath = urlscope.ScopePath(normalized)
	}
	c.enqueueLocked(normalized, root)
	c.emitLocked(progress.Event{Stage: progress.StageURLQueued, Domain: root, URL: normalized, Note: "seed"})
	return true
}

// enqueueLocked marks normalized visited and queues it on both pipelines.
func (c *Coordinator) enqueueLocked(normalized, root string) {
	c.visited[normalized] = struct{}{}
	c.crawlQueue = append(c.crawlQueue, crawler.CrawlTask{
		URL:        normalized,
		RootDomain: root,
		ScopePath:  c.scopePath,
	})
	c.archiveQueue = append(c.archiveQueue, crawler.ArchiveTask{URL: normalized})
	c.totalLinks++
}

// acceptingLocked reports whether new links may join the run. A link is
// queued on both pipelines or neither, so either closed phase refuses it.
func (c *Coordinator) acceptingLocked() bool {
	return c.crawlEnabled && c.archiveEnabled
}

// emitLocked stamps the run id on evt. Events outside a run are not emitted.
// Callers hold c.mu.
func (c *Coordinator) emitLocked(evt progress.Event) {
	if c.runID == uuid.Nil {
		return
	}
	if !c.running && evt.Stage != progress.StageRunDone && evt.Stage != progress.StageRunStopped {
		return
	}
	evt.RunID = c.runID
	c.events.Emit(evt)
}

func rootOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return urlscope.RootDomain(u.Host)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
