package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/logging"
	"github.com/JakeFAU/wayback-crawler/internal/metrics"
	"github.com/JakeFAU/wayback-crawler/internal/urlscope"
)

// ErrDomainUnreachable marks a page whose host refused the connection. The
// caller should abandon the whole root domain.
var ErrDomainUnreachable = errors.New("domain unreachable")

// errNoFetcher is returned when neither fetch path is configured.
var errNoFetcher = errors.New("no fetcher configured")

// Config controls link discovery.
type Config struct {
	Policy   urlscope.Policy
	Retries  int
	MinDelay time.Duration
	MaxDelay time.Duration
	// RetryUnit scales the retry jitter windows.
	RetryUnit        time.Duration
	ChallengeMinWait time.Duration
	ChallengeMaxWait time.Duration
}

// challengeGate serializes bot-challenge waits across every crawler.
var challengeGate = make(chan struct{}, 1)

// Crawler discovers in-scope links on a page. It tries the light fetcher
// first and falls back to the headless one on errors, error statuses, script
// shells and empty results.
type Crawler struct {
	cfg        Config
	light      Fetcher
	headless   Fetcher
	promoter   HeadlessDetector
	challenges ChallengeDetector
	limiter    DomainLimiter
	retry      JitterPolicy
	logger     *zap.Logger
}

// New wires a Crawler. headless, promoter, challenges and limiter may be nil.
func New(
	cfg Config,
	light Fetcher,
	headless Fetcher,
	promoter HeadlessDetector,
	challenges ChallengeDetector,
	limiter DomainLimiter,
	logger *zap.Logger,
) *Crawler {
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.ChallengeMinWait <= 0 && cfg.ChallengeMaxWait <= 0 {
		cfg.ChallengeMinWait, cfg.ChallengeMaxWait = 5*time.Second, 10*time.Second
	}
	return &Crawler{
		cfg:        cfg,
		light:      light,
		headless:   headless,
		promoter:   promoter,
		challenges: challenges,
		limiter:    limiter,
		retry:      NewJitterPolicy(cfg.RetryUnit),
		logger:     logging.OrNop(logger),
	}
}

// Discover returns the normalized, in-scope links found on pageURL. A refused
// connection returns an error wrapping ErrDomainUnreachable without retrying.
// Exhausted retries return no links and a nil error.
func (c *Crawler) Discover(ctx context.Context, pageURL, scopePath string) ([]string, error) {
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		links, headless, err := c.discoverOnce(ctx, pageURL, scopePath)
		if err == nil {
			return links, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if IsConnectionRefused(err) {
			c.logger.Warn("Connection refused; abandoning domain",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			c.forgetDomain(pageURL)
			return nil, fmt.Errorf("crawl %s: %w: %w", pageURL, ErrDomainUnreachable, err)
		}
		if errors.Is(err, errNoFetcher) {
			return nil, err
		}
		c.logger.Warn("Discovery attempt failed",
			zap.String("url", pageURL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.Retries),
			zap.Bool("headless", headless),
			zap.Error(err),
		)
		if attempt < c.cfg.Retries {
			if err := Sleep(ctx, c.retry.Backoff(err, headless)); err != nil {
				return nil, err
			}
		}
	}
	c.logger.Error("Discovery retries exhausted", zap.String("url", pageURL))
	return nil, nil
}

func (c *Crawler) discoverOnce(ctx context.Context, pageURL, scopePath string) ([]string, bool, error) {
	if c.light == nil && c.headless == nil {
		return nil, false, errNoFetcher
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, pageURL); err != nil {
			return nil, false, err
		}
	}
	userAgent := RandomUserAgent()

	if c.light != nil {
		links, done, err := c.tryLight(ctx, pageURL, scopePath, userAgent)
		if done || c.headless == nil {
			return links, false, err
		}
	}

	links, err := c.render(ctx, pageURL, scopePath, userAgent)
	return links, true, err
}

// tryLight reports done=true when its result is final and no render is needed.
func (c *Crawler) tryLight(ctx context.Context, pageURL, scopePath, userAgent string) ([]string, bool, error) {
	resp, err := c.light.Fetch(ctx, FetchRequest{URL: pageURL, UserAgent: userAgent})
	switch {
	case err != nil:
		metrics.ObservePage(pageURL, false, "error")
		if IsConnectionRefused(err) || ctx.Err() != nil {
			return nil, true, err
		}
		c.logger.Debug("Light fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil, false, err
	case resp.StatusCode >= 400:
		metrics.ObservePage(pageURL, false, strconv.Itoa(resp.StatusCode))
		return nil, false, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	metrics.ObservePage(pageURL, false, strconv.Itoa(resp.StatusCode))
	if c.promoter != nil && c.promoter.ShouldPromote(resp) && c.headless != nil {
		c.logger.Debug("Page needs rendering", zap.String("url", pageURL))
		return nil, false, nil
	}
	links, err := c.extract(resp, pageURL, scopePath)
	if err != nil {
		return nil, false, err
	}
	if len(links) == 0 && c.headless != nil {
		return nil, false, nil
	}
	return links, true, nil
}

func (c *Crawler) render(ctx context.Context, pageURL, scopePath, userAgent string) ([]string, error) {
	request := FetchRequest{
		URL:       pageURL,
		UserAgent: userAgent,
		Settle:    Between(c.cfg.MinDelay, c.cfg.MaxDelay),
	}
	resp, err := c.headless.Fetch(ctx, request)
	if err != nil {
		metrics.ObservePage(pageURL, true, "error")
		return nil, err
	}
	metrics.ObservePage(pageURL, true, strconv.Itoa(resp.StatusCode))

	if c.challenges != nil && c.challenges.IsChallenge(resp) {
		c.logger.Warn("Bot challenge detected; waiting before continuing", zap.String("url", pageURL))
		if err := c.waitOutChallenge(ctx); err != nil {
			return nil, err
		}
		request.Settle = 0
		if retried, err := c.headless.Fetch(ctx, request); err == nil {
			resp = retried
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return c.extract(resp, pageURL, scopePath)
}

func (c *Crawler) waitOutChallenge(ctx context.Context) error {
	select {
	case challengeGate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-challengeGate }()
	return Sleep(ctx, Between(c.cfg.ChallengeMinWait, c.cfg.ChallengeMaxWait))
}

func (c *Crawler) extract(resp FetchResponse, pageURL, scopePath string) ([]string, error) {
	hrefs, err := ExtractLinks(resp.Body)
	if err != nil {
		return nil, err
	}
	base := resp.URL
	if base == "" {
		base = pageURL
	}
	return c.cfg.Policy.Filter(base, hrefs, scopePath), nil
}

func (c *Crawler) forgetDomain(pageURL string) {
	if c.limiter == nil {
		return
	}
	if u, err := url.Parse(pageURL); err == nil {
		c.limiter.Forget(urlscope.RootDomain(u.Host))
	}
}

// IsConnectionRefused reports whether err means the host actively refused
// the connection, either as a socket error or a browser error page.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "net::err_connection_refused") ||
		strings.Contains(msg, "connection refused")
}
