// Package wayback is a small client for the Wayback Machine CDX search and
// Save Page Now endpoints.
package wayback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/logging"
)

var (
	// ErrRateLimited reports that the archive refused a save because of its
	// request limits.
	ErrRateLimited = errors.New("wayback rate limited")
	// ErrNoSnapshot reports that the archive holds no capture of the URL.
	ErrNoSnapshot = errors.New("no wayback snapshot")
)

const (
	// DefaultSaveEndpoint is the Save Page Now prefix.
	DefaultSaveEndpoint = "https://web.archive.org/save/"
	// DefaultCDXEndpoint is the CDX search API.
	DefaultCDXEndpoint = "https://web.archive.org/cdx/search/cdx"

	timestampLayout   = "20060102150405"
	rateLimitMarker   = "Save Page Now limits saving"
	maxInspectedBytes = 1 << 20
)

// Config holds client settings.
type Config struct {
	SaveEndpoint string
	CDXEndpoint  string
	AccessKey    string
	SecretKey    string
	// UserAgent is called per request; nil sends a fixed agent.
	UserAgent func() string
}

// Client implements crawler.ArchiveClient over HTTP.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.SaveEndpoint == "" {
		cfg.SaveEndpoint = DefaultSaveEndpoint
	}
	if !strings.HasSuffix(cfg.SaveEndpoint, "/") {
		cfg.SaveEndpoint += "/"
	}
	if cfg.CDXEndpoint == "" {
		cfg.CDXEndpoint = DefaultCDXEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient, logger: logging.OrNop(logger)}
}

// LatestSnapshot returns the capture time of the newest snapshot of target.
func (c *Client) LatestSnapshot(ctx context.Context, target string) (time.Time, error) {
	query := url.Values{}
	query.Set("url", target)
	query.Set("output", "json")
	query.Set("limit", "-1")
	endpoint := c.cfg.CDXEndpoint + "?" + query.Encode()

	req, err := c.newRequest(ctx, endpoint)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("cdx query %s: %w", target, err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return time.Time{}, fmt.Errorf("cdx query %s: %w", target, ErrRateLimited)
	case resp.StatusCode >= http.StatusBadRequest:
		return time.Time{}, fmt.Errorf("cdx query %s: unexpected status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxInspectedBytes))
	if err != nil {
		return time.Time{}, fmt.Errorf("read cdx response: %w", err)
	}
	return parseLatest(body)
}

// parseLatest reads the CDX JSON table: a header row followed by captures.
func parseLatest(body []byte) (time.Time, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return time.Time{}, ErrNoSnapshot
	}
	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return time.Time{}, fmt.Errorf("decode cdx response: %w", err)
	}
	if len(rows) < 2 {
		return time.Time{}, ErrNoSnapshot
	}
	column := 1
	for i, name := range rows[0] {
		if name == "timestamp" {
			column = i
			break
		}
	}
	last := rows[len(rows)-1]
	if column >= len(last) {
		return time.Time{}, fmt.Errorf("cdx row missing timestamp: %v", last)
	}
	ts, err := time.ParseInLocation(timestampLayout, last[column], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cdx timestamp %q: %w", last[column], err)
	}
	return ts, nil
}

// Save asks Save Page Now for a fresh capture of target.
func (c *Client) Save(ctx context.Context, target string) error {
	req, err := c.newRequest(ctx, c.cfg.SaveEndpoint+target)
	if err != nil {
		return err
	}
	if c.cfg.AccessKey != "" && c.cfg.SecretKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("LOW %s:%s", c.cfg.AccessKey, c.cfg.SecretKey))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("save %s: %w", target, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("save %s: %w", target, ErrRateLimited)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxInspectedBytes))
	if err != nil {
		return fmt.Errorf("read save response: %w", err)
	}
	if strings.Contains(string(body), rateLimitMarker) {
		return fmt.Errorf("save %s: %w", target, ErrRateLimited)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("save %s: unexpected status %d", target, resp.StatusCode)
	}

	c.logger.Debug("save accepted",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.String("content_location", resp.Header.Get("Content-Location")),
	)
	return nil
}

func (c *Client) newRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	ua := "wayback-crawler"
	if c.cfg.UserAgent != nil {
		ua = c.cfg.UserAgent()
	}
	req.Header.Set("User-Agent", ua)
	return req, nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxInspectedBytes))
	_ = body.Close()
}
