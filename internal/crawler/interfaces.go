package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a light fetch must be re-rendered.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// ChallengeDetector recognizes bot-challenge interstitials.
type ChallengeDetector interface {
	IsChallenge(page FetchResponse) bool
}

// DomainLimiter paces fetches per domain. Forget releases the state of a
// root domain that will not be fetched again.
type DomainLimiter interface {
	Wait(ctx context.Context, url string) error
	Forget(domain string)
}

// PageFetcher discovers in-scope links on a page.
type PageFetcher interface {
	Discover(ctx context.Context, pageURL, scopePath string) ([]string, error)
}

// ArchiveClient talks to the archiving service.
type ArchiveClient interface {
	// LatestSnapshot returns the capture time of the newest snapshot, or
	// wayback.ErrNoSnapshot when none exists.
	LatestSnapshot(ctx context.Context, url string) (time.Time, error)
	// Save requests a fresh capture. A rate-limit refusal is reported as
	// wayback.ErrRateLimited.
	Save(ctx context.Context, url string) error
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
