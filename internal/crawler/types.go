package crawler

import (
	"net/http"
	"time"
)

// CrawlTask is one page to discover links on. Every task of a run carries the
// same ScopePath, fixed by the first accepted seed.
type CrawlTask struct {
	URL        string `json:"url"`
	RootDomain string `json:"root_domain"`
	ScopePath  string `json:"scope_path"`
}

// ArchiveTask is one normalized URL to submit to the archive.
type ArchiveTask struct {
	URL string `json:"url"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL       string
	UserAgent string
	Headers   http.Header
	// Settle is how long a rendering fetcher lets the page run scripts
	// before reading the DOM.
	Settle time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
