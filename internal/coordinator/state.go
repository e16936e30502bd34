package coordinator

import (
	"fmt"
	"strings"
	"time"
)

// State is the coordinator lifecycle state.
type State int

// Lifecycle states. Running and Paused alternate; Stopping leads to Completed.
const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopping
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ArchiveQueueDomainPolicy decides what happens to queued archive tasks when
// their root domain is abandoned.
type ArchiveQueueDomainPolicy int

const (
	// KeepQueuedArchives leaves the archive queue untouched.
	KeepQueuedArchives ArchiveQueueDomainPolicy = iota
	// DropQueuedArchives removes queued archive tasks of the abandoned domain.
	DropQueuedArchives
)

// Summary reports the totals of one run.
type Summary struct {
	RunID               string        `json:"run_id"`
	Archived            int           `json:"archived"`
	Skipped             int           `json:"skipped"`
	Failed              int           `json:"failed"`
	TotalLinksToArchive int           `json:"total_links_to_archive"`
	Elapsed             time.Duration `json:"elapsed_ns"`
	Stopped             bool          `json:"stopped"`
	SkippedDomains      []string      `json:"skipped_domains,omitempty"`
}

func (s Summary) String() string {
	return fmt.Sprintf("archived=%d skipped=%d failed=%d total=%d elapsed=%s",
		s.Archived, s.Skipped, s.Failed, s.TotalLinksToArchive, FormatDuration(s.Elapsed))
}

// FormatDuration renders d as "1d 2h 3m 4.00s", omitting leading zero units.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if days > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if days > 0 || hours > 0 || minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%.2fs", d.Seconds()))
	return strings.Join(parts, " ")
}

// Snapshot is a read-only copy of coordinator progress.
type Snapshot struct {
	RunID               string        `json:"run_id,omitempty"`
	State               State         `json:"state"`
	ScopePath           string        `json:"scope_path,omitempty"`
	CrawlQueue          []string      `json:"crawl_queue"`
	ArchiveQueue        []string      `json:"archive_queue"`
	Visited             int           `json:"visited"`
	SkippedDomains      []string      `json:"skipped_domains"`
	Archived            int           `json:"archived"`
	Skipped             int           `json:"skipped"`
	Failed              int           `json:"failed"`
	TotalLinksToArchive int           `json:"total_links_to_archive"`
	ActiveCrawls        int           `json:"active_crawls"`
	ActiveArchives      int           `json:"active_archives"`
	CrawlEnabled        bool          `json:"crawl_enabled"`
	ArchiveEnabled      bool          `json:"archive_enabled"`
	Elapsed             time.Duration `json:"elapsed_ns"`
}
