package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names the milestone an Event records.
type Stage string

// Supported stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageRunStopped    Stage = "RUN_STOPPED"
	StageURLQueued     Stage = "URL_QUEUED"
	StagePageCrawled   Stage = "PAGE_CRAWLED"
	StageDomainSkipped Stage = "DOMAIN_SKIPPED"
	StageArchiveDone   Stage = "ARCHIVE_DONE"
)

// Event is one progress milestone.
type Event struct {
	RunID  uuid.UUID `json:"run_id"`
	TS     time.Time `json:"ts"`
	Stage  Stage     `json:"stage"`
	Domain string    `json:"domain,omitempty"`
	URL    string    `json:"url,omitempty"`
	// Links counts newly queued links for PAGE_CRAWLED.
	Links int `json:"links,omitempty"`
	// Outcome is archived, skipped or failed for ARCHIVE_DONE.
	Outcome string        `json:"outcome,omitempty"`
	Dur     time.Duration `json:"dur,omitempty"`
	Note    string        `json:"note,omitempty"`
	// Totals are set on RUN_DONE and RUN_STOPPED.
	Archived int `json:"archived,omitempty"`
	Skipped  int `json:"skipped,omitempty"`
	Failed   int `json:"failed,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunStopped:
	case StageURLQueued, StagePageCrawled:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageDomainSkipped:
		if e.Domain == "" {
			return errors.New("domain skipped requires domain")
		}
	case StageArchiveDone:
		if e.URL == "" || e.Outcome == "" {
			return errors.New("archive done requires url and outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Attributes are the message attributes used when the event is published.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"run_id": e.RunID.String(),
		"stage":  string(e.Stage),
	}
}
