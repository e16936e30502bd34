// Package archiver decides whether discovered URLs need a fresh capture and
// submits them to the archive under a process-wide pacer.
package archiver

import (
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-crawler/internal/logging"
)

// Action selects how archive candidates are treated.
type Action int

const (
	// ActionNormal archives a URL only when its newest capture is older than
	// the cooldown.
	ActionNormal Action = iota
	// ActionArchiveAll archives every URL.
	ActionArchiveAll
	// ActionSkipAll never archives.
	ActionSkipAll
)

func (a Action) String() string {
	switch a {
	case ActionArchiveAll:
		return "archive_all"
	case ActionSkipAll:
		return "skip_all"
	default:
		return "normal"
	}
}

// ParseAction maps a configured value to an Action. Unknown values fall back
// to ActionNormal with a warning.
func ParseAction(raw string, logger *zap.Logger) Action {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "n", "normal":
		return ActionNormal
	case "a", "archive_all", "all":
		return ActionArchiveAll
	case "s", "skip_all", "skip":
		return ActionSkipAll
	default:
		logging.OrNop(logger).Warn("unknown archive action, using normal", zap.String("action", raw))
		return ActionNormal
	}
}

// Outcome is the terminal result of one archive task.
type Outcome int

const (
	// OutcomeArchived means a save request succeeded.
	OutcomeArchived Outcome = iota
	// OutcomeSkipped means no save was needed.
	OutcomeSkipped
	// OutcomeFailed means every attempt failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeArchived:
		return "archived"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}
