// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// PollResult is the outcome of one poll cycle.
type PollResult struct {
	UnitID   string
	At       time.Time
	Duration time.Duration // wall time of the cycle

	Snapshot snapshot.Snapshot // zero unless Err is nil
	Err      error             // non-nil means the poll cycle failed
}
