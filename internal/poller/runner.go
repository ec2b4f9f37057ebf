// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run polls once immediately, then on every tick and on every Refresh,
// emitting PollResult on out. One goroutine per device. No overlap. No retries.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	emit := func() bool {
		res := p.PollOnce(ctx)
		if res.Err != nil && ctx.Err() != nil {
			return false
		}
		select {
		case out <- res:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !emit() {
				return
			}
		case <-p.refresh:
			if !emit() {
				return
			}
			ticker.Reset(p.cfg.Interval)
		}
	}
}
