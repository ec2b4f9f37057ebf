// cmd/mk3bridge/pipeline.go
package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/metrics"
	"github.com/tamzrod/mk3-bridge/internal/poller"
	"github.com/tamzrod/mk3-bridge/internal/publish"
	"github.com/tamzrod/mk3-bridge/internal/status"
	"github.com/tamzrod/mk3-bridge/internal/writer"
)

const publishTimeout = 5 * time.Second

type namedSink struct {
	name string
	sink publish.Sink
}

// pipeline owns one device's status and delivers every poll result.
type pipeline struct {
	id     string
	poller *poller.Poller

	data          writer.Writer
	status        writer.StatusWriter
	statusEnabled bool
	sinks         []namedSink

	board   *status.Board
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// run is the runner-owned state loop plus the 1 Hz seconds ticker.
func (pl *pipeline) run(ctx context.Context, in <-chan poller.PollResult) {
	tracker := status.NewTracker()

	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Full block write on start (identity re-assert).
	pl.publishStatus(tracker.Current())

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-in:
			pl.metrics.ObservePoll(res)
			if res.Err != nil {
				pl.log.WithError(res.Err).Debug("poll failed")
			}

			// --- data delivery ---
			if err := pl.data.Write(res); err != nil {
				pl.log.WithError(err).Warn("data write failed")
				pl.metrics.SinkError(pl.id, "modbus")
			}

			for _, s := range pl.sinks {
				pctx, cancel := context.WithTimeout(ctx, publishTimeout)
				err := s.sink.Publish(pctx, res)
				cancel()
				if err != nil {
					pl.log.WithError(err).WithField("sink", s.name).Warn("publish failed")
					pl.metrics.SinkError(pl.id, s.name)
				}
			}

			// --- status update (device-level truth) ---
			if snap, changed := tracker.Observe(res.Snapshot, res.Err); changed {
				pl.publishStatus(snap)
			}

		case <-secTicker.C:
			if snap, changed := tracker.Tick(); changed {
				pl.publishStatus(snap)
			}
		}
	}
}

func (pl *pipeline) publishStatus(s status.Snapshot) {
	pl.board.Set(pl.id, s)
	pl.metrics.ObserveStatus(pl.id, s)

	if !pl.statusEnabled {
		return
	}
	if err := pl.status.WriteStatus(s); err != nil {
		pl.log.WithError(err).Warn("status write failed")
		pl.metrics.SinkError(pl.id, "status")
	}
}
