// internal/publish/publish.go
package publish

import (
	"context"
	"time"

	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/poller"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// Sink delivers poll results to an external system.
type Sink interface {
	Publish(ctx context.Context, res poller.PollResult) error
}

// Commander is the command surface exposed to subscribers.
// *command.Dispatcher satisfies it.
type Commander interface {
	SetRemotePanelState(ctx context.Context, id string, m mode.Mode, currentLimit *float64) error
	SetRemotePanelMode(ctx context.Context, id string, m mode.Mode) error
	SetRemotePanelCurrentLimit(ctx context.Context, id string, currentLimit float64) error
	SetStandby(id string, enabled bool) error
	Refresh(id string) error
}

// Record is the JSON envelope of one poll result.
type Record struct {
	Unit  string         `json:"unit"`
	At    time.Time      `json:"at"`
	OK    bool           `json:"ok"`
	Error string         `json:"error,omitempty"`
	State *snapshot.View `json:"state,omitempty"`
}

func recordOf(res poller.PollResult) Record {
	r := Record{Unit: res.UnitID, At: res.At, OK: res.Err == nil}
	if res.Err != nil {
		r.Error = res.Err.Error()
		return r
	}
	v := res.Snapshot.View()
	r.State = &v
	return r
}
