// internal/status/tracker.go
package status

import (
	"errors"
	"math"

	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/session"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// Tracker is the per-device health state machine.
// It is owned by one goroutine and is not safe for concurrent use.
// Every method reports whether the status changed and needs delivery.
type Tracker struct {
	snap Snapshot
}

// NewTracker starts in HealthUnknown with unknown modes.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Health: HealthUnknown}}
}

// Current returns the status as last computed.
func (t *Tracker) Current() Snapshot { return t.snap }

// Observe folds one poll outcome into the status.
// Modes are only updated from successful snapshots; a failed cycle keeps the last known ones.
func (t *Tracker) Observe(snap snapshot.Snapshot, err error) (Snapshot, bool) {
	prev := t.snap

	if err == nil {
		// Recovery / OK
		t.snap.Health = HealthOK
		t.snap.LastErrorCode = 0
		t.snap.SecondsInError = 0
		t.snap.FrontPanelMode = modeSlot(snap.FrontPanelMode())
		t.snap.RemotePanelMode = modeSlot(snap.RemotePanelMode())
		t.snap.ActualMode = modeSlot(snap.ActualMode())
	} else {
		t.snap.Health = healthOf(err)
		t.snap.LastErrorCode = ErrorCode(err)
		// seconds_in_error increments on Tick only
	}

	return t.snap, t.snap != prev
}

// Tick advances seconds_in_error while not OK. Call at 1 Hz.
func (t *Tracker) Tick() (Snapshot, bool) {
	if t.snap.Health == HealthOK || t.snap.SecondsInError == math.MaxUint16 {
		return t.snap, false
	}
	t.snap.SecondsInError++
	return t.snap, true
}

func healthOf(err error) uint16 {
	var fault *session.CommunicationFault
	switch {
	case errors.As(err, &fault):
		return HealthFault
	case errors.Is(err, session.ErrDeviceAsleep):
		return HealthAsleep
	default:
		return HealthError
	}
}

func modeSlot(m mode.Mode, ok bool) uint16 {
	if !ok {
		return ModeUnknown
	}
	return ModeCode(m)
}

// ErrorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns 1 (generic error).
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}

	return 1
}
