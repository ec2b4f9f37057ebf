// internal/snapshot/snapshot.go
package snapshot

import (
	"time"

	"github.com/tamzrod/mk3-bridge/internal/mode"
)

// MaxACPhases is the most phases the device family supports.
const MaxACPhases = 4

// Snapshot is one consistent view of the device produced by a poll cycle.
// It is a value: readings it points at are never mutated after construction.
type Snapshot struct {
	At      time.Time
	AC      [MaxACPhases]*ACReading
	DC      *DCReading
	LED     *LEDReading
	Config  *ConfigReading
	Version *VersionReading
}

// Empty reports whether the snapshot carries no readings at all.
func (s Snapshot) Empty() bool {
	for _, ac := range s.AC {
		if ac != nil {
			return false
		}
	}
	return s.DC == nil && s.LED == nil && s.Config == nil && s.Version == nil
}

// Phase returns the reading for a 1-based phase, or nil.
func (s Snapshot) Phase(phase int) *ACReading {
	if phase < 1 || phase > MaxACPhases {
		return nil
	}
	return s.AC[phase-1]
}

// FrontPanelMode is unknown (false) until a config reading exists.
func (s Snapshot) FrontPanelMode() (mode.Mode, bool) {
	if s.Config == nil {
		return 0, false
	}
	return mode.FrontPanelMode(s.Config.Switch), true
}

func (s Snapshot) RemotePanelMode() (mode.Mode, bool) {
	if s.Config == nil {
		return 0, false
	}
	return mode.RemotePanelMode(s.Config.Switch), true
}

func (s Snapshot) ActualMode() (mode.Mode, bool) {
	if s.Config == nil {
		return 0, false
	}
	return mode.ActualMode(s.Config.Switch), true
}

// DeviceState comes from phase 1 only.
func (s Snapshot) DeviceState() (DeviceState, bool) {
	if s.AC[0] == nil {
		return 0, false
	}
	return s.AC[0].DeviceState, true
}
