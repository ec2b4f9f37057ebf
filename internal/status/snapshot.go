// internal/status/snapshot.go
package status

import "github.com/tamzrod/mk3-bridge/internal/mode"

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16

	FrontPanelMode  uint16
	RemotePanelMode uint16
	ActualMode      uint16
}

// ModeCode maps a known mode to its slot value (mode + 1).
func ModeCode(m mode.Mode) uint16 {
	return uint16(m) + 1
}
