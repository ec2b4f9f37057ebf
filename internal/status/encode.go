// internal/status/encode.go
package status

// Encode converts a Snapshot into the live slots of a device status block.
// The device name slots are left zero; the writer owns them.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	regs[SlotFrontPanelMode] = s.FrontPanelMode
	regs[SlotRemotePanelMode] = s.RemotePanelMode
	regs[SlotActualMode] = s.ActualMode

	return regs
}
