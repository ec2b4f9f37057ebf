// internal/snapshot/registers.go
package snapshot

import "math"

// Data block layout (holding registers, relative to the target address).
// Signed quantities are two's complement int16. Scaling is fixed.
const (
	RegPresence          = 0 // bit0..3 AC1..AC4, bit4 DC, bit5 LED, bit6 Config, bit7 Version
	RegDeviceState       = 1 // DeviceState, NotAvailable if phase 1 missing
	RegBatteryVoltage    = 2 // V x100
	RegBatteryInCurrent  = 3 // A x10, signed
	RegBatteryOutCurrent = 4 // A x10, signed
	RegOutputFrequency   = 5 // Hz x100
	RegInputFrequency    = 6 // Hz x100, phase 1
	RegLEDOn             = 7
	RegLEDBlink          = 8
	RegCurrentLimit      = 9  // A x10
	RegCurrentLimitMin   = 10 // A x10
	RegCurrentLimitMax   = 11 // A x10
	RegSwitchRegister    = 12 // raw
	RegLastActiveInput   = 13
	RegVersionHigh       = 14
	RegVersionLow        = 15

	// RegPhaseBase is the first per-phase register; each phase owns RegsPerPhase.
	// Order within a phase: mains V x10, mains A x10, inverter V x10, inverter A x10.
	RegPhaseBase = 16
	RegsPerPhase = 4

	// DataBlockRegisters is the total data block size.
	DataBlockRegisters = RegPhaseBase + MaxACPhases*RegsPerPhase
)

// NotAvailable is written to RegDeviceState when phase 1 was not read.
const NotAvailable uint16 = 0xFFFF

// Registers encodes the snapshot into the fixed data block.
// Registers of missing readings are zero; the presence mask tells them apart.
func (s Snapshot) Registers() []uint16 {
	regs := make([]uint16, DataBlockRegisters)
	regs[RegDeviceState] = NotAvailable

	var present uint16

	for i, ac := range s.AC {
		if ac == nil {
			continue
		}
		present |= 1 << i
		base := RegPhaseBase + i*RegsPerPhase
		regs[base+0] = unsigned(ac.MainsVoltage, 10)
		regs[base+1] = signed(ac.MainsCurrent, 10)
		regs[base+2] = unsigned(ac.InverterVoltage, 10)
		regs[base+3] = signed(ac.InverterCurrent, 10)
	}

	if ac := s.AC[0]; ac != nil {
		regs[RegDeviceState] = uint16(ac.DeviceState)
		regs[RegInputFrequency] = unsigned(ac.MainsFrequency, 100)
	}

	if dc := s.DC; dc != nil {
		present |= 1 << 4
		regs[RegBatteryVoltage] = unsigned(dc.Voltage, 100)
		regs[RegBatteryInCurrent] = signed(dc.CurrentFromCharger, 10)
		regs[RegBatteryOutCurrent] = signed(dc.CurrentToInverter, 10)
		regs[RegOutputFrequency] = unsigned(dc.InverterFrequency, 100)
	}

	if led := s.LED; led != nil {
		present |= 1 << 5
		regs[RegLEDOn] = uint16(led.On)
		regs[RegLEDBlink] = uint16(led.Blink)
	}

	if c := s.Config; c != nil {
		present |= 1 << 6
		regs[RegCurrentLimit] = unsigned(c.ActualCurrentLimit, 10)
		regs[RegCurrentLimitMin] = unsigned(c.MinimumCurrentLimit, 10)
		regs[RegCurrentLimitMax] = unsigned(c.MaximumCurrentLimit, 10)
		regs[RegSwitchRegister] = uint16(c.Switch)
		regs[RegLastActiveInput] = uint16(c.LastActiveACInput)
	}

	if v := s.Version; v != nil {
		present |= 1 << 7
		regs[RegVersionHigh] = uint16(v.Version >> 16)
		regs[RegVersionLow] = uint16(v.Version)
	}

	regs[RegPresence] = present
	return regs
}

func unsigned(v, scale float64) uint16 {
	x := math.Round(v * scale)
	switch {
	case x < 0:
		return 0
	case x > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(x)
}

func signed(v, scale float64) uint16 {
	x := math.Round(v * scale)
	switch {
	case x < math.MinInt16:
		x = math.MinInt16
	case x > math.MaxInt16:
		x = math.MaxInt16
	}
	return uint16(int16(x))
}
