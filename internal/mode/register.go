// internal/mode/register.go
package mode

// SwitchRegister is the raw switch bitmask reported by the device.
// Bit positions are protocol-locked.
type SwitchRegister uint16

const (
	DirectRemoteSwitchCharge SwitchRegister = 1 << 0
	DirectRemoteSwitchInvert SwitchRegister = 1 << 1
	FrontSwitchUp            SwitchRegister = 1 << 2
	FrontSwitchDown          SwitchRegister = 1 << 3
	SwitchCharge             SwitchRegister = 1 << 4
	SwitchInvert             SwitchRegister = 1 << 5
	OnboardRemoteInvert      SwitchRegister = 1 << 6
	RemoteGeneratorSelected  SwitchRegister = 1 << 7
)

// Has reports whether every bit in mask is set.
func (r SwitchRegister) Has(mask SwitchRegister) bool {
	return r&mask == mask
}

// SwitchState is the device's command vocabulary for the remote panel.
type SwitchState uint8

const (
	StateChargerOnly  SwitchState = 1
	StateInverterOnly SwitchState = 2
	StateOn           SwitchState = 3
	StateOff          SwitchState = 4
)

func (s SwitchState) String() string {
	switch s {
	case StateChargerOnly:
		return "charger_only"
	case StateInverterOnly:
		return "inverter_only"
	case StateOn:
		return "on"
	case StateOff:
		return "off"
	default:
		return "unknown"
	}
}
