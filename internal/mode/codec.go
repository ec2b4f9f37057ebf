// internal/mode/codec.go
package mode

// Decoding is pure: no IO, no state. A missing register is the caller's
// "unknown", never a codec result.

// FrontPanelMode decodes the physical front switch.
// The front switch is strictly three-way; up wins over down.
func FrontPanelMode(reg SwitchRegister) Mode {
	if reg.Has(FrontSwitchUp) {
		return On
	}
	if reg.Has(FrontSwitchDown) {
		return ChargerOnly
	}
	return Off
}

// RemotePanelMode decodes the direct remote switch intent.
func RemotePanelMode(reg SwitchRegister) Mode {
	return fromPair(reg.Has(DirectRemoteSwitchCharge), reg.Has(DirectRemoteSwitchInvert))
}

// ActualMode decodes the switch state the device actually applied.
func ActualMode(reg SwitchRegister) Mode {
	return fromPair(reg.Has(SwitchCharge), reg.Has(SwitchInvert))
}

func fromPair(charge, invert bool) Mode {
	switch {
	case charge && invert:
		return On
	case charge:
		return ChargerOnly
	case invert:
		return InverterOnly
	default:
		return Off
	}
}

// EncodeCommand maps a mode to the remote panel command value.
// Only used on the override path.
func EncodeCommand(m Mode) SwitchState {
	switch m {
	case On:
		return StateOn
	case ChargerOnly:
		return StateChargerOnly
	case InverterOnly:
		return StateInverterOnly
	default:
		return StateOff
	}
}

// DirectRemoteBits returns the direct remote switch bits a device sets after
// accepting state. Used to emulate the device echo.
func DirectRemoteBits(state SwitchState) SwitchRegister {
	switch state {
	case StateOn:
		return DirectRemoteSwitchCharge | DirectRemoteSwitchInvert
	case StateChargerOnly:
		return DirectRemoteSwitchCharge
	case StateInverterOnly:
		return DirectRemoteSwitchInvert
	default:
		return 0
	}
}
