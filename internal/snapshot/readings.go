// internal/snapshot/readings.go
package snapshot

import (
	"fmt"
	"strings"

	"github.com/tamzrod/mk3-bridge/internal/mode"
)

// Kind identifies which request a reading answers.
type Kind uint8

const (
	KindAC Kind = iota + 1
	KindDC
	KindLED
	KindConfig
	KindVersion
	KindInterface
)

func (k Kind) String() string {
	switch k {
	case KindAC:
		return "ac"
	case KindDC:
		return "dc"
	case KindLED:
		return "led"
	case KindConfig:
		return "config"
	case KindVersion:
		return "version"
	case KindInterface:
		return "interface"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Reading is one decoded device reply.
// Readings are immutable once handed to the session.
type Reading interface {
	Kind() Kind
}

// DeviceState is the inverter/charger state reported with AC phase 1.
type DeviceState uint8

const (
	DeviceDown DeviceState = iota
	DeviceStartup
	DeviceOff
	DeviceSlave
	DeviceInvertFull
	DeviceInvertHalf
	DeviceInvertAES
	DevicePowerAssist
	DeviceBypass
	DeviceCharge
)

var deviceStateNames = [...]string{
	"down", "startup", "off", "slave", "invert_full",
	"invert_half", "invert_aes", "power_assist", "bypass", "charge",
}

func (s DeviceState) String() string {
	if int(s) < len(deviceStateNames) {
		return deviceStateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// ACReading is one AC phase.
type ACReading struct {
	Phase           int
	NumPhases       int // device-reported; informational only
	DeviceState     DeviceState
	MainsVoltage    float64
	MainsCurrent    float64
	InverterVoltage float64
	InverterCurrent float64
	MainsFrequency  float64
}

func (*ACReading) Kind() Kind { return KindAC }

// DCReading is the battery side.
type DCReading struct {
	Voltage            float64
	CurrentFromCharger float64
	CurrentToInverter  float64
	InverterFrequency  float64
}

func (*DCReading) Kind() Kind { return KindDC }

// LEDSet is the front panel indicator bitmask.
type LEDSet uint8

const (
	LEDMainsOn LEDSet = 1 << iota
	LEDAbsorption
	LEDBulk
	LEDFloat
	LEDInverterOn
	LEDOverload
	LEDLowBattery
	LEDTemperature
)

var ledNames = [...]string{
	"mains_on", "absorption", "bulk", "float",
	"inverter_on", "overload", "low_battery", "temperature",
}

// String lists the set indicators joined by '|', or "none".
func (s LEDSet) String() string {
	var names []string
	for i, name := range ledNames {
		if s&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// LEDReading holds lit and blinking indicators.
type LEDReading struct {
	On    LEDSet
	Blink LEDSet
}

func (*LEDReading) Kind() Kind { return KindLED }

// ConfigReading carries the switch register and current-limit bounds.
type ConfigReading struct {
	LastActiveACInput   int
	MinimumCurrentLimit float64
	MaximumCurrentLimit float64
	ActualCurrentLimit  float64
	Switch              mode.SwitchRegister
}

func (*ConfigReading) Kind() Kind { return KindConfig }

// VersionReading is pushed by the interface periodically, never requested.
type VersionReading struct {
	Version uint32
}

func (*VersionReading) Kind() Kind { return KindVersion }

// InterfaceFlags are the panel-detect/standby directive bits.
type InterfaceFlags uint8

const (
	FlagPanelDetect InterfaceFlags = 1 << 0
	FlagStandby     InterfaceFlags = 1 << 1
)

// InterfaceReading acknowledges an interface flags request.
type InterfaceReading struct {
	Flags InterfaceFlags
}

func (*InterfaceReading) Kind() Kind { return KindInterface }
