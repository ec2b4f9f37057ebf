// internal/snapshot/view.go
package snapshot

import (
	"time"

	"github.com/tamzrod/mk3-bridge/internal/mode"
)

// View is the flat JSON shape published to MQTT, Kafka and the HTTP API.
// Nil fields mean the reading was never obtained.
type View struct {
	At time.Time `json:"at"`

	Phases []PhaseView `json:"ac_phases"`

	ACInputCurrentLimit        *float64 `json:"ac_input_current_limit,omitempty"`
	ACInputCurrentLimitMaximum *float64 `json:"ac_input_current_limit_maximum,omitempty"`
	ACInputCurrentLimitMinimum *float64 `json:"ac_input_current_limit_minimum,omitempty"`
	LastActiveACInput          *int     `json:"last_active_ac_input,omitempty"`
	ACInputFrequency           *float64 `json:"ac_input_frequency,omitempty"`
	ACOutputFrequency          *float64 `json:"ac_output_frequency,omitempty"`

	BatteryVoltage       *float64 `json:"battery_voltage,omitempty"`
	BatteryInputCurrent  *float64 `json:"battery_input_current,omitempty"`
	BatteryOutputCurrent *float64 `json:"battery_output_current,omitempty"`

	DeviceState        *string `json:"device_state,omitempty"`
	FirmwareVersion    *uint32 `json:"firmware_version,omitempty"`
	LitIndicators      *string `json:"lit_indicators,omitempty"`
	BlinkingIndicators *string `json:"blinking_indicators,omitempty"`

	FrontPanelMode  *mode.Mode `json:"front_panel_mode,omitempty"`
	RemotePanelMode *mode.Mode `json:"remote_panel_mode,omitempty"`
	ActualMode      *mode.Mode `json:"actual_mode,omitempty"`
}

// PhaseView is one polled AC phase.
type PhaseView struct {
	Phase          int     `json:"phase"`
	InputVoltage   float64 `json:"ac_input_voltage"`
	InputCurrent   float64 `json:"ac_input_current"`
	OutputVoltage  float64 `json:"ac_output_voltage"`
	OutputCurrent  float64 `json:"ac_output_current"`
	InputFrequency float64 `json:"ac_input_frequency"`
}

// View flattens the snapshot.
func (s Snapshot) View() View {
	v := View{At: s.At, Phases: []PhaseView{}}

	for _, ac := range s.AC {
		if ac == nil {
			continue
		}
		v.Phases = append(v.Phases, PhaseView{
			Phase:          ac.Phase,
			InputVoltage:   ac.MainsVoltage,
			InputCurrent:   ac.MainsCurrent,
			OutputVoltage:  ac.InverterVoltage,
			OutputCurrent:  ac.InverterCurrent,
			InputFrequency: ac.MainsFrequency,
		})
	}

	if ac := s.AC[0]; ac != nil {
		v.ACInputFrequency = ptr(ac.MainsFrequency)
		v.DeviceState = ptr(ac.DeviceState.String())
	}

	if c := s.Config; c != nil {
		v.ACInputCurrentLimit = ptr(c.ActualCurrentLimit)
		v.ACInputCurrentLimitMaximum = ptr(c.MaximumCurrentLimit)
		v.ACInputCurrentLimitMinimum = ptr(c.MinimumCurrentLimit)
		v.LastActiveACInput = ptr(c.LastActiveACInput)
		v.FrontPanelMode = ptr(mode.FrontPanelMode(c.Switch))
		v.RemotePanelMode = ptr(mode.RemotePanelMode(c.Switch))
		v.ActualMode = ptr(mode.ActualMode(c.Switch))
	}

	if d := s.DC; d != nil {
		v.ACOutputFrequency = ptr(d.InverterFrequency)
		v.BatteryVoltage = ptr(d.Voltage)
		v.BatteryInputCurrent = ptr(d.CurrentFromCharger)
		v.BatteryOutputCurrent = ptr(d.CurrentToInverter)
	}

	if l := s.LED; l != nil {
		v.LitIndicators = ptr(l.On.String())
		v.BlinkingIndicators = ptr(l.Blink.String())
	}

	if s.Version != nil {
		v.FirmwareVersion = ptr(s.Version.Version)
	}

	return v
}

func ptr[T any](v T) *T { return &v }
