// internal/mk3/payload.go
package mk3

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// Payload layouts (little-endian). Layout is protocol-locked.
//
//	'F' info reply, DC:  0x0C  V(u16 cV) Iinv(u16 dA) Ichg(u16 dA) Finv(u16 cHz)
//	'F' info reply, AC:  0x20|phase  nphases(u8) state(u8)
//	                     Vmains(u16 cV) Imains(i16 cA) Vinv(u16 cV) Iinv(i16 cA) Fmains(u16 cHz)
//	'L' reply:           on(u8) blink(u8)
//	'S' reply:           input(u8) min(u16 dA) max(u16 dA) actual(u16 dA) switch(u16)
//	'H' reply:           flags(u8)
//	'V' unsolicited:     version(u32) mode(u8)

const (
	infoDC      byte = 0x0C
	infoACBase  byte = 0x20
	infoACPhase byte = 0x0F

	stateNoChange byte = 0x00
	limitPresent  byte = 0x01
)

// ---- requests ----

func ledRequest() ([]byte, error) { return Encode(cmdLED) }

func dcRequest() ([]byte, error) { return Encode(cmdInfo, 0x00) }

func acRequest(phase int) ([]byte, error) {
	if phase < 1 || phase > snapshot.MaxACPhases {
		return nil, fmt.Errorf("mk3: ac phase %d out of range", phase)
	}
	return Encode(cmdInfo, byte(phase))
}

func configRequest() ([]byte, error) {
	return Encode(cmdState, stateNoChange, 0x00, 0x00, 0x00)
}

// stateRequest encodes the override. A nil limit is sent as unspecified.
func stateRequest(state mode.SwitchState, limit *float64) ([]byte, error) {
	var flags byte
	var raw uint16
	if limit != nil {
		v := math.Round(*limit * 10)
		if v < 0 || v > math.MaxUint16 {
			return nil, fmt.Errorf("mk3: current limit %.1f out of range", *limit)
		}
		flags = limitPresent
		raw = uint16(v)
	}
	return Encode(cmdState, byte(state), flags, byte(raw), byte(raw>>8))
}

func interfaceRequest(flags snapshot.InterfaceFlags) ([]byte, error) {
	return Encode(cmdInterface, byte(flags))
}

// ---- replies ----

// decodeFrame maps a frame to a reading.
// Unknown commands return (nil, nil) and are ignored by the transport.
func decodeFrame(f Frame) (snapshot.Reading, error) {
	switch f.Command {
	case cmdInfo:
		return decodeInfo(f.Data)
	case cmdLED:
		if len(f.Data) < 2 {
			return nil, shortPayload(f)
		}
		return &snapshot.LEDReading{
			On:    snapshot.LEDSet(f.Data[0]),
			Blink: snapshot.LEDSet(f.Data[1]),
		}, nil
	case cmdState:
		if len(f.Data) < 9 {
			return nil, shortPayload(f)
		}
		d := f.Data
		return &snapshot.ConfigReading{
			LastActiveACInput:   int(d[0]),
			MinimumCurrentLimit: float64(u16(d[1:])) / 10,
			MaximumCurrentLimit: float64(u16(d[3:])) / 10,
			ActualCurrentLimit:  float64(u16(d[5:])) / 10,
			Switch:              mode.SwitchRegister(u16(d[7:])),
		}, nil
	case cmdInterface:
		if len(f.Data) < 1 {
			return nil, shortPayload(f)
		}
		return &snapshot.InterfaceReading{Flags: snapshot.InterfaceFlags(f.Data[0])}, nil
	case cmdVersion:
		if len(f.Data) < 4 {
			return nil, shortPayload(f)
		}
		return &snapshot.VersionReading{Version: binary.LittleEndian.Uint32(f.Data)}, nil
	}
	return nil, nil
}

func decodeInfo(d []byte) (snapshot.Reading, error) {
	if len(d) < 1 {
		return nil, fmt.Errorf("mk3: empty info payload")
	}

	switch {
	case d[0] == infoDC:
		if len(d) < 9 {
			return nil, fmt.Errorf("mk3: short dc payload: %d bytes", len(d))
		}
		return &snapshot.DCReading{
			Voltage:            float64(u16(d[1:])) / 100,
			CurrentToInverter:  float64(u16(d[3:])) / 10,
			CurrentFromCharger: float64(u16(d[5:])) / 10,
			InverterFrequency:  float64(u16(d[7:])) / 100,
		}, nil

	case d[0]&^infoACPhase == infoACBase:
		if len(d) < 13 {
			return nil, fmt.Errorf("mk3: short ac payload: %d bytes", len(d))
		}
		return &snapshot.ACReading{
			Phase:           int(d[0] & infoACPhase),
			NumPhases:       int(d[1]),
			DeviceState:     snapshot.DeviceState(d[2]),
			MainsVoltage:    float64(u16(d[3:])) / 100,
			MainsCurrent:    float64(int16(u16(d[5:]))) / 100,
			InverterVoltage: float64(u16(d[7:])) / 100,
			InverterCurrent: float64(int16(u16(d[9:]))) / 100,
			MainsFrequency:  float64(u16(d[11:])) / 100,
		}, nil
	}

	return nil, nil
}

func u16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

func shortPayload(f Frame) error {
	return fmt.Errorf("mk3: short %q payload: %d bytes", f.Command, len(f.Data))
}
