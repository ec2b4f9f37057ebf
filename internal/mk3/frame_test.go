// internal/mk3/frame_test.go
package mk3

import (
	"bytes"
	"testing"

	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

func mustEncode(t *testing.T, cmd byte, data ...byte) []byte {
	t.Helper()
	b, err := Encode(cmd, data...)
	if err != nil {
		t.Fatalf("Encode err=%v", err)
	}
	return b
}

func TestEncode_Layout(t *testing.T) {
	b := mustEncode(t, cmdInfo, 0x02)

	want := []byte{0x03, 0xFF, 'F', 0x02}
	if !bytes.Equal(b[:4], want) {
		t.Fatalf("header: got=% x want=% x", b[:4], want)
	}

	var sum byte
	for _, c := range b {
		sum += c
	}
	if sum != 0 {
		t.Fatalf("checksum does not zero the frame: sum=%#x", sum)
	}
}

func TestEncode_TooLong(t *testing.T) {
	if _, err := Encode(cmdInfo, make([]byte, maxFrameBody)...); err == nil {
		t.Fatalf("expected error for oversized frame")
	}
}

func TestDecoder_SplitAndResync(t *testing.T) {
	a := mustEncode(t, cmdLED, 0x01, 0x02)
	b := mustEncode(t, cmdInterface, 0x03)

	corrupt := mustEncode(t, cmdLED, 0x09, 0x09)
	corrupt[len(corrupt)-1]++ // break checksum

	stream := append([]byte{0x00, 0x42}, corrupt...)
	stream = append(stream, a...)
	stream = append(stream, b...)

	var d Decoder
	var got []Frame
	// feed in awkward slices
	for i := 0; i < len(stream); i += 3 {
		end := i + 3
		if end > len(stream) {
			end = len(stream)
		}
		got = append(got, d.Feed(stream[i:end])...)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d: %+v", len(got), got)
	}
	if got[0].Command != cmdLED || !bytes.Equal(got[0].Data, []byte{0x01, 0x02}) {
		t.Fatalf("frame 0: %+v", got[0])
	}
	if got[1].Command != cmdInterface || !bytes.Equal(got[1].Data, []byte{0x03}) {
		t.Fatalf("frame 1: %+v", got[1])
	}
	if d.Dropped() == 0 {
		t.Fatalf("expected dropped bytes while resyncing")
	}
}

func TestStateRequest_Limit(t *testing.T) {
	limit := 16.0
	b, err := stateRequest(mode.StateOn, &limit)
	if err != nil {
		t.Fatalf("stateRequest err=%v", err)
	}
	want := mustEncode(t, cmdState, byte(mode.StateOn), limitPresent, 160, 0)
	if !bytes.Equal(b, want) {
		t.Fatalf("got=% x want=% x", b, want)
	}

	b, err = stateRequest(mode.StateOff, nil)
	if err != nil {
		t.Fatalf("stateRequest err=%v", err)
	}
	want = mustEncode(t, cmdState, byte(mode.StateOff), 0, 0, 0)
	if !bytes.Equal(b, want) {
		t.Fatalf("unspecified limit: got=% x want=% x", b, want)
	}

	bad := -1.0
	if _, err := stateRequest(mode.StateOn, &bad); err == nil {
		t.Fatalf("expected error for negative limit")
	}
}

func TestDecodeFrame_Readings(t *testing.T) {
	ac, err := decodeFrame(Frame{Command: cmdInfo, Data: acPayload(2, 230.5, -1.25, snapshot.DeviceCharge)})
	if err != nil {
		t.Fatalf("ac err=%v", err)
	}
	acr, ok := ac.(*snapshot.ACReading)
	if !ok || acr.Phase != 2 || acr.MainsVoltage != 230.5 || acr.MainsCurrent != -1.25 || acr.DeviceState != snapshot.DeviceCharge {
		t.Fatalf("ac reading: %+v", ac)
	}

	dc, err := decodeFrame(Frame{Command: cmdInfo, Data: dcPayload(26.4)})
	if err != nil {
		t.Fatalf("dc err=%v", err)
	}
	if dcr, ok := dc.(*snapshot.DCReading); !ok || dcr.Voltage != 26.4 {
		t.Fatalf("dc reading: %+v", dc)
	}

	cfg, err := decodeFrame(Frame{Command: cmdState, Data: configPayload(16, mode.SwitchCharge|mode.FrontSwitchUp)})
	if err != nil {
		t.Fatalf("config err=%v", err)
	}
	cr, ok := cfg.(*snapshot.ConfigReading)
	if !ok || cr.ActualCurrentLimit != 16 || cr.Switch != mode.SwitchCharge|mode.FrontSwitchUp {
		t.Fatalf("config reading: %+v", cfg)
	}

	if _, err := decodeFrame(Frame{Command: cmdLED, Data: []byte{1}}); err == nil {
		t.Fatalf("expected short payload error")
	}
	if r, err := decodeFrame(Frame{Command: 'Z'}); r != nil || err != nil {
		t.Fatalf("unknown command should be ignored: %v %v", r, err)
	}
}

// ---- payload builders shared with transport tests ----

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }

func acPayload(phase int, volts, amps float64, state snapshot.DeviceState) []byte {
	b := []byte{infoACBase | byte(phase), 1, byte(state)}
	b = append(b, le16(uint16(volts*100))...)
	b = append(b, le16(uint16(int16(amps*100)))...)
	b = append(b, le16(23000)...)
	b = append(b, le16(0)...)
	b = append(b, le16(5000)...)
	return b
}

func dcPayload(volts float64) []byte {
	b := []byte{infoDC}
	b = append(b, le16(uint16(volts*100+0.5))...)
	b = append(b, le16(12)...)
	b = append(b, le16(0)...)
	b = append(b, le16(5000)...)
	return b
}

func configPayload(limit float64, sw mode.SwitchRegister) []byte {
	b := []byte{0}
	b = append(b, le16(30)...)
	b = append(b, le16(500)...)
	b = append(b, le16(uint16(limit*10))...)
	b = append(b, le16(uint16(sw))...)
	return b
}
