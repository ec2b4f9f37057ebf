// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/mk3-bridge/internal/status"
)

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and writes it verbatim.
// No logic, no state, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// deviceStatusWriter delivers into one status block destination.
type deviceStatusWriter struct {
	plan StatusPlan
	cli  EndpointClient

	needFull bool
	last     status.Snapshot
	nameRegs []uint16
}

// statusFanout writes the same status to every destination of a device.
type statusFanout []*deviceStatusWriter

// live slots compared on incremental writes, in slot order
var liveSlots = []struct {
	slot int
	name string
	get  func(status.Snapshot) uint16
}{
	{status.SlotHealthCode, "health", func(s status.Snapshot) uint16 { return s.Health }},
	{status.SlotLastErrorCode, "last_error", func(s status.Snapshot) uint16 { return s.LastErrorCode }},
	{status.SlotSecondsInError, "seconds", func(s status.Snapshot) uint16 { return s.SecondsInError }},
	{status.SlotFrontPanelMode, "front_mode", func(s status.Snapshot) uint16 { return s.FrontPanelMode }},
	{status.SlotRemotePanelMode, "remote_mode", func(s status.Snapshot) uint16 { return s.RemotePanelMode }},
	{status.SlotActualMode, "actual_mode", func(s status.Snapshot) uint16 { return s.ActualMode }},
}

// NewDeviceStatusWriter builds a status writer if status is enabled for the device.
// If plan.Status is empty, status is disabled.
func NewDeviceStatusWriter(plan Plan, clients map[string]EndpointClient) (StatusWriter, bool) {
	if len(plan.Status) == 0 {
		return nil, false
	}

	var out statusFanout
	for _, sp := range plan.Status {
		out = append(out, &deviceStatusWriter{
			plan:     sp,
			cli:      clients[sp.Endpoint],
			needFull: true, // full re-assert on first successful write
			last:     status.Snapshot{Health: status.HealthUnknown},
			nameRegs: encodeDeviceNameRegs(sp.DeviceName),
		})
	}
	return out, true
}

func (f statusFanout) WriteStatus(s status.Snapshot) error {
	var errs []string
	for _, sw := range f {
		if err := sw.WriteStatus(s); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// WriteStatus delivers a device status snapshot into status memory.
// On any write failure, the next successful call will re-assert the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw.cli == nil {
		return fmt.Errorf("status writer: missing client for endpoint %s", sw.plan.Endpoint)
	}

	baseAddr, err := sw.baseAddr()
	if err != nil {
		return err
	}
	unitID := sw.plan.UnitID

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		regs := sw.fullBlockRegs(s)

		if err := sw.cli.WriteRegisters(unitID, baseAddr, regs); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: ep=%s full block write failed: %w", sw.plan.Endpoint, err)
		}

		sw.needFull = false
		sw.last = s
		return nil
	}

	var errs []string

	for _, ls := range liveSlots {
		v := ls.get(s)
		if ls.get(sw.last) == v {
			continue
		}
		if err := sw.cli.WriteRegisters(unitID, baseAddr+uint16(ls.slot), []uint16{v}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", ls.slot, ls.name, err))
		}
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt: re-assert on next success.
		sw.needFull = true
		return fmt.Errorf("status writer: ep=%s %s", sw.plan.Endpoint, strings.Join(errs, " | "))
	}

	sw.last = s
	return nil
}

func (sw *deviceStatusWriter) baseAddr() (uint16, error) {
	// Each device owns a fixed SlotsPerDevice block.
	addr := uint32(sw.plan.BaseSlot) * status.SlotsPerDevice
	if addr+status.SlotsPerDevice > 0x10000 {
		return 0, fmt.Errorf("status writer: slot %d out of range", sw.plan.BaseSlot)
	}
	return uint16(addr), nil
}

func (sw *deviceStatusWriter) fullBlockRegs(s status.Snapshot) []uint16 {
	// live slots and reserved zeros
	regs := status.Encode(s)

	// Device name always lives at the end of the block
	for i := 0; i < status.SlotDeviceNameSlots && i < len(sw.nameRegs); i++ {
		regs[status.SlotDeviceNameStart+i] = sw.nameRegs[i]
	}

	return regs
}

// encodeDeviceNameRegs packs up to 16 ASCII characters into 8 uint16 registers.
// Each register stores two ASCII bytes in big-endian order.
func encodeDeviceNameRegs(name string) []uint16 {
	out := make([]uint16, status.SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > status.DeviceNameMaxChars {
		b = b[:status.DeviceNameMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < status.DeviceNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}
