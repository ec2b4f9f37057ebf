// internal/writer/types.go
package writer

import "github.com/tamzrod/mk3-bridge/internal/poller"

// DataTarget is one data block destination.
type DataTarget struct {
	Endpoint string
	UnitID   uint8
	Address  uint16
}

// StatusPlan is one status block destination.
type StatusPlan struct {
	Endpoint   string
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// Plan is the fully-built write plan for one device.
type Plan struct {
	UnitID  string
	Targets []DataTarget
	Status  []StatusPlan // empty when status is disabled
}

// Writer writes poll snapshots into targets.
type Writer interface {
	Write(res poller.PollResult) error
}

// EndpointClient is the exact contract the writers use.
// *modbus.EndpointClient satisfies it.
type EndpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}
