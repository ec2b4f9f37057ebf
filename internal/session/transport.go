// internal/session/transport.go
package session

import (
	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// Transport is the device-protocol capability the session drives.
// Send* calls only write a request; the matched reply arrives on Events().
// The protocol allows exactly one outstanding request and correlates
// replies by arrival order.
type Transport interface {
	SendLEDRequest() error
	SendDCRequest() error
	SendACRequest(phase int) error
	SendConfigRequest() error
	SendStateRequest(state mode.SwitchState, currentLimit *float64) error
	SendInterfaceRequest(flags snapshot.InterfaceFlags) error

	// Events has a single consumer: the session.
	Events() <-chan Event

	Close() error
}

// EventKind classifies one transport notification.
type EventKind uint8

const (
	EventFrame EventKind = iota + 1
	EventIdle
	EventFault
)

// Event is exactly one of: a parsed reply, an idle notice, or a fault.
type Event struct {
	Kind    EventKind
	Reading snapshot.Reading // EventFrame
	Fault   FaultKind        // EventFault
	Detail  string           // EventFault
}

func FrameEvent(r snapshot.Reading) Event {
	return Event{Kind: EventFrame, Reading: r}
}

func IdleEvent() Event {
	return Event{Kind: EventIdle}
}

func FaultEvent(kind FaultKind, detail string) Event {
	return Event{Kind: EventFault, Fault: kind, Detail: detail}
}
