// internal/session/errors.go
package session

import "fmt"

// Error codes exposed through Code() for the device status block.
// 0 is reserved for success.
const (
	CodeFaultException uint16 = 0x10
	CodeFaultOther     uint16 = 0x11
	CodeDeviceAsleep   uint16 = 0x20
	CodeNoData         uint16 = 0x21
	CodeCancelled      uint16 = 0x22
	CodeClosed         uint16 = 0x23
)

// FaultKind classifies a latched transport fault.
type FaultKind uint8

const (
	FaultOther FaultKind = iota
	FaultException
)

func (k FaultKind) String() string {
	if k == FaultException {
		return "exception"
	}
	return "other"
}

// CommunicationFault is latched: once returned, every later call on the
// same session returns it until the session is recreated.
type CommunicationFault struct {
	Kind   FaultKind
	Detail string
}

func (f *CommunicationFault) Error() string {
	if f.Detail == "" {
		return "communication fault: " + f.Kind.String()
	}
	return fmt.Sprintf("communication fault: %s: %s", f.Kind, f.Detail)
}

func (f *CommunicationFault) Code() uint16 {
	if f.Kind == FaultException {
		return CodeFaultException
	}
	return CodeFaultOther
}

type codedError struct {
	msg  string
	code uint16
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Code() uint16  { return e.code }

var (
	// ErrDeviceAsleep is transient: it clears once the device talks again.
	ErrDeviceAsleep error = &codedError{"session: device asleep", CodeDeviceAsleep}

	// ErrNoDataAvailable means a cycle finished without a single reading.
	ErrNoDataAvailable error = &codedError{"session: no data available", CodeNoData}

	// ErrCancelled wraps the context error of an aborted cycle.
	// It is not a session fault.
	ErrCancelled error = &codedError{"session: cancelled", CodeCancelled}

	// ErrClosed is returned after Close.
	ErrClosed error = &codedError{"session: closed", CodeClosed}
)
