// internal/mode/mode.go
package mode

import (
	"fmt"
	"strings"
)

// Mode is the operating mode of the inverter/charger as seen by a user.
type Mode uint8

const (
	Off Mode = iota
	On
	ChargerOnly
	InverterOnly
)

var modeNames = [...]string{
	Off:          "off",
	On:           "on",
	ChargerOnly:  "charger_only",
	InverterOnly: "inverter_only",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Valid reports whether m is one of the four defined modes.
func (m Mode) Valid() bool {
	return int(m) < len(modeNames)
}

// Modes returns the option list in declaration order.
func Modes() []Mode {
	return []Mode{Off, On, ChargerOnly, InverterOnly}
}

// Parse accepts the lower-case names returned by String, case-insensitively.
func Parse(s string) (Mode, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for i, name := range modeNames {
		if name == want {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("mode: unknown mode %q", s)
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("mode: invalid mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
