// internal/config/validate_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// helper to build a device quickly
func device(id, endpoint string, unitID uint8, addr uint16) DeviceConfig {
	return DeviceConfig{
		ID:     id,
		Source: SourceConfig{Port: "/dev/ttyUSB0"},
		Targets: []TargetConfig{
			{
				Endpoint: endpoint,
				UnitID:   unitID,
				Address:  addr,
			},
		},
	}
}

func bridge(devices ...DeviceConfig) *Config {
	return &Config{Bridge: BridgeConfig{Devices: devices}}
}

func u8(v uint8) *uint8    { return &v }
func u16(v uint16) *uint16 { return &v }

func expectErr(t *testing.T, cfg *Config, contains string) {
	t.Helper()
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected error containing %q", contains)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Fatalf("error %q does not contain %q", err, contains)
	}
}

// ---- tests ----

func TestValidate_NoOverlapDifferentEndpoints(t *testing.T) {
	cfg := bridge(
		device("d1", "ep1", 1, 0),
		device("d2", "ep2", 1, 0),
	)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NoOverlapDifferentUnit(t *testing.T) {
	cfg := bridge(
		device("d1", "ep1", 1, 0),
		device("d2", "ep1", 2, 0),
	)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_AdjacentBlocks(t *testing.T) {
	cfg := bridge(
		device("d1", "ep1", 1, 0),
		device("d2", "ep1", 1, snapshot.DataBlockRegisters),
	)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_OverlapSameEndpointUnit(t *testing.T) {
	cfg := bridge(
		device("d1", "ep1", 1, 0),
		device("d2", "ep1", 1, snapshot.DataBlockRegisters-1),
	)
	expectErr(t, cfg, "memory overlap")
}

func TestValidate_AddressOverflow(t *testing.T) {
	cfg := bridge(device("d1", "ep1", 1, 0xFFF0))
	expectErr(t, cfg, "leaves no room")
}

func TestValidate_DeviceRules(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(d *DeviceConfig)
		contains string
	}{
		{"empty id", func(d *DeviceConfig) { d.ID = "" }, "id required"},
		{"no port", func(d *DeviceConfig) { d.Source.Port = "" }, "source.port required"},
		{"phases high", func(d *DeviceConfig) { d.ACPhases = 5 }, "ac_phases"},
		{"phases negative", func(d *DeviceConfig) { d.ACPhases = -1 }, "ac_phases"},
		{"negative interval", func(d *DeviceConfig) { d.Poll.IntervalMs = -1 }, "poll values"},
		{"timeout above interval", func(d *DeviceConfig) {
			d.Poll.IntervalMs = 1000
			d.Poll.CycleTimeoutMs = 2000
		}, "cycle_timeout_ms"},
		{"timeout above default interval", func(d *DeviceConfig) { d.Poll.CycleTimeoutMs = DefaultIntervalMs + 1 }, "cycle_timeout_ms"},
		{"non ascii name", func(d *DeviceConfig) { d.DeviceName = "Wechselrichterä" }, "ASCII"},
		{"empty endpoint", func(d *DeviceConfig) { d.Targets[0].Endpoint = "" }, "endpoint required"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := device("d1", "ep1", 1, 0)
			c.mutate(&d)
			expectErr(t, bridge(d), c.contains)
		})
	}
}

func TestValidate_DuplicateID(t *testing.T) {
	cfg := bridge(
		device("d1", "ep1", 1, 0),
		device("d1", "ep2", 1, 0),
	)
	expectErr(t, cfg, "duplicate id")
}

func TestValidate_NoDevices(t *testing.T) {
	expectErr(t, bridge(), "no devices")
}

func TestValidate_Sinks(t *testing.T) {
	cfg := bridge(device("d1", "ep1", 1, 0))
	cfg.Bridge.MQTT = &MQTTConfig{}
	expectErr(t, cfg, "mqtt")

	cfg = bridge(device("d1", "ep1", 1, 0))
	cfg.Bridge.Kafka = &KafkaConfig{Brokers: []string{"k:9092"}}
	expectErr(t, cfg, "kafka: topic")

	cfg = bridge(device("d1", "ep1", 1, 0))
	cfg.Bridge.LogLevel = "chatty"
	expectErr(t, cfg, "log_level")
}

func TestValidate_StatusSlot(t *testing.T) {
	d1 := device("d1", "ep1", 1, 0)
	d1.StatusSlot = u16(0)
	expectErr(t, bridge(d1), "no status_unit_id")

	d1.Targets[0].StatusUnitID = u8(9)
	d2 := device("d2", "ep1", 2, 0)
	d2.StatusSlot = u16(0)
	d2.Targets[0].StatusUnitID = u8(9)
	expectErr(t, bridge(d1, d2), "status_slot collision")

	d2.StatusSlot = u16(1)
	if err := Validate(bridge(d1, d2)); err != nil {
		t.Fatalf("distinct slots: %v", err)
	}

	d3 := device("d3", "ep1", 3, 0)
	d3.Targets = nil
	d3.StatusSlot = u16(2)
	expectErr(t, bridge(d3), "no targets")
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := bridge(device("a-very-long-device-identifier", "ep1", 1, 0))
	cfg.Bridge.MQTT = &MQTTConfig{Broker: "tcp://b:1883"}

	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	Normalize(cfg)

	d := cfg.Bridge.Devices[0]
	if d.Source.Baud != DefaultBaud || d.Source.ReadTimeoutMs != DefaultReadTimeoutMs || d.Source.IdleTimeoutMs != DefaultIdleTimeoutMs {
		t.Fatalf("source defaults: %+v", d.Source)
	}
	if d.ACPhases != DefaultACPhases {
		t.Fatalf("ac_phases=%d", d.ACPhases)
	}
	if d.Standby == nil || !*d.Standby {
		t.Fatalf("standby should default to on")
	}
	if d.Poll.IntervalMs != DefaultIntervalMs || d.Poll.CycleTimeoutMs != DefaultCycleTimeoutMs {
		t.Fatalf("poll defaults: %+v", d.Poll)
	}
	if d.DeviceName != "a-very-long-devi" {
		t.Fatalf("device name=%q", d.DeviceName)
	}
	if cfg.Bridge.MQTT.TopicPrefix != DefaultTopicPrefix || cfg.Bridge.LogLevel != DefaultLogLevel {
		t.Fatalf("bridge defaults: %+v", cfg.Bridge)
	}
}

func TestNormalize_ShortIntervalCapsTimeout(t *testing.T) {
	d := device("d1", "ep1", 1, 0)
	d.Poll.IntervalMs = 2000
	cfg := bridge(d)

	Normalize(cfg)

	if got := cfg.Bridge.Devices[0].Poll.CycleTimeoutMs; got != 2000 {
		t.Fatalf("cycle timeout=%d want 2000", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")

	yml := `
bridge:
  log_level: debug
  http:
    listen: ":8080"
  devices:
    - id: multiplus
      device_name: MultiPlus-II
      source:
        port: /dev/ttyUSB0
      ac_phases: 1
      standby: false
      status_slot: 0
      targets:
        - endpoint: "127.0.0.1:502"
          unit_id: 1
          address: 100
          status_unit_id: 2
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	d := cfg.Bridge.Devices[0]
	if d.ID != "multiplus" || d.ACPhases != 1 || d.Standby == nil || *d.Standby {
		t.Fatalf("device: %+v", d)
	}
	if d.StatusSlot == nil || *d.StatusSlot != 0 {
		t.Fatalf("status_slot: %v", d.StatusSlot)
	}
	tg := d.Targets[0]
	if tg.Address != 100 || tg.StatusUnitID == nil || *tg.StatusUnitID != 2 {
		t.Fatalf("target: %+v", tg)
	}
	if cfg.Bridge.HTTP.Listen != ":8080" {
		t.Fatalf("http listen=%q", cfg.Bridge.HTTP.Listen)
	}
}

func TestParse_UnknownField(t *testing.T) {
	if _, err := Parse([]byte("bridge:\n  devicez: []\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestValidate_StatusMemoryEndpointShared(t *testing.T) {
	d1 := device("d1", "ep1", 1, 0)
	d1.StatusSlot = u16(0)
	d1.Targets[0].StatusUnitID = u8(9)

	d2 := device("d2", "ep2", 1, 0)
	d2.StatusSlot = u16(0)
	d2.Targets[0].StatusUnitID = u8(9)

	cfg := bridge(d1, d2)
	if err := Validate(cfg); err != nil {
		t.Fatalf("distinct endpoints: %v", err)
	}

	cfg.Bridge.StatusMemory.Endpoint = "status:502"
	expectErr(t, cfg, "status_slot collision")
}
