// internal/config/validate.go
package config

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values that Normalize will default are accepted.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	b := &cfg.Bridge

	if b.LogLevel != "" {
		if _, err := logrus.ParseLevel(b.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}

	if len(b.Devices) == 0 {
		return errors.New("no devices configured")
	}

	if b.MQTT != nil && b.MQTT.Broker == "" {
		return errors.New("mqtt: broker required")
	}
	if b.Kafka != nil {
		if len(b.Kafka.Brokers) == 0 {
			return errors.New("kafka: at least one broker required")
		}
		if b.Kafka.Topic == "" {
			return errors.New("kafka: topic required")
		}
	}

	// ------------------------------------------------------------
	// PER-DEVICE VALIDATION
	// ------------------------------------------------------------

	seen := make(map[string]struct{})

	for _, d := range b.Devices {
		if d.ID == "" {
			return errors.New("device: id required")
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("device %q: duplicate id", d.ID)
		}
		seen[d.ID] = struct{}{}

		if d.Source.Port == "" {
			return fmt.Errorf("device %q: source.port required", d.ID)
		}
		if d.Source.Baud < 0 || d.Source.ReadTimeoutMs < 0 || d.Source.IdleTimeoutMs < 0 {
			return fmt.Errorf("device %q: source values must not be negative", d.ID)
		}

		if d.ACPhases != 0 && (d.ACPhases < 1 || d.ACPhases > snapshot.MaxACPhases) {
			return fmt.Errorf(
				"device %q: ac_phases %d out of range 1..%d",
				d.ID,
				d.ACPhases,
				snapshot.MaxACPhases,
			)
		}

		if d.Poll.IntervalMs < 0 || d.Poll.CycleTimeoutMs < 0 {
			return fmt.Errorf("device %q: poll values must not be negative", d.ID)
		}
		interval := d.Poll.IntervalMs
		if interval == 0 {
			interval = DefaultIntervalMs
		}
		if d.Poll.CycleTimeoutMs > interval {
			return fmt.Errorf(
				"device %q: cycle_timeout_ms %d exceeds interval_ms %d",
				d.ID,
				d.Poll.CycleTimeoutMs,
				interval,
			)
		}

		// device_name sanity (ASCII only)
		for i := 0; i < len(d.DeviceName); i++ {
			if d.DeviceName[i] > 0x7F {
				return fmt.Errorf(
					"device %q: device_name must contain ASCII characters only",
					d.ID,
				)
			}
		}

		for _, t := range d.Targets {
			if t.Endpoint == "" {
				return fmt.Errorf("device %q: target endpoint required", d.ID)
			}
			if int(t.Address)+snapshot.DataBlockRegisters > 0x10000 {
				return fmt.Errorf(
					"device %q: target %s address %d leaves no room for %d registers",
					d.ID,
					t.Endpoint,
					t.Address,
					snapshot.DataBlockRegisters,
				)
			}
		}
	}

	if err := validateStatusSlots(b); err != nil {
		return err
	}
	return validateDataSpans(b.Devices)
}

// ------------------------------------------------------------
// DEVICE STATUS BLOCK VALIDATION (PER-TARGET, OPT-IN)
// ------------------------------------------------------------

func validateStatusSlots(b *BridgeConfig) error {
	// key = endpoint | status_unit_id | status_slot
	statusOwner := make(map[string]string)

	for _, d := range b.Devices {
		// status is opt-in
		if d.StatusSlot == nil {
			continue
		}

		// status requires at least one target
		if len(d.Targets) == 0 {
			return fmt.Errorf(
				"device %q: status_slot is set but no targets are defined",
				d.ID,
			)
		}

		slot := *d.StatusSlot

		for _, t := range d.Targets {
			// each target must declare status_unit_id
			if t.StatusUnitID == nil {
				return fmt.Errorf(
					"device %q: status_slot is set but target %q has no status_unit_id",
					d.ID,
					t.Endpoint,
				)
			}

			endpoint := b.StatusEndpoint(t)
			key := fmt.Sprintf("%s|%d|%d", endpoint, *t.StatusUnitID, slot)

			if prev, exists := statusOwner[key]; exists {
				return fmt.Errorf(
					"status_slot collision: endpoint=%s status_unit_id=%d slot=%d used by devices %q and %q",
					endpoint,
					*t.StatusUnitID,
					slot,
					prev,
					d.ID,
				)
			}

			statusOwner[key] = d.ID
		}
	}
	return nil
}

// ------------------------------------------------------------
// DESTINATION MEMORY GEOMETRY VALIDATION
// ------------------------------------------------------------

func validateDataSpans(devices []DeviceConfig) error {
	type span struct {
		start  uint32
		end    uint32
		device string
	}

	// key = endpoint | unit_id
	spans := make(map[string][]span)

	for _, d := range devices {
		for _, t := range d.Targets {
			start := uint32(t.Address)
			end := start + snapshot.DataBlockRegisters - 1

			key := fmt.Sprintf("%s|%d", t.Endpoint, t.UnitID)

			for _, s := range spans[key] {
				// overlap check (inclusive)
				if !(end < s.start || start > s.end) {
					return fmt.Errorf(
						"memory overlap: endpoint=%s unit_id=%d range=%d-%d overlaps with device=%s range=%d-%d",
						t.Endpoint,
						t.UnitID,
						start,
						end,
						s.device,
						s.start,
						s.end,
					)
				}
			}

			spans[key] = append(spans[key], span{start: start, end: end, device: d.ID})
		}
	}
	return nil
}
