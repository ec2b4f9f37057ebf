// internal/config/normalize.go
package config

import "github.com/tamzrod/mk3-bridge/internal/status"

// Defaults applied by Normalize.
const (
	DefaultBaud           = 2400
	DefaultReadTimeoutMs  = 250
	DefaultIdleTimeoutMs  = 5000
	DefaultACPhases       = 3
	DefaultIntervalMs     = 10000
	DefaultCycleTimeoutMs = 8000
	DefaultTopicPrefix    = "victron_mk3"
	DefaultLogLevel       = "info"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	b := &cfg.Bridge

	if b.LogLevel == "" {
		b.LogLevel = DefaultLogLevel
	}
	if b.MQTT != nil && b.MQTT.TopicPrefix == "" {
		b.MQTT.TopicPrefix = DefaultTopicPrefix
	}

	for i := range b.Devices {
		d := &b.Devices[i]

		if d.Source.Baud == 0 {
			d.Source.Baud = DefaultBaud
		}
		if d.Source.ReadTimeoutMs == 0 {
			d.Source.ReadTimeoutMs = DefaultReadTimeoutMs
		}
		if d.Source.IdleTimeoutMs == 0 {
			d.Source.IdleTimeoutMs = DefaultIdleTimeoutMs
		}
		if d.ACPhases == 0 {
			d.ACPhases = DefaultACPhases
		}

		// standby switch is on unless explicitly disabled
		if d.Standby == nil {
			on := true
			d.Standby = &on
		}

		if d.Poll.IntervalMs == 0 {
			d.Poll.IntervalMs = DefaultIntervalMs
		}
		if d.Poll.CycleTimeoutMs == 0 {
			d.Poll.CycleTimeoutMs = DefaultCycleTimeoutMs
			if d.Poll.CycleTimeoutMs > d.Poll.IntervalMs {
				d.Poll.CycleTimeoutMs = d.Poll.IntervalMs
			}
		}

		if d.DeviceName == "" {
			d.DeviceName = d.ID
		}

		// Normalize device_name:
		// - ASCII already validated
		// - Truncate to the status block capacity
		if len(d.DeviceName) > status.DeviceNameMaxChars {
			d.DeviceName = d.DeviceName[:status.DeviceNameMaxChars]
		}
	}
}
