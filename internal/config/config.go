// internal/config/config.go
package config

type Config struct {
	Bridge BridgeConfig `yaml:"bridge"`
}

type BridgeConfig struct {
	LogLevel     string             `yaml:"log_level"`
	HTTP         HTTPConfig         `yaml:"http"`
	MQTT         *MQTTConfig        `yaml:"mqtt"`
	Kafka        *KafkaConfig       `yaml:"kafka"`
	StatusMemory StatusMemoryConfig `yaml:"status_memory"`
	Devices      []DeviceConfig     `yaml:"devices"`
}

// ---- SINKS ----

type HTTPConfig struct {
	Listen string `yaml:"listen"` // empty disables the control API
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type StatusMemoryConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	ID         string         `yaml:"id"`
	DeviceName string         `yaml:"device_name"`
	Source     SourceConfig   `yaml:"source"`
	ACPhases   int            `yaml:"ac_phases"`
	Standby    *bool          `yaml:"standby"`
	Poll       PollConfig     `yaml:"poll"`
	StatusSlot *uint16        `yaml:"status_slot"` // device status block (optional, opt-in)
	Targets    []TargetConfig `yaml:"targets"`
}

// ---- SOURCE ----

type SourceConfig struct {
	Port          string `yaml:"port"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
	IdleTimeoutMs int    `yaml:"idle_timeout_ms"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs     int `yaml:"interval_ms"`
	CycleTimeoutMs int `yaml:"cycle_timeout_ms"`
}

// ---- TARGET ----

type TargetConfig struct {
	Endpoint     string `yaml:"endpoint"`
	UnitID       uint8  `yaml:"unit_id"`        // data memory
	Address      uint16 `yaml:"address"`        // first holding register of the data block
	StatusUnitID *uint8 `yaml:"status_unit_id"` // per-target status memory (optional)
}

// StatusEndpoint is where a target's status block lives:
// status_memory.endpoint when set, the target endpoint otherwise.
func (b BridgeConfig) StatusEndpoint(t TargetConfig) string {
	if b.StatusMemory.Endpoint != "" {
		return b.StatusMemory.Endpoint
	}
	return t.Endpoint
}
