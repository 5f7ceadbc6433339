// Package sensor provides accelerometer sample sources.
//
// Backends:
//   - Mock   - synthetic walking signal for CI and demos
//   - Replay - a recorded sequence (CSV) played back in order
//   - Push   - samples pushed in by another component (websocket ingest)
//   - MQTT   - samples published by devices to an MQTT 5 broker
//
// Every backend exposes the same Source contract: an ordered stream of
// step.Sample values that ends when the source is stopped.
package sensor

import (
	"fmt"
	"time"
)

// Backend represents the sample source type.
type Backend string

const (
	// BackendAuto selects a backend from the rest of the configuration.
	BackendAuto Backend = "auto"
	// BackendMock generates a synthetic gait signal.
	BackendMock Backend = "mock"
	// BackendReplay plays back recorded samples.
	BackendReplay Backend = "replay"
	// BackendPush accepts samples from an in-process producer.
	BackendPush Backend = "push"
	// BackendMQTT subscribes to samples on an MQTT broker.
	BackendMQTT Backend = "mqtt"
)

// Config holds sample source configuration.
type Config struct {
	// Backend specifies which source to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend" toml:"backend"`

	// Interval is the sampling interval.
	// Default: 500ms. Replay treats 0 as "as fast as the consumer reads".
	Interval time.Duration `yaml:"interval" json:"interval" toml:"interval"`

	// Buffer is the capacity of the sample stream.
	// Default: 16
	Buffer int `yaml:"buffer" json:"buffer" toml:"buffer"`

	// Device is the backend-specific input identifier.
	// Examples:
	//   - Replay: path to a CSV recording
	//   - Mock, Push, MQTT: ignored
	Device string `yaml:"device" json:"device" toml:"device"`

	// MQTT configures the MQTT backend.
	MQTT MQTTConfig `yaml:"mqtt" json:"mqtt" toml:"mqtt"`
}

// MQTTConfig holds broker settings for the MQTT backend.
type MQTTConfig struct {
	// Broker is the broker address, e.g. "tcp://localhost:1883".
	Broker string `yaml:"broker" json:"broker" toml:"broker"`

	// Topic is the topic filter samples are published on.
	Topic string `yaml:"topic" json:"topic" toml:"topic"`

	// ClientID identifies this subscriber. Generated when empty.
	ClientID string `yaml:"client_id" json:"client_id" toml:"client_id"`

	Username string `yaml:"username" json:"username" toml:"username"`
	Password string `yaml:"password" json:"-" toml:"password"`

	// QoS is the subscription quality of service (0-2).
	QoS byte `yaml:"qos" json:"qos" toml:"qos"`

	// KeepAlive is the MQTT keep-alive period.
	// Default: 30s
	KeepAlive time.Duration `yaml:"keep_alive" json:"keep_alive" toml:"keep_alive"`
}

// DefaultInterval matches the accelerometer update rate of the mobile app.
const DefaultInterval = 500 * time.Millisecond

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendAuto,
		Interval: DefaultInterval,
		Buffer:   16,
		MQTT: MQTTConfig{
			Topic:     "stepcount/+/samples",
			KeepAlive: 30 * time.Second,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %v", c.Interval)
	}
	if c.Buffer <= 0 {
		return fmt.Errorf("buffer must be positive, got %d", c.Buffer)
	}

	switch c.Resolve() {
	case BackendPush:
	case BackendMock:
		if c.Interval == 0 {
			return fmt.Errorf("mock backend requires a positive interval")
		}
	case BackendReplay:
		// Replay sources may be built from in-memory samples, so Device is optional here.
	case BackendMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt backend requires a broker address")
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt backend requires a topic")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// Resolve returns the backend that BackendAuto maps to for this config.
func (c *Config) Resolve() Backend {
	if c.Backend != BackendAuto && c.Backend != "" {
		return c.Backend
	}
	switch {
	case c.MQTT.Broker != "":
		return BackendMQTT
	case c.Device != "":
		return BackendReplay
	default:
		return BackendMock
	}
}
