// Package config loads go-stepcount settings from a file and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-stepcount/pkg/ingest"
	"github.com/teslashibe/go-stepcount/pkg/sensor"
	"github.com/teslashibe/go-stepcount/pkg/step"
	"github.com/teslashibe/go-stepcount/pkg/web"
)

// DefaultServerURL is where devices connect when STEP_SERVER is unset.
const DefaultServerURL = "ws://localhost:8080"

// Config is the application configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// Threshold is the step threshold. Not validated.
	Threshold float64 `yaml:"threshold" toml:"threshold"`

	Sensor sensor.Config `yaml:"sensor" toml:"sensor"`
	Server web.Config    `yaml:"server" toml:"server"`

	// IngestBuffer is the per-device stream capacity on the server.
	IngestBuffer int `yaml:"ingest_buffer" toml:"ingest_buffer"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:     "info",
		Threshold:    step.DefaultThreshold,
		Sensor:       sensor.DefaultConfig(),
		Server:       web.DefaultConfig(),
		IngestBuffer: ingest.DefaultConfig().Buffer,
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the sensor settings.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Read is Load without validation, for callers that apply further
// overrides (command-line flags) before calling Validate.
func Read(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the sensor settings.
func (c *Config) Validate() error {
	if err := c.Sensor.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return fmt.Errorf("config: unsupported file type %q", ext)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("STEP_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: STEP_THRESHOLD: %w", err)
		}
		c.Threshold = f
	}
	if v, ok := os.LookupEnv("SENSOR_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SENSOR_INTERVAL: %w", err)
		}
		c.Sensor.Interval = d
	}
	if v := os.Getenv("SENSOR_BACKEND"); v != "" {
		c.Sensor.Backend = sensor.Backend(v)
	}
	if v := os.Getenv("SENSOR_DEVICE"); v != "" {
		c.Sensor.Device = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Sensor.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_TOPIC"); v != "" {
		c.Sensor.MQTT.Topic = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Ingest returns the device hub configuration.
func (c Config) Ingest() ingest.Config {
	return ingest.Config{
		Threshold: c.Threshold,
		Buffer:    c.IngestBuffer,
	}
}

// ServerURL returns the step server URL from STEP_SERVER.
// Falls back to the provided default if not set.
func ServerURL(defaultURL string) string {
	if u := os.Getenv("STEP_SERVER"); u != "" {
		return u
	}
	return defaultURL
}
