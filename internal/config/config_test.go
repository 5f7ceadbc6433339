package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-stepcount/pkg/sensor"
	"github.com/teslashibe/go-stepcount/pkg/step"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Threshold != step.DefaultThreshold {
		t.Errorf("Threshold = %v, want %v", cfg.Threshold, step.DefaultThreshold)
	}
	if cfg.Sensor.Interval != 500*time.Millisecond {
		t.Errorf("Interval = %v, want 500ms", cfg.Sensor.Interval)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "stepcount.yaml", `
log_level: debug
threshold: 2.5
sensor:
  backend: mock
  interval: 100ms
server:
  port: "9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Threshold != 2.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Sensor.Backend != sensor.BackendMock || cfg.Sensor.Interval != 100*time.Millisecond {
		t.Errorf("sensor = %+v", cfg.Sensor)
	}
	if cfg.Sensor.Buffer != sensor.DefaultConfig().Buffer {
		t.Errorf("unset fields should keep defaults, Buffer = %d", cfg.Sensor.Buffer)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Server.Port)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "stepcount.toml", `
threshold = 0.8

[sensor]
backend = "mqtt"
interval = "250ms"

[sensor.mqtt]
broker = "tcp://broker:1883"
topic = "walk/+/samples"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Threshold != 0.8 {
		t.Errorf("Threshold = %v, want 0.8", cfg.Threshold)
	}
	if cfg.Sensor.Interval != 250*time.Millisecond {
		t.Errorf("Interval = %v, want 250ms", cfg.Sensor.Interval)
	}
	if cfg.Sensor.MQTT.Broker != "tcp://broker:1883" || cfg.Sensor.MQTT.Topic != "walk/+/samples" {
		t.Errorf("mqtt = %+v", cfg.Sensor.MQTT)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }},
		{"unknown extension", func(t *testing.T) string { return writeFile(t, "cfg.ini", "threshold=1") }},
		{"bad yaml", func(t *testing.T) string { return writeFile(t, "cfg.yaml", "threshold: [") }},
		{"invalid sensor", func(t *testing.T) string {
			return writeFile(t, "cfg.yaml", "sensor:\n  backend: mqtt\n")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.path(t)); err == nil {
				t.Error("Load should fail")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("STEP_THRESHOLD", "3")
	t.Setenv("SENSOR_BACKEND", "replay")
	t.Setenv("SENSOR_DEVICE", "walk.csv")
	t.Setenv("SENSOR_INTERVAL", "0s")
	t.Setenv("PORT", "7070")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Threshold != 3 {
		t.Errorf("Threshold = %v, want 3", cfg.Threshold)
	}
	if cfg.Sensor.Backend != sensor.BackendReplay || cfg.Sensor.Device != "walk.csv" {
		t.Errorf("sensor = %+v", cfg.Sensor)
	}
	if cfg.Sensor.Interval != 0 {
		t.Errorf("Interval = %v, want 0", cfg.Sensor.Interval)
	}
	if cfg.Server.Port != "7070" || cfg.LogLevel != "warn" {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := cfg.Ingest().Threshold; got != 3 {
		t.Errorf("Ingest().Threshold = %v, want 3", got)
	}
}

func TestApplyEnv_BadValues(t *testing.T) {
	t.Setenv("STEP_THRESHOLD", "steep")
	if _, err := Load(""); err == nil {
		t.Error("Load should reject a non-numeric threshold")
	}

	t.Setenv("STEP_THRESHOLD", "1")
	t.Setenv("SENSOR_INTERVAL", "often")
	if _, err := Load(""); err == nil {
		t.Error("Load should reject a bad interval")
	}
}

func TestServerURL(t *testing.T) {
	t.Setenv("STEP_SERVER", "")
	if got := ServerURL(DefaultServerURL); got != DefaultServerURL {
		t.Errorf("ServerURL() = %q, want default", got)
	}

	t.Setenv("STEP_SERVER", "ws://steps:9000")
	if got := ServerURL(DefaultServerURL); got != "ws://steps:9000" {
		t.Errorf("ServerURL() = %q, want ws://steps:9000", got)
	}
}

func TestRead_ValidateAfterOverrides(t *testing.T) {
	t.Setenv("SENSOR_BACKEND", "mqtt")
	t.Setenv("MQTT_BROKER", "")

	if _, err := Load(""); err == nil {
		t.Error("Load should reject mqtt without a broker")
	}

	cfg, err := Read("")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject mqtt without a broker")
	}

	cfg.Sensor.MQTT.Broker = "tcp://localhost:1883"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config after setting broker, got %v", err)
	}
}
