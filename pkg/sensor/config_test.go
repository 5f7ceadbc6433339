package sensor

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Interval != 500*time.Millisecond {
		t.Errorf("Expected Interval=500ms, got %v", cfg.Interval)
	}
	if cfg.Backend != BackendAuto {
		t.Errorf("Expected Backend=auto, got %v", cfg.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid: %v", err)
	}
}

func TestConfig_Resolve(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   Backend
	}{
		{"auto defaults to mock", func(c *Config) {}, BackendMock},
		{"auto with recording", func(c *Config) { c.Device = "walk.csv" }, BackendReplay},
		{"auto with broker", func(c *Config) { c.MQTT.Broker = "localhost:1883" }, BackendMQTT},
		{"explicit push", func(c *Config) { c.Backend = BackendPush; c.Device = "walk.csv" }, BackendPush},
		{"empty backend", func(c *Config) { c.Backend = "" }, BackendMock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if got := cfg.Resolve(); got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"negative interval", func(c *Config) { c.Interval = -time.Second }, true},
		{"zero buffer", func(c *Config) { c.Buffer = 0 }, true},
		{"mock zero interval", func(c *Config) { c.Backend = BackendMock; c.Interval = 0 }, true},
		{"replay zero interval", func(c *Config) { c.Backend = BackendReplay; c.Interval = 0 }, false},
		{"mqtt without broker", func(c *Config) { c.Backend = BackendMQTT }, true},
		{"mqtt without topic", func(c *Config) {
			c.Backend = BackendMQTT
			c.MQTT.Broker = "localhost"
			c.MQTT.Topic = ""
		}, true},
		{"mqtt bad qos", func(c *Config) {
			c.Backend = BackendMQTT
			c.MQTT.Broker = "localhost"
			c.MQTT.QoS = 3
		}, true},
		{"mqtt ok", func(c *Config) {
			c.Backend = BackendMQTT
			c.MQTT.Broker = "localhost"
		}, false},
		{"unknown backend", func(c *Config) { c.Backend = "bluetooth" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSource_Backends(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Backend = BackendMock
	src, err := NewSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewSource(mock) failed: %v", err)
	}
	if src.Name() != "mock" {
		t.Errorf("Name() = %q, want mock", src.Name())
	}
	src.Close()

	cfg.Backend = BackendPush
	src, err = NewSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewSource(push) failed: %v", err)
	}
	if _, ok := src.(*PushSource); !ok {
		t.Errorf("NewSource(push) returned %T", src)
	}
	src.Close()

	cfg.Backend = BackendReplay
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("NewSource(replay) without a recording should fail")
	}

	cfg.Backend = "bluetooth"
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("NewSource should reject unknown backends")
	}
}

func TestBrokerAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"tcp://broker:1884", "broker:1884", false},
		{"mqtt://broker", "broker:1883", false},
		{"localhost:1883", "localhost:1883", false},
		{"ws://broker:80", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := brokerAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("brokerAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("brokerAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
