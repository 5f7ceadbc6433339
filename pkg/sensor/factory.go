package sensor

import (
	"fmt"
	"log/slog"
)

// NewSource creates a new sample source with the given configuration.
// If cfg.Backend is BackendAuto, the backend is chosen by Config.Resolve.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Resolve()

	logger.Info("creating sample source",
		"backend", backend,
		"interval_ms", cfg.Interval.Milliseconds(),
		"buffer", cfg.Buffer,
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendReplay:
		if cfg.Device == "" {
			return nil, fmt.Errorf("replay backend requires a recording path")
		}
		return OpenReplay(cfg, cfg.Device, logger)
	case BackendPush:
		return NewPushSource(cfg, logger), nil
	case BackendMQTT:
		return NewMQTTSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// AvailableBackends returns the list of selectable backends.
func AvailableBackends() []Backend {
	return []Backend{BackendMock, BackendReplay, BackendPush, BackendMQTT}
}
