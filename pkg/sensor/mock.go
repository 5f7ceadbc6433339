package sensor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/teslashibe/go-stepcount/pkg/step"
)

// MockSource is a synthetic sample source for testing and demos.
// By default it produces a walking-like signal: gravity on Z plus a
// vertical bounce at the gait cadence and a smaller lateral sway.
type MockSource struct {
	cfg    Config
	logger *slog.Logger
	*stream

	// Synthetic signal generation
	cadence   float64 // Hz
	amplitude float64 // same unit as gravity (g)
	gravity   float64
	script    []step.Sample
	n         int
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithGait sets the bounce frequency and amplitude of the walking signal.
func WithGait(cadence, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.cadence = cadence
		m.amplitude = amplitude
	}
}

// WithScript makes the mock emit the given samples in order, cycling
// back to the first one after the last.
func WithScript(samples ...step.Sample) MockSourceOption {
	return func(m *MockSource) {
		m.script = append([]step.Sample(nil), samples...)
	}
}

// NewMockSource creates a new mock sample source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		stream:    newStream(cfg.Buffer),
		cadence:   1.0,
		amplitude: 0.8,
		gravity:   1.0,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins generating samples.
func (m *MockSource) Start(ctx context.Context) error {
	started, err := m.begin()
	if err != nil || !started {
		return err
	}

	go m.generateLoop(ctx)

	m.logger.Info("mock sensor started",
		"interval", m.cfg.Interval,
		"cadence_hz", m.cadence,
		"scripted", len(m.script) > 0,
	)

	return nil
}

func (m *MockSource) generateLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			sample := m.next()
			sample.Time = now
			if err := m.emit(ctx, sample); err != nil {
				return
			}
		}
	}
}

// next returns the n-th sample of the signal. Only generateLoop calls it.
func (m *MockSource) next() step.Sample {
	defer func() { m.n++ }()

	if len(m.script) > 0 {
		return m.script[m.n%len(m.script)]
	}

	t := float64(m.n) * m.cfg.Interval.Seconds()
	phase := 2 * math.Pi * m.cadence * t

	return step.Sample{
		X: 0.3 * m.amplitude * math.Sin(phase/2),
		Y: 0.1 * m.amplitude * math.Cos(phase/2),
		Z: m.gravity + m.amplitude*math.Cos(phase),
	}
}

// Stop halts sample generation.
func (m *MockSource) Stop() error {
	if m.halt() {
		m.logger.Info("mock sensor stopped", "samples", m.samplesRead.Load())
	}
	return nil
}

// Read reads the next sample.
func (m *MockSource) Read(ctx context.Context) (step.Sample, error) {
	return m.read(ctx)
}

// Stream returns the sample channel.
func (m *MockSource) Stream() <-chan step.Sample {
	return m.ch
}

// Config returns the source configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return string(BackendMock)
}

// Close releases resources.
func (m *MockSource) Close() error {
	if !m.markClosed() {
		return nil
	}
	return m.Stop()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	return m.stats(m.Name())
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)
