package sensor

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-stepcount/pkg/step"
)

// PushSource is fed by an external producer such as a websocket
// connection. Samples are delivered in the order Push is called; callers
// pushing from several goroutines must order the calls themselves.
type PushSource struct {
	cfg    Config
	logger *slog.Logger
	*stream
}

// NewPushSource creates a new push source.
func NewPushSource(cfg Config, logger *slog.Logger) *PushSource {
	if logger == nil {
		logger = slog.Default()
	}

	return &PushSource{
		cfg:    cfg,
		logger: logger,
		stream: newStream(cfg.Buffer),
	}
}

// Start makes the source accept pushed samples.
func (p *PushSource) Start(ctx context.Context) error {
	started, err := p.begin()
	if err != nil || !started {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-p.stopCh:
		}
	}()

	p.logger.Debug("push sensor started")
	return nil
}

// Push delivers a sample, waiting for room in the stream.
// Returns ErrNotRunning if the source is not started or already stopped.
func (p *PushSource) Push(ctx context.Context, sample step.Sample) error {
	if !p.running() {
		return ErrNotRunning
	}
	return p.emit(ctx, sample)
}

// Stop halts the source and closes the stream.
func (p *PushSource) Stop() error {
	if p.halt() {
		p.logger.Debug("push sensor stopped", "samples", p.samplesRead.Load())
	}
	return nil
}

// Read reads the next sample.
func (p *PushSource) Read(ctx context.Context) (step.Sample, error) {
	return p.read(ctx)
}

// Stream returns the sample channel.
func (p *PushSource) Stream() <-chan step.Sample {
	return p.ch
}

// Config returns the source configuration.
func (p *PushSource) Config() Config {
	return p.cfg
}

// Name returns "push".
func (p *PushSource) Name() string {
	return string(BackendPush)
}

// Close releases resources.
func (p *PushSource) Close() error {
	if !p.markClosed() {
		return nil
	}
	return p.Stop()
}

// Stats returns source statistics.
func (p *PushSource) Stats() SourceStats {
	return p.stats(p.Name())
}

var _ SourceWithStats = (*PushSource)(nil)
